package repository

import (
	"context"
	"time"

	"fotobox/eventhub/internal/model"
)

// EventRepository owns event rows. GetByCode reports the stored expiry but
// never rejects an expired event; that decision belongs to the caller.
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id uint) (*model.Event, error)
	GetByCode(ctx context.Context, code string) (*model.Event, error)
	ListByHost(ctx context.Context, hostID uint) ([]model.Event, error)
	ListAll(ctx context.Context) ([]model.Event, error)
	CountByHost(ctx context.Context, hostID uint) (int64, error)
	UpdateMutableFields(ctx context.Context, id uint, patch model.EventPatch) (*model.Event, error)
	SetQRCode(ctx context.Context, id uint, ref string) error
	Delete(ctx context.Context, id uint) error
	ListExpired(ctx context.Context, now time.Time) ([]model.Event, error)
}
