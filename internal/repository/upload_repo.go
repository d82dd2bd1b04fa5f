package repository

import (
	"context"

	"fotobox/eventhub/internal/model"
)

type UploadRepository interface {
	Create(ctx context.Context, upload *model.Upload) error
	ListByEvent(ctx context.Context, eventID uint) ([]model.Upload, error)
	DeleteByEvent(ctx context.Context, eventID uint) (int64, error)
}
