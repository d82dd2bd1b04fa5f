package repository

import (
	"context"

	"fotobox/eventhub/internal/model"
)

type HostRepository interface {
	Create(ctx context.Context, host *model.Host) error
	GetByID(ctx context.Context, id uint) (*model.Host, error)
	GetByLogin(ctx context.Context, login string) (*model.Host, error)
	List(ctx context.Context, role model.Role) ([]model.Host, error)
	Update(ctx context.Context, host *model.Host) error
	Delete(ctx context.Context, id uint) error
}
