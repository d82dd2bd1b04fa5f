package repository

import (
	"context"

	"gorm.io/gorm"

	"fotobox/eventhub/internal/model"
)

type pgHostRepository struct {
	db *gorm.DB
}

func NewPGHostRepository(db *gorm.DB) HostRepository {
	return &pgHostRepository{db: db}
}

func (r *pgHostRepository) Create(ctx context.Context, host *model.Host) error {
	return translateError(r.db.WithContext(ctx).Create(host).Error)
}

func (r *pgHostRepository) GetByID(ctx context.Context, id uint) (*model.Host, error) {
	var host model.Host
	if err := r.db.WithContext(ctx).First(&host, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &host, nil
}

// GetByLogin matches either the username or the email address.
func (r *pgHostRepository) GetByLogin(ctx context.Context, login string) (*model.Host, error) {
	var host model.Host
	err := r.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, login).
		First(&host).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &host, nil
}

// List returns hosts with the given role, or all hosts when role is empty.
func (r *pgHostRepository) List(ctx context.Context, role model.Role) ([]model.Host, error) {
	var hosts []model.Host
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if role != "" {
		q = q.Where("role = ?", role)
	}
	err := q.Find(&hosts).Error
	return hosts, translateError(err)
}

func (r *pgHostRepository) Update(ctx context.Context, host *model.Host) error {
	return translateError(r.db.WithContext(ctx).Save(host).Error)
}

// Delete removes the host row. A missing row is not an error.
func (r *pgHostRepository) Delete(ctx context.Context, id uint) error {
	return translateError(r.db.WithContext(ctx).Delete(&model.Host{}, "id = ?", id).Error)
}
