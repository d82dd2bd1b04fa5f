package repository

import (
	"context"

	"gorm.io/gorm"

	"fotobox/eventhub/internal/model"
)

type pgUploadRepository struct {
	db *gorm.DB
}

func NewPGUploadRepository(db *gorm.DB) UploadRepository {
	return &pgUploadRepository{db: db}
}

func (r *pgUploadRepository) Create(ctx context.Context, upload *model.Upload) error {
	return translateError(r.db.WithContext(ctx).Create(upload).Error)
}

func (r *pgUploadRepository) ListByEvent(ctx context.Context, eventID uint) ([]model.Upload, error) {
	var uploads []model.Upload
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at DESC, id DESC").
		Find(&uploads).Error
	return uploads, translateError(err)
}

// DeleteByEvent removes every upload row of the event and reports how many
// rows went away. Zero rows is not an error.
func (r *pgUploadRepository) DeleteByEvent(ctx context.Context, eventID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&model.Upload{})
	return res.RowsAffected, translateError(res.Error)
}
