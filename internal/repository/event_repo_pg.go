package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fotobox/eventhub/internal/model"
)

const uploadCountColumn = "(SELECT COUNT(*) FROM uploads WHERE uploads.event_id = events.id) AS upload_count"

type pgEventRepository struct {
	db *gorm.DB
}

func NewPGEventRepository(db *gorm.DB) EventRepository {
	return &pgEventRepository{db: db}
}

// Create inserts the event. A duplicate code yields ErrConflict so the
// caller can generate a new one.
func (r *pgEventRepository) Create(ctx context.Context, event *model.Event) error {
	return translateError(r.db.WithContext(ctx).Create(event).Error)
}

func (r *pgEventRepository) GetByID(ctx context.Context, id uint) (*model.Event, error) {
	var event model.Event
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &event, nil
}

func (r *pgEventRepository) GetByCode(ctx context.Context, code string) (*model.Event, error) {
	var event model.Event
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&event).Error; err != nil {
		return nil, translateError(err)
	}
	return &event, nil
}

func (r *pgEventRepository) ListByHost(ctx context.Context, hostID uint) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Select("events.*, " + uploadCountColumn).
		Where("events.host_id = ?", hostID).
		Order("events.created_at DESC, events.id DESC").
		Find(&events).Error
	return events, translateError(err)
}

func (r *pgEventRepository) ListAll(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Select("events.*, hosts.username AS host_name, " + uploadCountColumn).
		Joins("JOIN hosts ON hosts.id = events.host_id").
		Order("events.created_at DESC, events.id DESC").
		Find(&events).Error
	return events, translateError(err)
}

func (r *pgEventRepository) CountByHost(ctx context.Context, hostID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Event{}).Where("host_id = ?", hostID).Count(&n).Error
	return n, translateError(err)
}

// UpdateMutableFields applies the non-nil fields of patch. EventDate and
// ExpiresAt are not reachable from a patch.
func (r *pgEventRepository) UpdateMutableFields(ctx context.Context, id uint, patch model.EventPatch) (*model.Event, error) {
	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.AllowView != nil {
		updates["allow_view"] = *patch.AllowView
	}
	if patch.AllowDownload != nil {
		updates["allow_download"] = *patch.AllowDownload
	}
	if patch.CoverImage != nil {
		updates["cover_image"] = *patch.CoverImage
	}

	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&model.Event{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, translateError(res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return r.GetByID(ctx, id)
}

func (r *pgEventRepository) SetQRCode(ctx context.Context, id uint, ref string) error {
	res := r.db.WithContext(ctx).Model(&model.Event{}).Where("id = ?", id).Update("qr_code", ref)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the event row together with its upload rows. Deleting an
// event that no longer exists succeeds.
func (r *pgEventRepository) Delete(ctx context.Context, id uint) error {
	return translateError(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&model.Upload{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Event{}, "id = ?", id).Error
	}))
}

// ListExpired returns events whose expiry is set and strictly before now.
func (r *pgEventRepository) ListExpired(ctx context.Context, now time.Time) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now.UTC()).
		Order("expires_at ASC").
		Find(&events).Error
	return events, translateError(err)
}
