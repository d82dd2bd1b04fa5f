package model

import "time"

// Upload is one guest-submitted file. Path is relative to the storage root
// (events/<event_id>/<stored_filename>) and must exist on disk when the row
// is created.
type Upload struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	EventID          uint      `gorm:"not null;index" json:"event_id"`
	GuestName        string    `gorm:"type:varchar(255);not null" json:"guest_name"`
	StoredFilename   string    `gorm:"type:varchar(255);not null" json:"filename"`
	OriginalFilename string    `gorm:"type:varchar(255);not null" json:"original_filename"`
	Path             string    `gorm:"type:varchar(1024);not null" json:"file_path"`
	ContentType      string    `gorm:"type:varchar(127);not null" json:"file_type"`
	Size             int64     `gorm:"not null" json:"file_size"`
	CreatedAt        time.Time `json:"uploaded_at"`
}

func (Upload) TableName() string { return "uploads" }
