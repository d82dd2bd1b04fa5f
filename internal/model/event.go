package model

import "time"

// Event is a time-boxed collection point addressed publicly by Code.
// EventDate and ExpiresAt are fixed at creation and never recomputed.
type Event struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	HostID        uint       `gorm:"not null;index" json:"host_id"`
	Code          string     `gorm:"type:varchar(16);uniqueIndex;not null" json:"event_code"`
	Name          string     `gorm:"type:varchar(255);not null" json:"name"`
	Description   string     `gorm:"type:text" json:"description"`
	AllowView     bool       `gorm:"not null" json:"allow_view"`
	AllowDownload bool       `gorm:"not null" json:"allow_download"`
	CoverImage    *string    `gorm:"type:varchar(1024)" json:"cover_image"`
	QRCode        *string    `gorm:"column:qr_code;type:varchar(1024)" json:"qr_code"`
	EventDate     *time.Time `json:"event_date"`
	ExpiresAt     *time.Time `gorm:"index" json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// Populated only by listing queries.
	UploadCount int64  `gorm:"->;-:migration" json:"upload_count"`
	HostName    string `gorm:"->;-:migration" json:"host_name,omitempty"`

	Uploads []Upload `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Event) TableName() string { return "events" }

// IsExpired reports whether now is past the event's expiry instant.
// Events without an expiry never expire.
func (e *Event) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// EventPatch lists the fields an owner may change after creation.
// Nil pointers leave the column untouched.
type EventPatch struct {
	Name          *string
	Description   *string
	AllowView     *bool
	AllowDownload *bool
	CoverImage    *string
}

func (p EventPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.AllowView == nil &&
		p.AllowDownload == nil && p.CoverImage == nil
}
