package model

import "time"

type Role string

const (
	RoleHost  Role = "host"
	RoleAdmin Role = "admin"
)

// Host owns events and carries the policy applied to events it creates.
// MaxEvents nil means unbounded; EventDate nil means events expire relative
// to their creation time.
type Host struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Username      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email         string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash  string     `gorm:"type:varchar(255);not null" json:"-"`
	Role          Role       `gorm:"type:varchar(16);not null" json:"role"`
	MaxEvents     *int       `json:"max_events"`
	EventDate     *time.Time `json:"event_date"`
	ExpiresInDays int        `gorm:"not null" json:"expires_in_days"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Events []Event `gorm:"foreignKey:HostID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (Host) TableName() string { return "hosts" }

func (h *Host) IsAdmin() bool { return h.Role == RoleAdmin }
