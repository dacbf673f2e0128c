package models

import (
	"time"
)

// UserProfile stores a profile document pushed by the platform's
// custom-pages bridge. The payload is kept verbatim as JSON.
type UserProfile struct {
	ID        string `gorm:"primaryKey"`
	Payload   string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserProfile) TableName() string {
	return "user_profiles"
}
