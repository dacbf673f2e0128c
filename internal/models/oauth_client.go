package models

import (
	"time"

	"gorm.io/gorm"
)

// OAuthClient is a client of the external-authentication provider: the
// credentials the platform uses when it treats this app as an upstream
// identity source. Secret holds a bcrypt hash, never the plain value.
type OAuthClient struct {
	ID          string `gorm:"primaryKey"`
	Secret      string `gorm:"not null"`
	Name        string
	Domain      string
	Scopes      string // Space-separated list of allowed scopes
	GrantTypes  string // Space-separated list: "authorization_code refresh_token"
	RedirectURI string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (OAuthClient) TableName() string {
	return "oauth_clients"
}
