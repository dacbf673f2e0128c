package models

import (
	"time"
)

// OAuthCode is a short-lived authorization code minted by the
// external-authentication provider and redeemed at its token endpoint.
type OAuthCode struct {
	Code        string `gorm:"primaryKey"`
	ClientID    string `gorm:"not null"`
	UserID      string `gorm:"not null"`
	Scopes      string
	RedirectURI string
	ExpiresAt   time.Time `gorm:"not null"`
	CreatedAt   time.Time
}

func (OAuthCode) TableName() string {
	return "oauth_codes"
}
