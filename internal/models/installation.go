package models

import (
	"strings"
	"time"
)

// TenantScope identifies the level at which a token was granted.
type TenantScope string

const (
	ScopeCompany  TenantScope = "Company"
	ScopeLocation TenantScope = "Location"
)

// TokenType identifies the kind of bearer credential held for a tenant.
type TokenType string

const (
	TokenTypeBearer TokenType = "Bearer"
)

// Installation is the unit of state tracked per tenant: the OAuth
// credentials obtained when a company or location installed the app.
// The tenant id (company id or location id) is the unique key; a location
// record derived from a company token carries the company id in
// ParentCompanyID.
type Installation struct {
	TenantID        string      `gorm:"primaryKey" json:"tenant_id"`
	TenantScope     TenantScope `gorm:"not null" json:"tenant_scope"`
	AccessToken     string      `gorm:"not null" json:"access_token"`
	RefreshToken    string      `json:"refresh_token"`
	TokenType       TokenType   `gorm:"default:'Bearer'" json:"token_type"`
	IssuedAt        time.Time   `gorm:"not null" json:"issued_at"`
	ExpiresIn       int64       `gorm:"not null" json:"expires_in"`
	Scopes          string      `json:"scopes"` // space-separated granted scopes
	ParentCompanyID string      `json:"parent_company_id,omitempty"`
	CreatedAt       time.Time   `json:"-"`
	UpdatedAt       time.Time   `json:"-"`
}

func (Installation) TableName() string {
	return "installations"
}

// ExpiresAt returns the instant the access token stops being valid.
func (i *Installation) ExpiresAt() time.Time {
	return i.IssuedAt.Add(time.Duration(i.ExpiresIn) * time.Second)
}

// ExpiresWithin reports whether the access token expires inside the given
// safety skew from now. A token inside the skew is treated as expired so a
// refresh happens before the platform starts rejecting it.
func (i *Installation) ExpiresWithin(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(i.ExpiresAt())
}

// HasScope reports whether the installation was granted the named scope.
func (i *Installation) HasScope(scope string) bool {
	for _, s := range strings.Fields(i.Scopes) {
		if s == scope {
			return true
		}
	}
	return false
}
