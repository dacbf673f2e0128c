package models

import (
	"time"
)

// Webhook event types the adapter reacts to. Other types are passed through
// to the application handler untouched.
const (
	WebhookEventInstall   = "INSTALL"
	WebhookEventUninstall = "UNINSTALL"
)

// WebhookEvent is the parsed envelope of an inbound webhook delivery.
// It is transient: only the delivery id outlives the request, inside the
// replay guard.
type WebhookEvent struct {
	WebhookID  string    `json:"webhookId"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	CompanyID  string    `json:"companyId,omitempty"`
	LocationID string    `json:"locationId,omitempty"`

	// RawBody is the exact bytes the platform signed. Signature
	// verification must run against these, never a re-serialization.
	RawBody []byte `json:"-"`
}

// TenantID returns the tenant the event concerns, preferring the location
// when both ids are present (location events carry their company id too).
func (e *WebhookEvent) TenantID() string {
	if e.LocationID != "" {
		return e.LocationID
	}
	return e.CompanyID
}
