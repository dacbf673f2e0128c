package ghl

import (
	"fmt"
)

// AuthExchangeError is returned when the platform rejects an authorization
// code (invalid, expired or already redeemed). It is never retried.
type AuthExchangeError struct {
	Code        string
	Description string
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("authorization code exchange rejected: %s (%s)", e.Code, e.Description)
}

// RefreshError is returned when the platform rejects a refresh token. The
// caller must treat the stored installation as no longer usable instead of
// retrying with the same token.
type RefreshError struct {
	TenantID    string
	Code        string
	Description string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh rejected for tenant %s: %s (%s)", e.TenantID, e.Code, e.Description)
}

// ScopeError is returned when the platform refuses to mint a location token,
// typically because the app's distribution is not Company+Location or the
// installation lacks the required read-write scopes.
type ScopeError struct {
	CompanyID   string
	LocationID  string
	Code        string
	Description string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("location token derivation rejected for company %s, location %s: %s (%s)",
		e.CompanyID, e.LocationID, e.Code, e.Description)
}

// UpstreamUnavailableError wraps a transport failure or timeout talking to
// the platform, after bounded retries were exhausted.
type UpstreamUnavailableError struct {
	Op  string
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("platform unavailable during %s: %v", e.Op, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}
