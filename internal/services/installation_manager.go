package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marketplacekit/ghl-adapter/internal/ghl"
	"github.com/marketplacekit/ghl-adapter/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
}

// DefaultRefreshSkew is subtracted from a token's expiry so a refresh
// happens before the platform starts rejecting the old token.
const DefaultRefreshSkew = 60 * time.Second

// NotInstalledError means no credentials are stored for the tenant: either
// the app was never installed there or the stored refresh token was revoked.
type NotInstalledError struct {
	TenantID string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("integration not installed for tenant %s", e.TenantID)
}

// OAuthClient is the outbound surface the manager needs from the platform
// client. Declared here so tests can substitute a fake.
type OAuthClient interface {
	ExchangeAuthorizationCode(ctx context.Context, code string) (*models.Installation, error)
	Refresh(ctx context.Context, record *models.Installation) (*models.Installation, error)
	DeriveLocationToken(ctx context.Context, companyAccessToken, companyID, locationID string) (*models.Installation, error)
}

// InstallationManager orchestrates the token lifecycle: authorization-code
// exchange, transparent refresh, and company-to-location derivation.
type InstallationManager interface {
	// CheckInstallationExists is a pure registry lookup with no side effect.
	CheckInstallationExists(tenantID string) bool
	// GetValidAccessToken returns a usable access token for the tenant,
	// refreshing it first when expired or inside the safety skew.
	GetValidAccessToken(ctx context.Context, tenantID string) (string, error)
	// CompleteAuthorization redeems an authorization code and stores the
	// resulting record, returning its tenant id. Re-authorizing a tenant
	// overwrites the previous record.
	CompleteAuthorization(ctx context.Context, code string) (string, error)
	// ResolveLocationToken returns a location-scoped token, deriving one
	// from the company's credentials when no location record exists yet.
	ResolveLocationToken(ctx context.Context, companyID, locationID string) (string, error)
	// Uninstall removes the tenant's record. Called from the platform's
	// uninstall webhook; this is the only removal path.
	Uninstall(tenantID string) error
}

type installationManager struct {
	registry InstallationRegistry
	client   OAuthClient
	skew     time.Duration

	// One in-flight refresh (or derivation) per tenant. The platform
	// rotates refresh tokens on use, so a second concurrent refresh with
	// the same stale token would fail and corrupt the stored credential.
	group singleflight.Group
}

// NewInstallationManager creates a manager over the given registry and
// platform client. A non-positive skew falls back to DefaultRefreshSkew.
func NewInstallationManager(registry InstallationRegistry, client OAuthClient, skew time.Duration) InstallationManager {
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	return &installationManager{
		registry: registry,
		client:   client,
		skew:     skew,
	}
}

func (m *installationManager) CheckInstallationExists(tenantID string) bool {
	return m.registry.Exists(tenantID)
}

func (m *installationManager) CompleteAuthorization(ctx context.Context, code string) (string, error) {
	record, err := m.client.ExchangeAuthorizationCode(ctx, code)
	if err != nil {
		return "", err
	}
	if err := m.registry.Put(record); err != nil {
		return "", err
	}
	log.WithFields(logrus.Fields{
		"tenantId":    record.TenantID,
		"tenantScope": record.TenantScope,
	}).Info("Installation recorded")
	return record.TenantID, nil
}

func (m *installationManager) GetValidAccessToken(ctx context.Context, tenantID string) (string, error) {
	record, err := m.registry.Get(tenantID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", &NotInstalledError{TenantID: tenantID}
	}
	if !record.ExpiresWithin(time.Now(), m.skew) {
		return record.AccessToken, nil
	}
	return m.refreshCoalesced(ctx, tenantID)
}

// refreshCoalesced funnels all callers for a tenant through one upstream
// refresh. Callers that join an in-flight refresh receive its result.
func (m *installationManager) refreshCoalesced(ctx context.Context, tenantID string) (string, error) {
	token, err, shared := m.group.Do(tenantID, func() (interface{}, error) {
		// Re-read under the flight: a refresh that just finished may
		// already have stored a fresh token.
		record, err := m.registry.Get(tenantID)
		if err != nil {
			return "", err
		}
		if record == nil {
			return "", &NotInstalledError{TenantID: tenantID}
		}
		if !record.ExpiresWithin(time.Now(), m.skew) {
			return record.AccessToken, nil
		}

		fresh, err := m.client.Refresh(ctx, record)
		if err != nil {
			var refreshErr *ghl.RefreshError
			if errors.As(err, &refreshErr) {
				// The refresh token is dead; the tenant is effectively
				// no longer installed until it re-authorizes.
				if delErr := m.registry.Delete(tenantID); delErr != nil {
					log.WithField("tenantId", tenantID).Errorf("Failed to drop invalidated record: %v", delErr)
				}
				log.WithField("tenantId", tenantID).Warn("Refresh token rejected, installation invalidated")
			}
			return "", err
		}

		merged := mergeRefreshed(record, fresh)
		if err := m.registry.Put(merged); err != nil {
			return "", err
		}
		log.WithField("tenantId", tenantID).Debug("Access token refreshed")
		return merged.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.WithField("tenantId", tenantID).Debug("Joined in-flight token refresh")
	}
	return token.(string), nil
}

// mergeRefreshed applies a refresh result onto the stored record, keeping
// identity fields stable and the expiry monotonic.
func mergeRefreshed(old, fresh *models.Installation) *models.Installation {
	merged := *fresh
	merged.TenantID = old.TenantID
	merged.TenantScope = old.TenantScope
	if merged.ParentCompanyID == "" {
		merged.ParentCompanyID = old.ParentCompanyID
	}
	if merged.Scopes == "" {
		merged.Scopes = old.Scopes
	}
	// Expiry never moves backwards on refresh.
	if merged.ExpiresAt().Before(old.ExpiresAt()) {
		merged.IssuedAt = old.IssuedAt
		merged.ExpiresIn = old.ExpiresIn
	}
	return &merged
}

func (m *installationManager) ResolveLocationToken(ctx context.Context, companyID, locationID string) (string, error) {
	if m.registry.Exists(locationID) {
		return m.GetValidAccessToken(ctx, locationID)
	}

	// Derivations coalesce on the location id, separate from the refresh
	// keyspace so a company refresh and a derivation can overlap.
	token, err, _ := m.group.Do("derive:"+locationID, func() (interface{}, error) {
		if record, err := m.registry.Get(locationID); err != nil {
			return "", err
		} else if record != nil {
			return record.AccessToken, nil
		}

		// Reads the company record only; it is never mutated here.
		companyToken, err := m.GetValidAccessToken(ctx, companyID)
		if err != nil {
			return "", err
		}

		record, err := m.client.DeriveLocationToken(ctx, companyToken, companyID, locationID)
		if err != nil {
			return "", err
		}
		record.ParentCompanyID = companyID
		if err := m.registry.Put(record); err != nil {
			return "", err
		}
		log.WithFields(logrus.Fields{
			"companyId":  companyID,
			"locationId": locationID,
		}).Info("Location token derived")
		return record.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *installationManager) Uninstall(tenantID string) error {
	if err := m.registry.Delete(tenantID); err != nil {
		return err
	}
	log.WithField("tenantId", tenantID).Info("Installation removed")
	return nil
}
