package ghl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/marketplacekit/ghl-adapter/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "app-client-id", "app-client-secret")
	return srv, client
}

func TestExchangeAuthorizationCodeCompany(t *testing.T) {
	_, client := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "abc", r.PostForm.Get("code"))
		assert.Equal(t, "app-client-id", r.PostForm.Get("client_id"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-1",
			"token_type":    "Bearer",
			"expires_in":    86400,
			"refresh_token": "rt-1",
			"scope":         "contacts.readonly oauth.readonly oauth.write",
			"userType":      "Company",
			"companyId":     "co_1",
		})
	})

	record, err := client.ExchangeAuthorizationCode(context.Background(), "abc")
	require.NoError(t, err)

	assert.Equal(t, "co_1", record.TenantID)
	assert.Equal(t, models.ScopeCompany, record.TenantScope)
	assert.Equal(t, "at-1", record.AccessToken)
	assert.Equal(t, "rt-1", record.RefreshToken)
	assert.Equal(t, models.TokenTypeBearer, record.TokenType)
	assert.True(t, record.ExpiresAt().After(record.IssuedAt))
	assert.True(t, record.HasScope("oauth.write"))
	assert.Empty(t, record.ParentCompanyID)
}

func TestExchangeAuthorizationCodeRejectedNotRetried(t *testing.T) {
	var calls int32
	_, client := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "authorization code expired",
		})
	})

	_, err := client.ExchangeAuthorizationCode(context.Background(), "stale-code")
	require.Error(t, err)

	var exchangeErr *AuthExchangeError
	require.True(t, errors.As(err, &exchangeErr))
	assert.Equal(t, "invalid_grant", exchangeErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestTransientFailureRetried(t *testing.T) {
	var calls int32
	_, client := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-2",
			"token_type":    "Bearer",
			"expires_in":    86400,
			"refresh_token": "rt-2",
			"userType":      "Company",
			"companyId":     "co_1",
		})
	})

	record, err := client.ExchangeAuthorizationCode(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "at-2", record.AccessToken)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestTransientFailureExhausted(t *testing.T) {
	var calls int32
	_, client := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.ExchangeAuthorizationCode(context.Background(), "abc")
	require.Error(t, err)

	var unavailable *UpstreamUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, int32(maxAttempts), atomic.LoadInt32(&calls))
}

func TestRefreshRejected(t *testing.T) {
	_, client := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "Company", r.PostForm.Get("user_type"))
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "refresh token revoked",
		})
	})

	record := &models.Installation{
		TenantID:     "co_1",
		TenantScope:  models.ScopeCompany,
		AccessToken:  "at-old",
		RefreshToken: "rt-old",
	}
	_, err := client.Refresh(context.Background(), record)
	require.Error(t, err)

	var refreshErr *RefreshError
	require.True(t, errors.As(err, &refreshErr))
	assert.Equal(t, "co_1", refreshErr.TenantID)
}

func TestDeriveLocationToken(t *testing.T) {
	_, client := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/locationToken", r.URL.Path)
		assert.Equal(t, "Bearer company-at", r.Header.Get("Authorization"))
		assert.Equal(t, APIVersion, r.Header.Get("Version"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "co_1", r.PostForm.Get("companyId"))
		assert.Equal(t, "loc_9", r.PostForm.Get("locationId"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-loc",
			"token_type":    "Bearer",
			"expires_in":    86400,
			"refresh_token": "rt-loc",
			"locationId":    "loc_9",
		})
	})

	record, err := client.DeriveLocationToken(context.Background(), "company-at", "co_1", "loc_9")
	require.NoError(t, err)

	assert.Equal(t, "loc_9", record.TenantID)
	assert.Equal(t, models.ScopeLocation, record.TenantScope)
	assert.Equal(t, "co_1", record.ParentCompanyID)
}

func TestDeriveLocationTokenScopeRejected(t *testing.T) {
	_, client := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"message": "app distribution does not allow location tokens",
		})
	})

	_, err := client.DeriveLocationToken(context.Background(), "company-at", "co_1", "loc_9")
	require.Error(t, err)

	var scopeErr *ScopeError
	require.True(t, errors.As(err, &scopeErr))
	assert.Equal(t, "loc_9", scopeErr.LocationID)
	assert.Contains(t, scopeErr.Description, "distribution")
}

func TestAuthenticatedGet(t *testing.T) {
	_, client := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		assert.Equal(t, APIVersion, r.Header.Get("Version"))
		w.Write([]byte(`{"users":[]}`))
	})

	body, err := client.Get(context.Background(), "at-1", "/users/search?companyId=co_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":[]}`, string(body))
}
