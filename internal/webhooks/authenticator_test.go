package webhooks

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplacekit/ghl-adapter/internal/models"
)

type signingFixture struct {
	key           *rsa.PrivateKey
	authenticator *Authenticator
}

func newSigningFixture(t *testing.T, freshness time.Duration) *signingFixture {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	authenticator, err := NewAuthenticator(publicPEM, freshness, NewReplayGuard(time.Hour))
	require.NoError(t, err)

	return &signingFixture{key: key, authenticator: authenticator}
}

func (f *signingFixture) sign(t *testing.T, body []byte) string {
	digest := sha256.Sum256(body)
	signature, err := rsa.SignPKCS1v15(rand.Reader, f.key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(signature)
}

func deliveryBody(webhookID string, timestamp time.Time) []byte {
	return []byte(fmt.Sprintf(`{"webhookId":%q,"timestamp":%q,"type":"INSTALL","companyId":"co_1"}`,
		webhookID, timestamp.Format(time.RFC3339)))
}

func TestAuthenticateValidDelivery(t *testing.T) {
	f := newSigningFixture(t, 5*time.Minute)
	now := time.Now()
	body := deliveryBody("wh_1", now)

	event, rejection := f.authenticator.Authenticate(body, f.sign(t, body), now)
	require.Nil(t, rejection)
	assert.Equal(t, "wh_1", event.WebhookID)
	assert.Equal(t, models.WebhookEventInstall, event.Type)
	assert.Equal(t, "co_1", event.TenantID())
	assert.Equal(t, body, event.RawBody)
}

func TestAuthenticateToleratesSignaturePrefix(t *testing.T) {
	f := newSigningFixture(t, 5*time.Minute)
	now := time.Now()
	body := deliveryBody("wh_prefixed", now)

	_, rejection := f.authenticator.Authenticate(body, "sha256="+f.sign(t, body), now)
	assert.Nil(t, rejection)
}

func TestAuthenticateMissingSignature(t *testing.T) {
	f := newSigningFixture(t, 5*time.Minute)
	now := time.Now()

	_, rejection := f.authenticator.Authenticate(deliveryBody("wh_1", now), "", now)
	require.NotNil(t, rejection)
	assert.Equal(t, models.ErrMissingSignature, rejection.Code)
	assert.Equal(t, 401, rejection.HTTPStatus())
}

func TestAuthenticateTamperedBody(t *testing.T) {
	f := newSigningFixture(t, 5*time.Minute)
	now := time.Now()
	body := deliveryBody("wh_1", now)
	signature := f.sign(t, body)

	// Flip a single byte after signing.
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = '2'

	_, rejection := f.authenticator.Authenticate(tampered, signature, now)
	require.NotNil(t, rejection)
	assert.Equal(t, models.ErrInvalidSignature, rejection.Code)
	assert.Equal(t, 401, rejection.HTTPStatus())
}

func TestAuthenticateGarbageSignature(t *testing.T) {
	f := newSigningFixture(t, 5*time.Minute)
	now := time.Now()
	body := deliveryBody("wh_1", now)

	_, rejection := f.authenticator.Authenticate(body, "not!!base64", now)
	require.NotNil(t, rejection)
	assert.Equal(t, models.ErrInvalidSignature, rejection.Code)
}

func TestAuthenticateSignatureFromWrongKey(t *testing.T) {
	f := newSigningFixture(t, 5*time.Minute)
	other := newSigningFixture(t, 5*time.Minute)
	now := time.Now()
	body := deliveryBody("wh_1", now)

	_, rejection := f.authenticator.Authenticate(body, other.sign(t, body), now)
	require.NotNil(t, rejection)
	assert.Equal(t, models.ErrInvalidSignature, rejection.Code)
}

func TestAuthenticateFreshnessWindow(t *testing.T) {
	f := newSigningFixture(t, 5*time.Minute)
	now := time.Now().Truncate(time.Second)

	cases := []struct {
		name      string
		timestamp time.Time
		accepted  bool
	}{
		{"exactly at stale boundary", now.Add(-5 * time.Minute), true},
		{"just past stale boundary", now.Add(-5*time.Minute - time.Second), false},
		{"exactly at future boundary", now.Add(5 * time.Minute), true},
		{"just past future boundary", now.Add(5*time.Minute + time.Second), false},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := deliveryBody(fmt.Sprintf("wh_window_%d", i), tc.timestamp)
			_, rejection := f.authenticator.Authenticate(body, f.sign(t, body), now)
			if tc.accepted {
				assert.Nil(t, rejection)
			} else {
				require.NotNil(t, rejection)
				assert.Equal(t, models.ErrStaleOrFutureTimestamp, rejection.Code)
				assert.Equal(t, 400, rejection.HTTPStatus())
			}
		})
	}
}

func TestAuthenticateMissingTimestamp(t *testing.T) {
	f := newSigningFixture(t, 5*time.Minute)
	now := time.Now()
	body := []byte(`{"webhookId":"wh_1","type":"INSTALL","companyId":"co_1"}`)

	_, rejection := f.authenticator.Authenticate(body, f.sign(t, body), now)
	require.NotNil(t, rejection)
	assert.Equal(t, models.ErrStaleOrFutureTimestamp, rejection.Code)
}

func TestAuthenticateDuplicateDelivery(t *testing.T) {
	f := newSigningFixture(t, 5*time.Minute)
	now := time.Now()
	body := deliveryBody("wh_dup", now)
	signature := f.sign(t, body)

	_, rejection := f.authenticator.Authenticate(body, signature, now)
	require.Nil(t, rejection)

	_, rejection = f.authenticator.Authenticate(body, signature, now)
	require.NotNil(t, rejection)
	assert.Equal(t, models.ErrDuplicateDelivery, rejection.Code)
	assert.Equal(t, 409, rejection.HTTPStatus())
}

func TestAuthenticateMalformedJSONAfterValidSignature(t *testing.T) {
	f := newSigningFixture(t, 5*time.Minute)
	now := time.Now()
	body := []byte(`{"webhookId": truncated`)

	_, rejection := f.authenticator.Authenticate(body, f.sign(t, body), now)
	require.NotNil(t, rejection)
	assert.Equal(t, models.ErrBadRequest, rejection.Code)
	assert.Equal(t, 400, rejection.HTTPStatus())
}

func TestAuthenticateMissingWebhookID(t *testing.T) {
	f := newSigningFixture(t, 5*time.Minute)
	now := time.Now()
	body := []byte(fmt.Sprintf(`{"timestamp":%q,"type":"INSTALL","companyId":"co_1"}`,
		now.Format(time.RFC3339)))

	_, rejection := f.authenticator.Authenticate(body, f.sign(t, body), now)
	require.NotNil(t, rejection)
	assert.Equal(t, models.ErrBadRequest, rejection.Code)
}

func TestNewAuthenticatorRejectsBadKeys(t *testing.T) {
	guard := NewReplayGuard(time.Hour)

	_, err := NewAuthenticator("not a pem block", 5*time.Minute, guard)
	assert.Error(t, err)

	// A valid PEM block that is not a public key.
	bogus := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte("garbage")}))
	_, err = NewAuthenticator(bogus, 5*time.Minute, guard)
	assert.Error(t, err)
}
