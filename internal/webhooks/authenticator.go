package webhooks

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/marketplacekit/ghl-adapter/internal/models"
	"github.com/sirupsen/logrus"
)

// SignatureHeader is the HTTP header carrying the platform's signature.
const SignatureHeader = "x-wh-signature"

// signaturePrefix is tolerated in front of the base64 signature value.
const signaturePrefix = "sha256="

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
}

// Rejection is a taxonomy-coded webhook refusal. The code tells the sender
// whether to fix its signing key or simply stop redelivering.
type Rejection struct {
	Code   string
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("webhook rejected: %s (%s)", r.Code, r.Detail)
}

// HTTPStatus maps the rejection to a response status.
func (r *Rejection) HTTPStatus() int {
	switch r.Code {
	case models.ErrMissingSignature, models.ErrInvalidSignature:
		return http.StatusUnauthorized
	case models.ErrDuplicateDelivery:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// Authenticator validates inbound webhook deliveries in four stages:
// signature presence, signature validity over the raw body bytes,
// timestamp freshness, and replay suppression.
type Authenticator struct {
	publicKey *rsa.PublicKey
	freshness time.Duration
	guard     *ReplayGuard
}

// NewAuthenticator parses the platform's PEM public key and builds the
// pipeline around the given replay guard.
func NewAuthenticator(publicKeyPEM string, freshness time.Duration, guard *ReplayGuard) (*Authenticator, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("webhook public key is not valid PEM")
	}

	var publicKey *rsa.PublicKey
	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("webhook public key is not RSA")
		}
		publicKey = rsaKey
	} else if rsaKey, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		publicKey = rsaKey
	} else {
		return nil, fmt.Errorf("failed to parse webhook public key: %w", err)
	}

	if freshness <= 0 {
		freshness = 5 * time.Minute
	}
	return &Authenticator{
		publicKey: publicKey,
		freshness: freshness,
		guard:     guard,
	}, nil
}

// Authenticate runs the pipeline over the exact raw body bytes the platform
// signed. The first failing stage terminates processing. On success the
// delivery id is already recorded in the replay guard, so the caller's
// side effects happen after the mark-as-seen write.
func (a *Authenticator) Authenticate(rawBody []byte, signatureHeader string, now time.Time) (*models.WebhookEvent, *Rejection) {
	// Stage 1: signature presence.
	if signatureHeader == "" {
		return nil, &Rejection{Code: models.ErrMissingSignature, Detail: "no signature header on delivery"}
	}

	// Stage 2: signature validity against the raw bytes. Re-serializing a
	// parsed body would break verification on field order or whitespace.
	signature, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(signatureHeader, signaturePrefix))
	if err != nil {
		return nil, &Rejection{Code: models.ErrInvalidSignature, Detail: "signature is not valid base64"}
	}
	digest := sha256.Sum256(rawBody)
	if err := rsa.VerifyPKCS1v15(a.publicKey, crypto.SHA256, digest[:], signature); err != nil {
		log.WithField("signaturePrefix", truncate(signatureHeader, 12)).Debug("Webhook signature mismatch")
		return nil, &Rejection{Code: models.ErrInvalidSignature, Detail: "signature does not match payload"}
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, &Rejection{Code: models.ErrBadRequest, Detail: "payload is not valid JSON"}
	}
	event.RawBody = rawBody

	// Stage 3: freshness. A missing timestamp is outside any window.
	if event.Timestamp.IsZero() {
		return nil, &Rejection{Code: models.ErrStaleOrFutureTimestamp, Detail: "delivery carries no timestamp"}
	}
	if age := now.Sub(event.Timestamp); age > a.freshness || -age > a.freshness {
		return nil, &Rejection{Code: models.ErrStaleOrFutureTimestamp,
			Detail: fmt.Sprintf("timestamp outside %s freshness window", a.freshness)}
	}

	// Stage 4: replay suppression. Mark-as-seen happens before the handler
	// runs so concurrent identical deliveries cannot both pass.
	if event.WebhookID == "" {
		return nil, &Rejection{Code: models.ErrBadRequest, Detail: "delivery carries no webhook id"}
	}
	if !a.guard.CheckAndInsert(event.WebhookID, now) {
		return nil, &Rejection{Code: models.ErrDuplicateDelivery, Detail: "delivery id already processed"}
	}

	return &event, nil
}

// truncate keeps log lines free of full signature material.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
