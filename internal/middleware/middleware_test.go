package middleware

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplacekit/ghl-adapter/internal/webhooks"
)

var testJWTSecret = []byte("test-jwt-secret-key-32-characters")

func bearerRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", BearerAuth(testJWTSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"subject":  c.GetString("subject"),
			"clientID": c.GetString("clientID"),
		})
	})
	return router
}

func mintToken(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func getProtected(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBearerAuthValidToken(t *testing.T) {
	router := bearerRouter()
	token := mintToken(t, jwt.MapClaims{
		"sub": "external-auth-user",
		"aud": "test_client",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testJWTSecret)

	w := getProtected(router, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "external-auth-user")
	assert.Contains(t, w.Body.String(), "test_client")
}

func TestBearerAuthMissingHeader(t *testing.T) {
	w := getProtected(bearerRouter(), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuthWrongScheme(t *testing.T) {
	w := getProtected(bearerRouter(), "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuthExpiredToken(t *testing.T) {
	router := bearerRouter()
	token := mintToken(t, jwt.MapClaims{
		"sub": "external-auth-user",
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	}, testJWTSecret)

	w := getProtected(router, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuthWrongSecret(t *testing.T) {
	router := bearerRouter()
	token := mintToken(t, jwt.MapClaims{
		"sub": "external-auth-user",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, []byte("a-different-secret-entirely-here"))

	w := getProtected(router, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuthMissingSubject(t *testing.T) {
	router := bearerRouter()
	token := mintToken(t, jwt.MapClaims{
		"aud": "test_client",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testJWTSecret)

	w := getProtected(router, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func webhookRouter(t *testing.T) (*gin.Engine, *rsa.PrivateKey) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	authenticator, err := webhooks.NewAuthenticator(publicPEM, 5*time.Minute, webhooks.NewReplayGuard(time.Hour))
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", WebhookAuth(authenticator), func(c *gin.Context) {
		event, ok := WebhookEventFromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"webhookId": event.WebhookID, "tenantId": event.TenantID()})
	})
	return router, key
}

func signBody(t *testing.T, key *rsa.PrivateKey, body []byte) string {
	digest := sha256.Sum256(body)
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(signature)
}

func postWebhook(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(webhooks.SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookAuthAcceptsSignedDelivery(t *testing.T) {
	router, key := webhookRouter(t)
	body := []byte(fmt.Sprintf(`{"webhookId":"wh_1","timestamp":%q,"type":"INSTALL","locationId":"loc_9"}`,
		time.Now().Format(time.RFC3339)))

	w := postWebhook(router, body, signBody(t, key, body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wh_1")
	assert.Contains(t, w.Body.String(), "loc_9")
}

func TestWebhookAuthRejectsUnsigned(t *testing.T) {
	router, _ := webhookRouter(t)
	body := []byte(`{"webhookId":"wh_1","type":"INSTALL"}`)

	w := postWebhook(router, body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookAuthRejectsReplayWithConflict(t *testing.T) {
	router, key := webhookRouter(t)
	body := []byte(fmt.Sprintf(`{"webhookId":"wh_replay","timestamp":%q,"type":"INSTALL","companyId":"co_1"}`,
		time.Now().Format(time.RFC3339)))
	signature := signBody(t, key, body)

	w := postWebhook(router, body, signature)
	require.Equal(t, http.StatusOK, w.Code)

	w = postWebhook(router, body, signature)
	assert.Equal(t, http.StatusConflict, w.Code)
}
