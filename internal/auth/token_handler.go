package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-oauth2/oauth2/v4"
	"github.com/marketplacekit/ghl-adapter/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// HandleToken is the external-auth token endpoint: the platform posts the
// authorization code here to obtain an access token.
// @Summary External-auth token endpoint
// @Description Exchange an authorization code for an access token
// @Tags ExternalAuth
// @Accept application/x-www-form-urlencoded
// @Produce json
// @Param grant_type formData string true "Must be authorization_code"
// @Param code formData string true "Authorization code"
// @Param client_id formData string true "Client ID"
// @Param client_secret formData string true "Client Secret"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/token [post]
func (o *OAuthService) HandleToken(c *gin.Context) {
	if c.PostForm("grant_type") != "authorization_code" {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrUnsupportedGrantType})
		return
	}

	code := c.PostForm("code")
	clientID := c.PostForm("client_id")

	// Validate authorization code
	var authCode models.OAuthCode
	if err := o.db.Where("code = ?", code).First(&authCode).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidGrant})
		return
	}

	// Check expiration
	if time.Now().After(authCode.ExpiresAt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidGrant, "error_description": "authorization code expired"})
		return
	}

	// Validate client binding and secret
	if authCode.ClientID != clientID {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidGrant})
		return
	}
	if !o.verifyClientSecret(c, clientID) {
		return
	}

	// Generate tokens; the manager loads and consumes the code through the
	// token store, so a code can only be redeemed once.
	ti, err := o.server.Manager.GenerateAccessToken(c, oauth2.AuthorizationCode, &oauth2.TokenGenerateRequest{
		ClientID:     clientID,
		ClientSecret: c.PostForm("client_secret"),
		Code:         code,
		RedirectURI:  c.PostForm("redirect_uri"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_generation_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  ti.GetAccess(),
		"token_type":    "Bearer",
		"expires_in":    int64(ti.GetAccessExpiresIn().Seconds()),
		"refresh_token": ti.GetRefresh(),
		"scope":         ti.GetScope(),
	})
}

// HandleRefresh rotates an external-auth token pair.
// @Summary External-auth refresh endpoint
// @Description Exchange a refresh token for a new token pair
// @Tags ExternalAuth
// @Accept application/x-www-form-urlencoded
// @Produce json
// @Param grant_type formData string true "Must be refresh_token"
// @Param refresh_token formData string true "Refresh token"
// @Param client_id formData string true "Client ID"
// @Param client_secret formData string true "Client Secret"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/refresh [post]
func (o *OAuthService) HandleRefresh(c *gin.Context) {
	refreshToken := c.PostForm("refresh_token")
	if c.PostForm("grant_type") != "refresh_token" || refreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             models.ErrInvalidRequest,
			"error_description": "Invalid refresh token request",
		})
		return
	}

	clientID := c.PostForm("client_id")
	if !o.verifyClientSecret(c, clientID) {
		return
	}

	ti, err := o.server.Manager.RefreshAccessToken(c, &oauth2.TokenGenerateRequest{
		ClientID:     clientID,
		ClientSecret: c.PostForm("client_secret"),
		Refresh:      refreshToken,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidGrant})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  ti.GetAccess(),
		"token_type":    "Bearer",
		"expires_in":    int64(ti.GetAccessExpiresIn().Seconds()),
		"refresh_token": ti.GetRefresh(),
		"scope":         ti.GetScope(),
	})
}

// verifyClientSecret checks the posted client secret against the stored
// bcrypt hash, writing the error response itself on failure.
func (o *OAuthService) verifyClientSecret(c *gin.Context, clientID string) bool {
	clientSecret := c.PostForm("client_secret")

	var client models.OAuthClient
	if err := o.db.Where("id = ?", clientID).First(&client).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": models.ErrInvalidClient})
		return false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.Secret), []byte(clientSecret)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": models.ErrInvalidClient})
		return false
	}
	return true
}
