package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marketplacekit/ghl-adapter/internal/models"
)

// demoSubject stands in for a real login session. The provider has no user
// store; the platform only needs the code-for-token round trip to work.
const demoSubject = "external-auth-user"

// HandleAuthorize is the external-auth authorization endpoint the platform
// redirects users to. It validates the client, mints a short-lived
// authorization code and redirects back with code and state.
// @Summary External-auth authorization endpoint
// @Description Issue an authorization code and redirect back to the platform
// @Tags ExternalAuth
// @Param client_id query string true "Client ID"
// @Param redirect_uri query string true "Redirect URI"
// @Param state query string false "Opaque state echoed back"
// @Param scope query string false "Requested scopes"
// @Success 302
// @Failure 400 {object} map[string]string
// @Router /auth/authorize [get]
func (o *OAuthService) HandleAuthorize(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	scope := c.Query("scope")
	state := c.Query("state")

	// Validate client
	var client models.OAuthClient
	if err := o.db.Where("id = ?", clientID).First(&client).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidClient})
		return
	}

	// Validate redirect URI when the client pins one
	if redirectURI == "" || (client.RedirectURI != "" && redirectURI != client.RedirectURI) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_redirect_uri"})
		return
	}

	// Generate authorization code
	code := uuid.New().String()
	authCode := &models.OAuthCode{
		Code:        code,
		ClientID:    clientID,
		UserID:      demoSubject,
		Scopes:      scope,
		RedirectURI: redirectURI,
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}

	if err := o.db.Create(authCode).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "code_generation_failed"})
		return
	}

	// Redirect back to the platform with the authorization code
	redirectURL := redirectURI + "?code=" + code
	if state != "" {
		redirectURL += "&state=" + state
	}

	c.Redirect(http.StatusFound, redirectURL)
}
