package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marketplacekit/ghl-adapter/internal/auth"
	"github.com/marketplacekit/ghl-adapter/internal/models"
	log "github.com/sirupsen/logrus"
)

type SSOController struct {
	ssoKey string
}

// NewSSOController creates the controller decrypting SSO session payloads
// with the app's shared key.
func NewSSOController(ssoKey string) *SSOController {
	return &SSOController{ssoKey: ssoKey}
}

// DecryptSSO godoc
// @Summary Decrypt SSO session payload
// @Description Decrypt the encrypted session details the platform embeds in custom pages
// @Tags SSO
// @Accept json
// @Produce json
// @Param request body object{key=string} true "Encrypted SSO payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.APIError
// @Router /decrypt-sso [post]
func (sc *SSOController) DecryptSSO(c *gin.Context) {
	var req struct {
		Key string `json:"key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Key == "" {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Please send valid key"))
		return
	}

	data, err := auth.DecryptSSOData(req.Key, sc.ssoKey)
	if err != nil {
		// Fail closed; the error detail stays in the logs, not the response.
		log.Debugf("SSO decryption failed: %v", err)
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Invalid Key"))
		return
	}

	c.JSON(http.StatusOK, data)
}
