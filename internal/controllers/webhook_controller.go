package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marketplacekit/ghl-adapter/internal/middleware"
	"github.com/marketplacekit/ghl-adapter/internal/models"
	"github.com/marketplacekit/ghl-adapter/internal/services"
	log "github.com/sirupsen/logrus"
)

type WebhookController struct {
	manager services.InstallationManager
}

// NewWebhookController creates the handler that runs after webhook
// authentication succeeded.
func NewWebhookController(manager services.InstallationManager) *WebhookController {
	return &WebhookController{manager: manager}
}

// HandleWebhook godoc
// @Summary Webhook event handler
// @Description Process an authenticated platform webhook delivery
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {object} models.APIError
// @Failure 409 {object} models.APIError
// @Router /example-webhook-handler [post]
func (wc *WebhookController) HandleWebhook(c *gin.Context) {
	event, ok := middleware.WebhookEventFromContext(c)
	if !ok {
		// The route is always registered behind WebhookAuth; reaching this
		// point without an event is a wiring bug.
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "webhook event missing from context"))
		return
	}

	log.WithFields(log.Fields{
		"webhookId": event.WebhookID,
		"type":      event.Type,
		"tenantId":  event.TenantID(),
	}).Info("Webhook delivery accepted")

	if event.Type == models.WebhookEventUninstall {
		if err := wc.manager.Uninstall(event.TenantID()); err != nil {
			c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "failed to remove installation"))
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed", "webhookId": event.WebhookID})
}
