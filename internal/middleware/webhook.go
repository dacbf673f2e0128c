package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketplacekit/ghl-adapter/internal/models"
	"github.com/marketplacekit/ghl-adapter/internal/webhooks"
	log "github.com/sirupsen/logrus"
)

// webhookEventKey is where the authenticated event is stored in the context.
const webhookEventKey = "webhookEvent"

// WebhookAuth authenticates inbound platform webhooks before any handler
// runs. The raw body is captured before binding so signature verification
// sees the exact bytes that were signed.
func WebhookAuth(authenticator *webhooks.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				models.NewAPIError(models.ErrBadRequest, "failed to read request body"))
			return
		}
		// Restore the body for handlers that bind it themselves.
		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))

		event, rejection := authenticator.Authenticate(rawBody, c.GetHeader(webhooks.SignatureHeader), time.Now())
		if rejection != nil {
			log.WithFields(log.Fields{
				"code": rejection.Code,
				"path": c.Request.URL.Path,
			}).Warn("Webhook delivery rejected")
			c.AbortWithStatusJSON(rejection.HTTPStatus(),
				models.NewAPIError(rejection.Code, rejection.Detail))
			return
		}

		c.Set(webhookEventKey, event)
		c.Next()
	}
}

// WebhookEventFromContext returns the event stored by WebhookAuth.
func WebhookEventFromContext(c *gin.Context) (*models.WebhookEvent, bool) {
	value, exists := c.Get(webhookEventKey)
	if !exists {
		return nil, false
	}
	event, ok := value.(*models.WebhookEvent)
	return event, ok
}
