package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marketplacekit/ghl-adapter/internal/ghl"
	"github.com/marketplacekit/ghl-adapter/internal/models"
	"github.com/marketplacekit/ghl-adapter/internal/services"
	log "github.com/sirupsen/logrus"
)

// installDashboardURL is where users land after completing an install.
const installDashboardURL = "https://app.gohighlevel.com/"

type InstallController struct {
	manager   services.InstallationManager
	registry  services.InstallationRegistry
	ghlClient *ghl.Client
}

// NewInstallController creates the controller handling the authorization
// callback and the example resource calls.
func NewInstallController(manager services.InstallationManager, registry services.InstallationRegistry, ghlClient *ghl.Client) *InstallController {
	return &InstallController{
		manager:   manager,
		registry:  registry,
		ghlClient: ghlClient,
	}
}

// AuthorizeHandler godoc
// @Summary OAuth authorization callback
// @Description Redeem the authorization code from the platform's redirect and record the installation
// @Tags Installation
// @Param code query string true "Authorization code"
// @Success 302
// @Failure 400 {object} models.APIError
// @Router /authorize-handler [get]
func (ic *InstallController) AuthorizeHandler(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "missing authorization code"))
		return
	}

	tenantID, err := ic.manager.CompleteAuthorization(c.Request.Context(), code)
	if err != nil {
		respondIntegrationError(c, err)
		return
	}

	log.WithField("tenantId", tenantID).Info("Authorization callback completed")
	c.Redirect(http.StatusFound, installDashboardURL)
}

// ExampleAPICall godoc
// @Summary Example company-scoped API call
// @Description Search users on the platform using the company's stored token
// @Tags Installation
// @Produce json
// @Param companyId query string true "Company ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.APIError
// @Router /example-api-call [get]
func (ic *InstallController) ExampleAPICall(c *gin.Context) {
	companyID := c.Query("companyId")
	if !ic.manager.CheckInstallationExists(companyID) {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotInstalled,
			"Installation for this company does not exist"))
		return
	}

	token, err := ic.manager.GetValidAccessToken(c.Request.Context(), companyID)
	if err != nil {
		respondIntegrationError(c, err)
		return
	}

	body, err := ic.ghlClient.Get(c.Request.Context(), token, "/users/search?companyId="+companyID)
	if err != nil {
		respondIntegrationError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// ExampleAPICallLocation godoc
// @Summary Example location-scoped API call
// @Description List contacts for a location, deriving a location token from the company installation when needed
// @Tags Installation
// @Produce json
// @Param companyId query string true "Company ID"
// @Param locationId query string true "Location ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} models.APIError
// @Failure 404 {object} models.APIError
// @Router /example-api-call-location [get]
func (ic *InstallController) ExampleAPICallLocation(c *gin.Context) {
	companyID := c.Query("companyId")
	locationID := c.Query("locationId")

	token, err := ic.manager.ResolveLocationToken(c.Request.Context(), companyID, locationID)
	if err != nil {
		respondIntegrationError(c, err)
		return
	}

	body, err := ic.ghlClient.Get(c.Request.Context(), token, "/contacts/?locationId="+locationID)
	if err != nil {
		respondIntegrationError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// ListInstallations godoc
// @Summary List installed tenant ids
// @Description Diagnostics endpoint listing every tenant with stored credentials
// @Tags Installation
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /installations [get]
func (ic *InstallController) ListInstallations(c *gin.Context) {
	ids := ic.registry.AllTenantIDs()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(ids),
		"tenantIds": ids,
	})
}

// respondIntegrationError maps the token lifecycle error taxonomy onto HTTP
// responses. Token values never appear in responses or logs.
func respondIntegrationError(c *gin.Context, err error) {
	var notInstalled *services.NotInstalledError
	var exchangeErr *ghl.AuthExchangeError
	var refreshErr *ghl.RefreshError
	var scopeErr *ghl.ScopeError
	var unavailable *ghl.UpstreamUnavailableError

	switch {
	case errors.As(err, &notInstalled):
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotInstalled, notInstalled.Error()))
	case errors.As(err, &exchangeErr):
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrAuthExchangeFailed, exchangeErr.Error()))
	case errors.As(err, &refreshErr):
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrRefreshFailed, refreshErr.Error()))
	case errors.As(err, &scopeErr):
		c.JSON(http.StatusForbidden, models.NewAPIError(models.ErrScopeRejected, scopeErr.Error()))
	case errors.As(err, &unavailable):
		c.JSON(http.StatusBadGateway, models.NewAPIError(models.ErrUpstreamUnavailable, "platform temporarily unavailable"))
	default:
		log.Errorf("Unexpected integration error: %v", err)
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "internal error"))
	}
}
