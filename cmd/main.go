package main

import (
	"fmt"
	"net/http"
	"time"

	_ "github.com/marketplacekit/ghl-adapter/docs" // Import generated docs
	"github.com/marketplacekit/ghl-adapter/internal/auth"
	"github.com/marketplacekit/ghl-adapter/internal/config"
	"github.com/marketplacekit/ghl-adapter/internal/controllers"
	"github.com/marketplacekit/ghl-adapter/internal/database"
	"github.com/marketplacekit/ghl-adapter/internal/ghl"
	"github.com/marketplacekit/ghl-adapter/internal/middleware"
	"github.com/marketplacekit/ghl-adapter/internal/models"
	"github.com/marketplacekit/ghl-adapter/internal/services"
	"github.com/marketplacekit/ghl-adapter/internal/webhooks"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

var (
	db                *gorm.DB
	configuration     *config.Config
	manager           services.InstallationManager
	registry          services.InstallationRegistry
	installController *controllers.InstallController
	webhookController *controllers.WebhookController
	ssoController     *controllers.SSOController
	profileController *controllers.ProfileController
	oauthService      *auth.OAuthService
	webhookAuth       *webhooks.Authenticator
)

// @title GHL OAuth Adapter
// @version 1.0
// @description OAuth2 integration adapter for the GoHighLevel platform: installation lifecycle, webhook authentication, SSO decryption and an external-auth provider.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// Load environment variables
	loadDotenvFile()

	// Initialize logger
	setUpLogger()

	// Load configuration
	configuration = loadConfig()

	// Initialize database connection
	setupDatabase(configuration)

	// Initialize the token lifecycle core
	registry = services.NewGormRegistry(db)
	ghlClient := ghl.NewClient(configuration.GHLAPIBaseURL, configuration.GHLClientID,
		configuration.GHLClientSecret, ghl.WithTimeout(configuration.OAuthHTTPTimeout))
	manager = services.NewInstallationManager(registry, ghlClient, configuration.TokenRefreshSkew)

	// Initialize webhook authentication
	setupWebhookAuthenticator(configuration)

	// Initialize the external-auth provider and controllers
	oauthService = auth.NewOAuthService(db, configuration.JWTSecret)
	installController = controllers.NewInstallController(manager, registry, ghlClient)
	webhookController = controllers.NewWebhookController(manager)
	ssoController = controllers.NewSSOController(configuration.GHLAppSSOKey)
	profileController = controllers.NewProfileController(db)

	// Initialize Gin router
	var router *gin.Engine = setupRouter()

	// Start the server
	log.Infof("Starting server on %s:%d", configuration.Host, configuration.Port)
	router.Run(fmt.Sprintf("%v:%d", configuration.Host, configuration.Port))
}

// checkPanicErr checks if an error occurred and panics if it did
func checkPanicErr(err error) {
	if err != nil {
		panic(err)
	}
}

// loadDotenvFile loads environment variables from a .env file
// If the file is not found, it will log a warning and use system environment variables
func loadDotenvFile() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, using system environment variables")
	}
}

// setUpLogger initializes the logger with a JSON formatter and sets the log level based on the environment
func setUpLogger() {
	log.SetFormatter(&log.JSONFormatter{})
	environment := config.GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(log.DebugLevel)
	case "production":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// loadConfig loads the application configuration from environment variables
// It returns a Config struct or panics if there is an error
func loadConfig() *config.Config {
	log.Info("Loading configuration from environment variables")
	conf, err := config.LoadConfig()
	checkPanicErr(err)
	return conf
}

// setupDatabase initializes the database connection and migrates the schema
func setupDatabase(conf *config.Config) *gorm.DB {
	var err error
	db, err = database.InitDatabase(database.FromAppConfig(conf))
	checkPanicErr(err)

	// Installation registry
	checkPanicErr(db.AutoMigrate(&models.Installation{}))
	// External-auth provider stores and profile intake
	checkPanicErr(db.AutoMigrate(&models.OAuthClient{}, &models.OAuthCode{}, &models.OAuthToken{}, &models.UserProfile{}))

	return db
}

// setupWebhookAuthenticator builds the webhook pipeline from the configured
// platform public key. Without a key the webhook route stays unregistered:
// accepting unverified deliveries is worse than accepting none.
func setupWebhookAuthenticator(conf *config.Config) {
	if conf.GHLWebhookPublicKey == "" {
		log.Warn("GHL_WEBHOOK_PUBLIC_KEY not set, webhook endpoint disabled")
		return
	}

	guard := webhooks.NewReplayGuard(conf.WebhookReplayRetention)
	authenticator, err := webhooks.NewAuthenticator(conf.GHLWebhookPublicKey, conf.WebhookFreshnessWindow, guard)
	checkPanicErr(err)
	webhookAuth = authenticator
}

// setupRouter initializes the Gin router and sets up the routes
// It returns the configured router
func setupRouter() *gin.Engine {
	// Initialize Gin router
	router := gin.Default()

	// Define routes
	setupRoutes(router)

	return router
}

// setupRoutes defines the routes for the Gin router
func setupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", healthCheckHandler)

	// Installation lifecycle and example platform calls
	router.GET("/authorize-handler", installController.AuthorizeHandler)
	router.GET("/example-api-call", installController.ExampleAPICall)
	router.GET("/example-api-call-location", installController.ExampleAPICallLocation)
	router.GET("/installations", installController.ListInstallations)

	// Webhook intake, authenticated before any handler runs
	if webhookAuth != nil {
		router.POST("/example-webhook-handler",
			middleware.WebhookAuth(webhookAuth), webhookController.HandleWebhook)
	}

	// SSO session decryption for custom pages
	router.POST("/decrypt-sso", ssoController.DecryptSSO)

	// Profile intake from the platform custom page
	router.POST("/api/user/profile", profileController.SaveProfile)

	// External-auth provider endpoints
	authGroup := router.Group("/auth")
	{
		authGroup.GET("/authorize", oauthService.HandleAuthorize)
		authGroup.POST("/token", oauthService.HandleToken)
		authGroup.POST("/refresh", oauthService.HandleRefresh)

		protected := authGroup.Group("/test")
		protected.Use(middleware.BearerAuth([]byte(configuration.JWTSecret)))
		{
			protected.GET("", authTestHandler)
			protected.POST("", authTestHandler)
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// authTestHandler lets the platform verify issued external-auth credentials
// @Summary Test external-auth credentials
// @Description Validate a Bearer token minted by the external-auth provider
// @Tags ExternalAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Security BearerAuth
// @Router /auth/test [get]
func authTestHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Authentication successful",
		"user_id":   c.GetString("subject"),
		"client_id": c.GetString("clientID"),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// healthCheckHandler handles the health check endpoint
// @Summary Health check
// @Description Check if the service is running
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "ghl-adapter",
	})
}
