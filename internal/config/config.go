package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Create a new instance of the logger
// Configure it to log at the desired level
// and format it as JSON for structured logging
var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	environment := GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(logrus.DebugLevel)
	case "production":
		log.SetLevel(logrus.ErrorLevel)
	default:
		// Default to info level for other environments
		log.SetLevel(logrus.InfoLevel)
	}
}

// Config used for the application configuration, loading the input from environment variables
type Config struct {
	// Server Configuration
	Port int    `json:"port"`
	Host string `json:"host"`

	// Logging configuration
	LogLevel string `json:"log_level"`

	// Platform OAuth configuration
	GHLClientID     string `json:"ghl_client_id"`
	GHLClientSecret string `json:"ghl_client_secret"`
	GHLAPIBaseURL   string `json:"ghl_api_base_url"`

	// Webhook authentication
	GHLWebhookPublicKey    string        `json:"ghl_webhook_public_key"`
	WebhookFreshnessWindow time.Duration `json:"webhook_freshness_window"`
	WebhookReplayRetention time.Duration `json:"webhook_replay_retention"`

	// Token lifecycle
	TokenRefreshSkew time.Duration `json:"token_refresh_skew"`
	OAuthHTTPTimeout time.Duration `json:"oauth_http_timeout"`

	// SSO
	GHLAppSSOKey string `json:"ghl_app_sso_key"`

	// External-auth provider
	JWTSecret string `json:"jwt_secret"`

	// Database configuration
	DBDriver   string `json:"db_driver"`
	DBPath     string `json:"db_path"`
	DBHost     string `json:"db_host"`
	DBPort     string `json:"db_port"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`
}

// String returns a string representation of Config with sensitive data masked
func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %d, Host: %s, LogLevel: %s, GHLClientID: %s, GHLClientSecret: [REDACTED], GHLAPIBaseURL: %s, WebhookFreshnessWindow: %s, WebhookReplayRetention: %s, TokenRefreshSkew: %s, OAuthHTTPTimeout: %s, GHLAppSSOKey: [REDACTED], JWTSecret: [REDACTED], DBDriver: %s}",
		c.Port, c.Host, c.LogLevel, c.GHLClientID, c.GHLAPIBaseURL,
		c.WebhookFreshnessWindow, c.WebhookReplayRetention, c.TokenRefreshSkew, c.OAuthHTTPTimeout, c.DBDriver)
}

// LoadConfig read the proper configuration from environment variables and returns a Config struct
// It validates formats like GHL_API_BASE_URL and the webhook window relationship
// Returns an error if any required environment variable is missing or invalid
func LoadConfig() (*Config, error) {
	log.Info("Loading configuration from environment variables")
	port, err := strconv.Atoi(GetEnvWithDefault("APP_PORT", "8080"))
	if err != nil {
		return nil, err
	}

	baseURL := GetEnvWithDefault("GHL_API_BASE_URL", "https://services.leadconnectorhq.com")
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid GHL_API_BASE_URL format: %s", baseURL)
	}

	freshness, err := getEnvDuration("WEBHOOK_FRESHNESS_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	retention, err := getEnvDuration("WEBHOOK_REPLAY_RETENTION", time.Hour)
	if err != nil {
		return nil, err
	}
	// Retention must comfortably exceed the freshness window, otherwise a
	// timestamp-valid redelivery could be evicted before it is rejected.
	if retention < 2*freshness {
		return nil, errors.New("WEBHOOK_REPLAY_RETENTION must be at least twice WEBHOOK_FRESHNESS_WINDOW")
	}

	skew, err := getEnvDuration("TOKEN_REFRESH_SKEW", 60*time.Second)
	if err != nil {
		return nil, err
	}
	oauthTimeout, err := getEnvDuration("OAUTH_HTTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Port:                   port,
		Host:                   GetEnvWithDefault("APP_HOST", "localhost"),
		LogLevel:               GetEnvWithDefault("LOG_LEVEL", "info"),
		GHLClientID:            GetEnvWithDefault("GHL_CLIENT_ID", ""),
		GHLClientSecret:        GetEnvWithDefault("GHL_CLIENT_SECRET", ""),
		GHLAPIBaseURL:          baseURL,
		GHLWebhookPublicKey:    GetEnvWithDefault("GHL_WEBHOOK_PUBLIC_KEY", ""),
		WebhookFreshnessWindow: freshness,
		WebhookReplayRetention: retention,
		TokenRefreshSkew:       skew,
		OAuthHTTPTimeout:       oauthTimeout,
		GHLAppSSOKey:           GetEnvWithDefault("GHL_APP_SSO_KEY", ""),
		JWTSecret:              GetEnvWithDefault("JWT_SECRET", "secret"),
		DBDriver:               GetEnvWithDefault("DB_DRIVER", "sqlite"),
		DBPath:                 GetEnvWithDefault("DB_PATH", "adapter.sqlite"),
		DBHost:                 GetEnvWithDefault("DB_HOST", "localhost"),
		DBPort:                 GetEnvWithDefault("DB_PORT", "5432"),
		DBUser:                 GetEnvWithDefault("DB_USER", "user"),
		DBPassword:             GetEnvWithDefault("DB_PASSWORD", "password"),
		DBName:                 GetEnvWithDefault("DB_NAME", "ghl_adapter"),
		DBSSLMode:              GetEnvWithDefault("DB_SSLMODE", "disable"),
	}
	log.Infof("Configuration loaded: %s", config.String())
	return config, nil
}

// getEnvDuration reads a duration environment variable (Go duration syntax,
// e.g. "5m" or "90s"), falling back to the default when unset.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", key, value)
	}
	return d, nil
}

// Helper to get environment with default values
func GetEnvWithDefault(key, defaultValue string) string {
	log.Tracef("Getting environment variable: %s", key)
	value := os.Getenv(key)
	if value == "" {
		log.Warnf("Environment variable %s not set, using default value", key)
		return defaultValue
	}
	return value
}

// GetEnvAsType retrieves an environment variable and converts it to the specified type
// using generic type handling.
func GetEnvAsType[T any](key string, defaultValue T) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result T
	switch any(result).(type) {
	case int:
		intValue, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return any(intValue).(T)
	case string:
		return any(value).(T)
	case bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return any(boolValue).(T)
	default:
		return defaultValue // Fallback for unsupported types
	}
}
