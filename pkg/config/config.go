package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	QuickBooks QuickBooksConfig
	Sync       SyncConfig
	JWT        JWTConfig
	Log        LogConfig
	Metrics    MetricsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// QuickBooksConfig holds the OAuth2 app settings for QuickBooks Online
type QuickBooksConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Environment  string // "sandbox" or "production"
	MinorVersion string
	AuthBaseURL  string
	TokenURL     string
	APIBaseURL   string
	Timeout      time.Duration
}

// APIHost returns the QuickBooks API base URL for the configured environment
func (c *QuickBooksConfig) APIHost() string {
	if c.APIBaseURL != "" {
		return c.APIBaseURL
	}
	if c.Environment == "production" {
		return "https://quickbooks.api.intuit.com"
	}
	return "https://sandbox-quickbooks.api.intuit.com"
}

// SyncConfig holds the sync scheduler settings
type SyncConfig struct {
	Interval       time.Duration
	InstantTimeout time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	SigningKey     string
	ExpirationTime time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	Prefix string
}

// Load loads the application configuration from environment variables
func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "paleta"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnv("DB_LOG_LEVEL", "warn"),
		},
		QuickBooks: QuickBooksConfig{
			ClientID:     getEnv("QB_CLIENT_ID", ""),
			ClientSecret: getEnv("QB_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("QB_REDIRECT_URI", "http://localhost:8080/api/quickbooks/callback"),
			Environment:  getEnv("QB_ENVIRONMENT", "sandbox"),
			MinorVersion: getEnv("QB_MINOR_VERSION", "65"),
			AuthBaseURL:  getEnv("QB_AUTH_BASE_URL", "https://appcenter.intuit.com/connect/oauth2"),
			TokenURL:     getEnv("QB_TOKEN_URL", "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"),
			APIBaseURL:   getEnv("QB_API_BASE_URL", ""),
			Timeout:      getEnvAsDuration("QB_HTTP_TIMEOUT", 30*time.Second),
		},
		Sync: SyncConfig{
			Interval:       getEnvAsDuration("SYNC_INTERVAL", 1*time.Hour),
			InstantTimeout: getEnvAsDuration("SYNC_INSTANT_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			SigningKey:     getEnv("JWT_SIGNING_KEY", "paletasecretkey"),
			ExpirationTime: getEnvAsDuration("JWT_EXPIRATION", 24*time.Hour),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "paleta"),
		},
	}, nil
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
