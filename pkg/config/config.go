package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hallwayhq/console/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Identity provider (management API + OIDC login)
	IdP IdPConfig

	// Session cookies and lifetime
	Session SessionConfig

	// Redis cache configuration
	Cache CacheConfig

	// PostgreSQL configuration
	Database DatabaseConfig

	// Webhook delivery service
	Webhooks WebhooksConfig

	// S3 object storage for workspace branding assets
	Storage StorageConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// PublicURL is the externally reachable base URL, used for OIDC redirects.
	PublicURL string
}

// IdPConfig holds identity provider configuration
type IdPConfig struct {
	// Endpoint is the base URL of the identity provider.
	Endpoint string

	// Management API client credentials.
	ManagementClientID     string
	ManagementClientSecret string
	ManagementResource     string

	// OIDC application used for the browser login flow.
	AppClientID     string
	AppClientSecret string

	// Timeout applies to every management API call.
	Timeout time.Duration
}

// SessionConfig holds session cookie and lifetime configuration
type SessionConfig struct {
	CookieName    string
	OrgCookieName string
	CookieDomain  string
	CookieSecure  bool

	// TTL is the sliding session window; refreshed on every read.
	TTL time.Duration
}

// CacheConfig holds Redis cache configuration
type CacheConfig struct {
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// TTLs per logical key family.
	UserTTL         time.Duration
	MembershipTTL   time.Duration
	OrganizationTTL time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// WebhooksConfig holds delivery-service configuration
type WebhooksConfig struct {
	// Endpoint is the base URL of the webhook delivery service.
	Endpoint string
	// APIKey authenticates admin calls to the delivery service.
	APIKey  string
	Timeout time.Duration
}

// StorageConfig holds S3 configuration for branding assets
type StorageConfig struct {
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	// PublicBaseURL is the URL prefix under which uploaded objects are served.
	PublicBaseURL string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		IdP:           loadIdPConfig(),
		Session:       loadSessionConfig(),
		Cache:         loadCacheConfig(),
		Database:      loadDatabaseConfig(),
		Webhooks:      loadWebhooksConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CONSOLE_HOST", "0.0.0.0"),
		Port:            getEnv("CONSOLE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CONSOLE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CONSOLE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CONSOLE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CONSOLE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CONSOLE_HEALTH_PORT", "9090"),
		PublicURL:       getEnv("CONSOLE_PUBLIC_URL", "http://localhost:8080"),
	}
}

// loadIdPConfig loads identity provider configuration from environment
func loadIdPConfig() IdPConfig {
	return IdPConfig{
		Endpoint:               getEnv("CONSOLE_IDP_ENDPOINT", ""),
		ManagementClientID:     getEnv("CONSOLE_IDP_MGMT_CLIENT_ID", ""),
		ManagementClientSecret: getEnv("CONSOLE_IDP_MGMT_CLIENT_SECRET", ""),
		ManagementResource:     getEnv("CONSOLE_IDP_MGMT_RESOURCE", ""),
		AppClientID:            getEnv("CONSOLE_IDP_APP_CLIENT_ID", ""),
		AppClientSecret:        getEnv("CONSOLE_IDP_APP_CLIENT_SECRET", ""),
		Timeout:                getEnvDuration("CONSOLE_IDP_TIMEOUT", 10*time.Second),
	}
}

// loadSessionConfig loads session configuration from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		CookieName:    getEnv("CONSOLE_SESSION_COOKIE", "console_sid"),
		OrgCookieName: getEnv("CONSOLE_ORG_COOKIE", "console_org"),
		CookieDomain:  getEnv("CONSOLE_COOKIE_DOMAIN", ""),
		CookieSecure:  getEnvBool("CONSOLE_COOKIE_SECURE", true),
		TTL:           getEnvDuration("CONSOLE_SESSION_TTL", 24*time.Hour),
	}
}

// loadCacheConfig loads Redis cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		RedisURL:        getEnv("CONSOLE_REDIS_URL", "redis://localhost:6379"),
		RedisPassword:   getEnv("CONSOLE_REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("CONSOLE_REDIS_DB", 0),
		RedisMaxRetries: getEnvInt("CONSOLE_REDIS_MAX_RETRIES", 3),
		RedisPoolSize:   getEnvInt("CONSOLE_REDIS_POOL_SIZE", 10),
		UserTTL:         getEnvDuration("CONSOLE_CACHE_USER_TTL", 5*time.Minute),
		MembershipTTL:   getEnvDuration("CONSOLE_CACHE_MEMBERSHIP_TTL", 5*time.Minute),
		OrganizationTTL: getEnvDuration("CONSOLE_CACHE_ORG_TTL", 15*time.Minute),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("CONSOLE_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("CONSOLE_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("CONSOLE_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("CONSOLE_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("CONSOLE_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("CONSOLE_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}
}

// loadWebhooksConfig loads delivery-service configuration from environment
func loadWebhooksConfig() WebhooksConfig {
	return WebhooksConfig{
		Endpoint: getEnv("CONSOLE_WEBHOOKS_ENDPOINT", ""),
		APIKey:   getEnv("CONSOLE_WEBHOOKS_API_KEY", ""),
		Timeout:  getEnvDuration("CONSOLE_WEBHOOKS_TIMEOUT", 10*time.Second),
	}
}

// loadStorageConfig loads S3 configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		S3Endpoint:     getEnv("CONSOLE_S3_ENDPOINT", ""),
		S3Region:       getEnv("CONSOLE_S3_REGION", "us-east-1"),
		S3Bucket:       getEnv("CONSOLE_S3_BUCKET", ""),
		S3AccessKey:    getEnv("CONSOLE_S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("CONSOLE_S3_SECRET_KEY", ""),
		S3UsePathStyle: getEnvBool("CONSOLE_S3_USE_PATH_STYLE", false),
		PublicBaseURL:  getEnv("CONSOLE_S3_PUBLIC_BASE_URL", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("CONSOLE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CONSOLE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CONSOLE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CONSOLE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CONSOLE_OTEL_SERVICE_NAME", "console"),
		OTelServiceVersion: getEnv("CONSOLE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CONSOLE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Identity provider settings are required for session resolution
	if c.IdP.Endpoint == "" {
		return fmt.Errorf("identity provider endpoint is required")
	}
	if c.IdP.ManagementClientID == "" || c.IdP.ManagementClientSecret == "" {
		return fmt.Errorf("identity provider management credentials are required")
	}

	if c.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	// Webhook proxying is optional; if enabled, both settings must be set
	if c.Webhooks.Endpoint != "" && c.Webhooks.APIKey == "" {
		return fmt.Errorf("webhook delivery API key is required when endpoint is set")
	}

	// Logo storage is optional; if enabled, the bucket must be set
	if c.Storage.S3Endpoint != "" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required when S3 endpoint is set")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
