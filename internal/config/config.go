package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig
	App     AppConfig
	Backend BackendConfig
	Cache   CacheConfig
	Lending LendingConfig
	Notify  NotifyConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"keysaccounting-api"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Debug       bool     `envconfig:"APP_DEBUG" default:"false"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"API_KEYS" default:""`
	TimeZone    string   `envconfig:"APP_TIMEZONE" default:"Local"`
}

// BackendConfig selects and configures the grid holding the tables.
type BackendConfig struct {
	Type string `envconfig:"BACKEND_TYPE" default:"sqlite"` // sqlite, postgres, mysql or memory
	Path string `envconfig:"SQLITE_PATH" default:"./data/keys.db"`

	// PostgreSQL settings
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresName     string `envconfig:"POSTGRES_DB" default:"keys"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:""`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	// MySQL settings
	MySQLHost     string `envconfig:"MYSQL_HOST" default:"localhost"`
	MySQLPort     int    `envconfig:"MYSQL_PORT" default:"3306"`
	MySQLName     string `envconfig:"MYSQL_DB" default:"keys"`
	MySQLUser     string `envconfig:"MYSQL_USER" default:"root"`
	MySQLPassword string `envconfig:"MYSQL_PASSWORD" default:""`
}

// CacheConfig holds per-table TTLs and the invalidation bus.
type CacheConfig struct {
	KeysTTL      time.Duration `envconfig:"CACHE_TTL_KEYS" default:"5m"`
	EmployeesTTL time.Duration `envconfig:"CACHE_TTL_EMPLOYEES" default:"5m"`
	LedgerTTL    time.Duration `envconfig:"CACHE_TTL_LEDGER" default:"1m"`

	// Leave REDIS_HOST empty to run a single process without invalidation broadcast.
	RedisHost           string `envconfig:"REDIS_HOST" default:""`
	RedisPort           int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword       string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB             int    `envconfig:"REDIS_DB" default:"0"`
	InvalidationChannel string `envconfig:"CACHE_INVALIDATION_CHANNEL" default:"keys:cache:invalidation"`
}

// LendingConfig holds request and reminder timing.
type LendingConfig struct {
	PendingRequestTTL time.Duration `envconfig:"PENDING_REQUEST_TTL" default:"1h"`
	OverdueThreshold  time.Duration `envconfig:"OVERDUE_THRESHOLD" default:"72h"`
	ReminderInterval  time.Duration `envconfig:"REMINDER_INTERVAL" default:"24h"`
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	Channel string `envconfig:"NOTIFY_CHANNEL" default:"keys:notifications"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresDSN returns the PostgreSQL connection string.
func (b *BackendConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		b.PostgresUser, b.PostgresPassword, b.PostgresHost, b.PostgresPort, b.PostgresName, b.PostgresSSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (b *BackendConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		b.MySQLUser, b.MySQLPassword, b.MySQLHost, b.MySQLPort, b.MySQLName)
}

// Target returns the SQLite path or server DSN for the selected backend.
func (b *BackendConfig) Target() string {
	switch strings.ToLower(b.Type) {
	case "postgres":
		return b.PostgresDSN()
	case "mysql":
		return b.MySQLDSN()
	case "memory":
		return ""
	default:
		return b.Path
	}
}

// RedisEnabled reports whether a Redis host is configured.
func (c *CacheConfig) RedisEnabled() bool {
	return c.RedisHost != ""
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Location resolves the configured time zone for stored timestamps.
func (a *AppConfig) Location() (*time.Location, error) {
	if a.TimeZone == "" || a.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(a.TimeZone)
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend.Type) {
	case "sqlite", "postgres", "mysql", "memory":
	default:
		return fmt.Errorf("unsupported BACKEND_TYPE %q", c.Backend.Type)
	}
	if c.Lending.PendingRequestTTL <= 0 {
		return fmt.Errorf("PENDING_REQUEST_TTL must be positive")
	}
	if c.Lending.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive")
	}
	if c.App.IsProduction() && len(c.App.APIKeys) == 0 {
		return fmt.Errorf("API_KEYS must be set when APP_ENV=production")
	}
	if _, err := c.App.Location(); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
