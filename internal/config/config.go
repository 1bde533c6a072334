package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	App      AppConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	BaseURL         string // Prefix for generated short URLs
}

// StoreConfig selects the link store backend
type StoreConfig struct {
	Driver     string
	SQLitePath string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL time.Duration
	// FlushCacheOnStart drops every cached link before serving.
	FlushCacheOnStart bool
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Environment          string
	LogLevel             string
	ShortCodeLength      int
	ShortCodeMaxAttempts int
	RateLimitEnabled     bool
	RateLimitPerMinute   int
	EnableMetrics        bool
	ClickRecordTimeout   time.Duration
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	port := getEnv("SERVER_PORT", "8080")

	cfg := &Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     parseDuration("SERVER_READ_TIMEOUT", "10s"),
			WriteTimeout:    parseDuration("SERVER_WRITE_TIMEOUT", "10s"),
			IdleTimeout:     parseDuration("SERVER_IDLE_TIMEOUT", "120s"),
			ShutdownTimeout: parseDuration("SERVER_SHUTDOWN_TIMEOUT", "30s"),
			BaseURL:         strings.TrimRight(getEnv("BASE_URL", "http://localhost:"+port), "/"),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
			SQLitePath: getEnv("SQLITE_PATH", "file:shortlink.db"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "shortlink"),
			Password:        getEnv("DB_PASSWORD", "dev_password_123"),
			DBName:          getEnv("DB_NAME", "shortlink"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Redis: RedisConfig{
			Enabled:  parseBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt("REDIS_DB", 0),
			CacheTTL: parseDuration("REDIS_CACHE_TTL", "1h"),

			FlushCacheOnStart: parseBool("REDIS_FLUSH_CACHE_ON_START", false),
		},
		App: AppConfig{
			Environment:          getEnv("APP_ENV", "development"),
			LogLevel:             getEnv("LOG_LEVEL", "info"),
			ShortCodeLength:      parseInt("SHORT_CODE_LENGTH", 6),
			ShortCodeMaxAttempts: parseInt("SHORT_CODE_MAX_ATTEMPTS", 5),
			RateLimitEnabled:     parseBool("RATE_LIMIT_ENABLED", true),
			RateLimitPerMinute:   parseInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 100),
			EnableMetrics:        parseBool("ENABLE_METRICS", true),
			ClickRecordTimeout:   parseDuration("CLICK_RECORD_TIMEOUT", "5s"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Driver != DriverPostgres && c.Store.Driver != DriverSQLite {
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Store.Driver))
	}
	if c.Store.Driver == DriverSQLite && c.Store.SQLitePath == "" {
		errs = append(errs, errors.New("SQLITE_PATH must not be empty"))
	}
	if c.App.ShortCodeLength < 1 || c.App.ShortCodeLength > 32 {
		errs = append(errs, fmt.Errorf("SHORT_CODE_LENGTH must be between 1 and 32, got %d", c.App.ShortCodeLength))
	}
	if c.App.ShortCodeMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("SHORT_CODE_MAX_ATTEMPTS must be positive, got %d", c.App.ShortCodeMaxAttempts))
	}
	if c.App.RateLimitEnabled && c.App.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive, got %d", c.App.RateLimitPerMinute))
	}
	if c.App.ClickRecordTimeout <= 0 {
		errs = append(errs, errors.New("CLICK_RECORD_TIMEOUT must be positive"))
	}
	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.Server.BaseURL))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV is production.
func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address in host:port format
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		// Fall back to the default on malformed input
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}
