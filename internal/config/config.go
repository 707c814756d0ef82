// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/citafacil/citafacil/internal/storage"
)

// MinSessionSecretLength is the shortest accepted token signing secret.
const MinSessionSecretLength = 32

// Config holds all application configuration.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Storage: memory, redis or postgres
	StorageBackend   string `env:"STORAGE_BACKEND" envDefault:"memory"`
	StorageNamespace string `env:"STORAGE_NAMESPACE" envDefault:"citaFacil"`
	RedisURL         string `env:"REDIS_URL"`
	DatabaseURL      string `env:"DATABASE_URL"`
	StorageTable     string `env:"STORAGE_TABLE" envDefault:"citafacil_kv"`

	// Session tokens
	SessionSecret string        `env:"SESSION_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// Appointment times are wall-clock times in this zone. Empty means the
	// process local zone.
	Timezone     string        `env:"TIMEZONE"`
	ReminderLead time.Duration `env:"REMINDER_LEAD" envDefault:"15m"`

	// Reason elaboration
	ElaborationBaseURL string  `env:"ELABORATION_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	ElaborationModel   string  `env:"ELABORATION_MODEL" envDefault:"gemini-2.0-flash"`
	ElaborationAPIKey  string  `env:"ELABORATION_API_KEY"`
	ElaborationRPS     float64 `env:"ELABORATION_RPS" envDefault:"1"`
	ElaborationBurst   int     `env:"ELABORATION_BURST" envDefault:"3"`

	// Optional webhook forwarding of notifications
	WebhookURL           string   `env:"WEBHOOK_URL"`
	WebhookSecret        string   `env:"WEBHOOK_SECRET"`
	WebhookEvents        []string `env:"WEBHOOK_EVENTS" envSeparator:"," envDefault:"reminder"`
	WebhookAllowInsecure bool     `env:"WEBHOOK_ALLOW_INSECURE" envDefault:"false"`

	// Comma-separated list of allowed origins (e.g., "http://localhost:3000,*.citafacil.app")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// Configuration errors.
var (
	ErrMissingRedis    = errors.New("REDIS_URL is required for the redis backend")
	ErrMissingDatabase = errors.New("DATABASE_URL is required for the postgres backend")
	ErrWeakSecret      = errors.New("SESSION_SECRET is too short")
	ErrInvalidTimezone = errors.New("TIMEZONE is not a known zone")
	ErrInvalidValue    = errors.New("invalid configuration value")
	ErrMissingWebhook  = errors.New("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
)

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Timezone)
	}
	return loc, nil
}

// WebhookEnabled reports whether notifications are forwarded.
func (c *Config) WebhookEnabled() bool {
	return c.WebhookURL != ""
}

// StorageOptions returns the options for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:     c.StorageBackend,
		RedisURL:    c.RedisURL,
		DatabaseURL: c.DatabaseURL,
		Table:       c.StorageTable,
	}
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case storage.BackendMemory:
	case storage.BackendRedis:
		if c.RedisURL == "" {
			return ErrMissingRedis
		}
	case storage.BackendPostgres:
		if c.DatabaseURL == "" {
			return ErrMissingDatabase
		}
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownBackend, c.StorageBackend)
	}

	if len(c.SessionSecret) < MinSessionSecretLength {
		return fmt.Errorf("%w: need at least %d characters", ErrWeakSecret, MinSessionSecretLength)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.AppPort <= 0 || c.AppPort > 65535 {
		return fmt.Errorf("%w: APP_PORT %d", ErrInvalidValue, c.AppPort)
	}
	if c.ReminderLead <= 0 {
		return fmt.Errorf("%w: REMINDER_LEAD %s", ErrInvalidValue, c.ReminderLead)
	}
	if c.ElaborationRPS < 0 || c.ElaborationBurst < 0 {
		return fmt.Errorf("%w: elaboration rate limit must not be negative", ErrInvalidValue)
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return ErrMissingWebhook
	}
	return nil
}

// Load reads an optional .env file, parses environment variables and
// validates the result. Variables already set in the environment win
// over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return parse(env.Options{})
}

// LoadFrom builds a Config from the given variables only.
func LoadFrom(environment map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
