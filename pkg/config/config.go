// Package config loads the dump's runtime configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Sternrassler/bioactivity-dump/pkg/client"
	"github.com/Sternrassler/bioactivity-dump/pkg/loader"
	"github.com/Sternrassler/bioactivity-dump/pkg/logging"
	"github.com/Sternrassler/bioactivity-dump/pkg/pagination"
	"github.com/Sternrassler/bioactivity-dump/pkg/record"
)

// MaxLimitPerPage is the largest page the API serves.
const MaxLimitPerPage = 500

// Config is the full runtime configuration.
type Config struct {
	// Extraction
	LimitPerPage int `envconfig:"LIMIT_PER_PAGE" default:"500"`
	MaxThreads   int `envconfig:"MAX_THREADS" default:"5"`
	NumberOfRows int `envconfig:"NUMBER_OF_ROWS" default:"0"`

	// Upstream API
	APIBaseURL      string        `envconfig:"API_BASE_URL" default:"https://drugtargetcommons.fimm.fi"`
	APIPath         string        `envconfig:"API_PATH" default:"/api/data/bioactivity/"`
	UserAgent       string        `envconfig:"USER_AGENT" default:"bioactivity-dump/1.0"`
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryMinBackoff time.Duration `envconfig:"RETRY_MIN_BACKOFF" default:"1s"`
	RetryMaxBackoff time.Duration `envconfig:"RETRY_MAX_BACKOFF" default:"5s"`

	// Database
	DBHost      string `envconfig:"DB_HOST" default:"localhost"`
	DBPort      int    `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" default:"postgres"`
	DBPassword  string `envconfig:"DB_PASSWORD"`
	DBName      string `envconfig:"DB_NAME" default:"bioactivity"`
	DBSSLMode   string `envconfig:"DB_SSLMODE" default:"disable"`
	TableName   string `envconfig:"TABLE_NAME" default:"bioactivities"`
	CommitEvery int    `envconfig:"COMMIT_EVERY" default:"1000"`

	// Checkpointing
	RedisURL      string        `envconfig:"REDIS_URL"`
	RunID         string        `envconfig:"RUN_ID"`
	CheckpointTTL time.Duration `envconfig:"CHECKPOINT_TTL" default:"24h"`

	// Observability
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty   bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.LimitPerPage <= 0 {
		errs = append(errs, fmt.Errorf("LIMIT_PER_PAGE must be > 0 (got %d)", c.LimitPerPage))
	}
	if c.LimitPerPage > MaxLimitPerPage {
		errs = append(errs, fmt.Errorf("LIMIT_PER_PAGE must be <= %d (got %d)", MaxLimitPerPage, c.LimitPerPage))
	}
	if c.MaxThreads <= 0 {
		errs = append(errs, fmt.Errorf("MAX_THREADS must be > 0 (got %d)", c.MaxThreads))
	}
	if c.NumberOfRows < 0 {
		errs = append(errs, fmt.Errorf("NUMBER_OF_ROWS must be >= 0 (got %d)", c.NumberOfRows))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be >= 0 (got %d)", c.MaxRetries))
	}
	if c.RetryMinBackoff < 0 || c.RetryMinBackoff > c.RetryMaxBackoff {
		errs = append(errs, fmt.Errorf("RETRY_MIN_BACKOFF (%s) must be between 0 and RETRY_MAX_BACKOFF (%s)",
			c.RetryMinBackoff, c.RetryMaxBackoff))
	}
	if c.CommitEvery < 0 {
		errs = append(errs, fmt.Errorf("COMMIT_EVERY must be >= 0 (got %d)", c.CommitEvery))
	}
	if c.TableName == "" {
		errs = append(errs, errors.New("TABLE_NAME must not be empty"))
	}
	if c.RedisURL != "" && c.RunID == "" {
		errs = append(errs, errors.New("RUN_ID is required when REDIS_URL is set"))
	}
	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("API_BASE_URL must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// DSN returns the Postgres connection URL.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return u.String()
}

// Client returns the API client configuration.
func (c *Config) Client() client.Config {
	cfg := client.DefaultConfig()
	cfg.BaseURL = c.APIBaseURL
	cfg.APIPath = c.APIPath
	cfg.UserAgent = c.UserAgent
	cfg.Timeout = c.HTTPTimeout
	cfg.MaxRetries = c.MaxRetries
	cfg.Retry = client.RetryConfig{
		MinBackoff: c.RetryMinBackoff,
		MaxBackoff: c.RetryMaxBackoff,
	}
	return cfg
}

// Pagination returns the extraction configuration.
func (c *Config) Pagination() pagination.Config {
	cfg := pagination.DefaultConfig()
	cfg.PageLimit = c.LimitPerPage
	cfg.Workers = c.MaxThreads
	cfg.TotalRows = c.NumberOfRows
	return cfg
}

// Loader returns upsert options keyed on the record's unique columns.
func (c *Config) Loader() loader.Options {
	return loader.Options{
		Replace:       true,
		UniqueColumns: record.UniqueColumns,
		CommitEvery:   c.CommitEvery,
	}
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}
