// Package config loads and validates the service configuration.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "taxonomy-backend/internal/errors"
)

// Environment is a deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Config is the complete service configuration.
type Config struct {
	Environment Environment `yaml:"environment" validate:"required,oneof=development staging production"`
	Server      Server      `yaml:"server"`
	Store       Store       `yaml:"store"`
	Cache       Cache       `yaml:"cache"`
	Events      Events      `yaml:"events"`
	Breaker     Breaker     `yaml:"breaker"`
	Tracing     Tracing     `yaml:"tracing"`
	Metrics     Metrics     `yaml:"metrics"`

	// LoadedFrom lists the sources applied, lowest priority first.
	LoadedFrom []string `yaml:"-"`
}

// Server configures the HTTP listener.
type Server struct {
	Port            int           `yaml:"port" validate:"required,min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// Store selects and configures the record store backend.
type Store struct {
	Backend    string `yaml:"backend" validate:"required,oneof=memory sqlite dynamodb"`
	SQLitePath string `yaml:"sqlite_path"`
	TableName  string `yaml:"table_name"`
	Region     string `yaml:"region"`
	PageSize   int    `yaml:"page_size" validate:"min=1,max=10000"`
}

// Cache configures the taxonomy cache and the HTTP response cache.
type Cache struct {
	CaseInsensitiveScopeNames bool          `yaml:"case_insensitive_scope_names"`
	ResponseCacheSize         int           `yaml:"response_cache_size" validate:"min=0"`
	ResponseCacheBytes        int64         `yaml:"response_cache_bytes" validate:"min=0"`
	ResponseCacheTTL          time.Duration `yaml:"response_cache_ttl" validate:"min=0"`
}

// Events configures forwarding of change sets to EventBridge.
type Events struct {
	Enabled bool   `yaml:"enabled"`
	BusName string `yaml:"bus_name"`
	Source  string `yaml:"source"`
}

// Breaker configures the store circuit breaker.
type Breaker struct {
	Enabled      bool          `yaml:"enabled"`
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	FailureRatio float64       `yaml:"failure_ratio" validate:"gte=0,lte=1"`
	MinRequests  uint32        `yaml:"min_requests"`
}

// Tracing configures OpenTelemetry export.
type Tracing struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// Metrics configures the Prometheus collector.
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace" validate:"required_if=Enabled true"`
}

// Validate checks struct tags and the rules that span fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return apperrors.Validation("INVALID_CONFIG", "configuration is invalid").
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}

	switch {
	case c.Store.Backend == BackendSQLite && c.Store.SQLitePath == "":
		return invalid("store.sqlite_path is required for the sqlite backend")
	case c.Store.Backend == BackendDynamoDB && c.Store.TableName == "":
		return invalid("store.table_name is required for the dynamodb backend")
	case c.Events.Enabled && c.Events.BusName == "":
		return invalid("events.bus_name is required when events are enabled")
	}
	return nil
}

func invalid(details string) error {
	return apperrors.Validation("INVALID_CONFIG", "configuration is invalid").WithDetails(details).Build()
}

// IsDevelopment reports whether the service runs in development.
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}
