package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "TAXONOMY_"

// Loader builds a Config from, lowest priority first: defaults, base.yaml,
// <environment>.yaml, local.yaml (development only) and TAXONOMY_*
// environment variables.
type Loader struct {
	basePath    string
	environment Environment
	getenv      func(string) string
}

// NewLoader creates a loader reading files from basePath.
func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	return &Loader{basePath: basePath, environment: env, getenv: os.Getenv}
}

// BasePath returns the directory configuration files are read from.
func (l *Loader) BasePath() string {
	return l.basePath
}

// Load loads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults(l.environment)
	cfg.LoadedFrom = []string{"defaults"}

	files := []string{"base", string(l.environment)}
	if l.environment == Development {
		files = append(files, "local")
	}
	for _, name := range files {
		path, err := l.loadFile(name, cfg)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", name, err)
		}
		cfg.LoadedFrom = append(cfg.LoadedFrom, path)
	}

	if err := l.loadEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadFile(name string, cfg *Config) (string, error) {
	for _, ext := range []string{"yaml", "yml"} {
		path := filepath.Join(l.basePath, name+"."+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return path, nil
	}
	return "", fs.ErrNotExist
}

func (l *Loader) loadEnvironmentVariables(cfg *Config) error {
	var errs []error
	str := func(key string, target *string) {
		if val := l.getenv(EnvPrefix + key); val != "" {
			*target = val
		}
	}
	integer := func(key string, target *int) {
		if val := l.getenv(EnvPrefix + key); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*target = n
		}
	}
	boolean := func(key string, target *bool) {
		if val := l.getenv(EnvPrefix + key); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*target = b
		}
	}
	duration := func(key string, target *time.Duration) {
		if val := l.getenv(EnvPrefix + key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*target = d
		}
	}

	integer("SERVER_PORT", &cfg.Server.Port)
	duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)

	str("STORE_BACKEND", &cfg.Store.Backend)
	str("SQLITE_PATH", &cfg.Store.SQLitePath)
	str("TABLE_NAME", &cfg.Store.TableName)
	integer("PAGE_SIZE", &cfg.Store.PageSize)
	if val := l.getenv("AWS_REGION"); val != "" {
		cfg.Store.Region = val
	}
	str("REGION", &cfg.Store.Region)

	boolean("CASE_INSENSITIVE_SCOPE_NAMES", &cfg.Cache.CaseInsensitiveScopeNames)
	integer("RESPONSE_CACHE_SIZE", &cfg.Cache.ResponseCacheSize)
	duration("RESPONSE_CACHE_TTL", &cfg.Cache.ResponseCacheTTL)

	boolean("EVENTS_ENABLED", &cfg.Events.Enabled)
	str("EVENT_BUS_NAME", &cfg.Events.BusName)

	boolean("BREAKER_ENABLED", &cfg.Breaker.Enabled)

	boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	str("OTLP_ENDPOINT", &cfg.Tracing.Endpoint)

	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)

	return errors.Join(errs...)
}

// Defaults returns the built-in configuration for env.
func Defaults(env Environment) *Config {
	cfg := &Config{
		Environment: env,
		Server: Server{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: Store{
			Backend:    BackendMemory,
			SQLitePath: "taxonomy.db",
			TableName:  "taxonomy-" + strings.ToLower(string(env)),
			Region:     "us-east-1",
			PageSize:   500,
		},
		Cache: Cache{
			CaseInsensitiveScopeNames: true,
			ResponseCacheSize:         1000,
			ResponseCacheBytes:        16 << 20,
			ResponseCacheTTL:          5 * time.Minute,
		},
		Events: Events{
			BusName: "default",
			Source:  "taxonomy",
		},
		Breaker: Breaker{
			MaxRequests:  5,
			Interval:     30 * time.Second,
			Timeout:      60 * time.Second,
			FailureRatio: 0.8,
			MinRequests:  5,
		},
		Tracing: Tracing{
			Endpoint:   "localhost:4317",
			SampleRate: 1.0,
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "taxonomy",
		},
	}
	if env == Production {
		cfg.Tracing.SampleRate = 0.01
		cfg.Breaker.Enabled = true
	}
	return cfg
}

// EnvironmentFromEnv reads TAXONOMY_ENV, defaulting to development.
func EnvironmentFromEnv() Environment {
	if env := os.Getenv(EnvPrefix + "ENV"); env != "" {
		return Environment(strings.ToLower(env))
	}
	return Development
}

// Load loads the configuration for the environment named by TAXONOMY_ENV
// from dir.
func Load(dir string) (*Config, error) {
	return NewLoader(dir, EnvironmentFromEnv()).Load()
}
