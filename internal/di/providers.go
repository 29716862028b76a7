// Package di wires the service together with google/wire.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"taxonomy-backend/internal/cache"
	"taxonomy-backend/internal/config"
	"taxonomy-backend/internal/infrastructure/events"
	"taxonomy-backend/internal/infrastructure/observability"
	"taxonomy-backend/internal/infrastructure/persistence"
	"taxonomy-backend/internal/infrastructure/persistence/dynamodb"
	"taxonomy-backend/internal/infrastructure/persistence/memory"
	"taxonomy-backend/internal/infrastructure/persistence/sqlite"
	"taxonomy-backend/internal/infrastructure/responsecache"
	"taxonomy-backend/internal/interfaces/http/rest"
	"taxonomy-backend/internal/repository"
	"taxonomy-backend/internal/service/taxonomy"
)

// ProvideLogger creates the process logger.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideCollector creates the metrics collector.
func ProvideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(cfg.Metrics.Namespace)
}

// ProvideTracing installs the OTLP tracer provider when tracing is enabled.
// The provider is nil otherwise.
func ProvideTracing(cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	if !cfg.Tracing.Enabled {
		return nil, func() {}, nil
	}
	tp, err := observability.InitTracing(observability.TracingConfig{
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// ProvideAWSConfig loads the shared AWS configuration.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.Region))
}

// ProvideStore opens the configured backend and wraps it in the circuit
// breaker (when enabled) and the instrumentation decorator.
func ProvideStore(
	cfg *config.Config,
	awsCfg aws.Config,
	tp *observability.TracerProvider,
	collector *observability.Collector,
	logger *zap.Logger,
) (repository.Store, func(), error) {
	var (
		base    repository.Store
		cleanup = func() {}
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		base = memory.NewStore(logger)
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		base = s
		cleanup = func() {
			if err := s.Close(); err != nil {
				logger.Warn("closing sqlite store failed", zap.Error(err))
			}
		}
	case config.BackendDynamoDB:
		base = dynamodb.NewStore(awsdynamodb.NewFromConfig(awsCfg), cfg.Store.TableName, logger)
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	store := base
	if cfg.Breaker.Enabled {
		store = persistence.NewCircuitBreakerStore(store, persistence.CircuitBreakerConfig{
			Name:         "store-" + cfg.Store.Backend,
			MaxRequests:  cfg.Breaker.MaxRequests,
			Interval:     cfg.Breaker.Interval,
			Timeout:      cfg.Breaker.Timeout,
			FailureRatio: cfg.Breaker.FailureRatio,
			MinRequests:  cfg.Breaker.MinRequests,
		}, logger)
	}

	opts := []persistence.InstrumentOption{persistence.WithRecorder(collector)}
	if tp != nil {
		opts = append(opts, persistence.WithTracer(tp.Tracer()))
	}
	logger.Info("record store ready",
		zap.String("backend", cfg.Store.Backend),
		zap.Bool("breaker", cfg.Breaker.Enabled))
	return persistence.NewInstrumentedStore(store, logger, opts...), cleanup, nil
}

// ProvideAPI creates the typed repositories.
func ProvideAPI(cfg *config.Config, store repository.Store, logger *zap.Logger) *taxonomy.API {
	return taxonomy.NewAPI(store, logger, cfg.Store.PageSize)
}

// ProvideObserver creates the cache, subscribes it and loads it.
func ProvideObserver(
	ctx context.Context,
	cfg *config.Config,
	api *taxonomy.API,
	collector *observability.Collector,
	logger *zap.Logger,
) (*cache.Observer, func(), error) {
	c := cache.New(cache.WithCaseInsensitiveScopeNames(cfg.Cache.CaseInsensitiveScopeNames))
	observer, err := cache.NewObserver(c, api.CacheSource(),
		cache.WithLogger(logger),
		cache.WithApplyRecorder(collector))
	if err != nil {
		return nil, nil, err
	}
	if err := observer.Subscribe(ctx); err != nil {
		return nil, nil, err
	}
	if err := observer.LoadInitialData(ctx); err != nil {
		_ = observer.Close()
		return nil, nil, err
	}
	stats := c.Stats()
	logger.Info("taxonomy cache loaded",
		zap.Int("scopes", stats.Scopes),
		zap.Int("categories", stats.Categories),
		zap.Int("category_items", stats.CategoryItems))
	return observer, func() { _ = observer.Close() }, nil
}

// ProvideResponseCache creates the HTTP response cache.
func ProvideResponseCache(cfg *config.Config, collector *observability.Collector, logger *zap.Logger) *responsecache.MemoryCache {
	return responsecache.NewMemoryCache(
		cfg.Cache.ResponseCacheSize,
		cfg.Cache.ResponseCacheBytes,
		cfg.Cache.ResponseCacheTTL,
		logger,
		responsecache.WithHitRecorder(collector))
}

// EventForwarder is the live subscription forwarding store changes to
// EventBridge. Subscription is nil when forwarding is disabled.
type EventForwarder struct {
	Subscription repository.Subscription
}

// ProvideEventForwarder starts forwarding when events are enabled.
func ProvideEventForwarder(
	ctx context.Context,
	cfg *config.Config,
	awsCfg aws.Config,
	store repository.Store,
	logger *zap.Logger,
) (*EventForwarder, func(), error) {
	if !cfg.Events.Enabled {
		return &EventForwarder{}, func() {}, nil
	}
	publisher := events.NewEventBridgePublisher(awseventbridge.NewFromConfig(awsCfg), cfg.Events.BusName, cfg.Events.Source)
	sub, err := events.Forward(ctx, store, publisher, 5*time.Second, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("forwarding changes to eventbridge", zap.String("bus", cfg.Events.BusName))
	return &EventForwarder{Subscription: sub}, func() { _ = sub.Close() }, nil
}

// ProvideRouter builds the HTTP router.
func ProvideRouter(
	cfg *config.Config,
	observer *cache.Observer,
	responses *responsecache.MemoryCache,
	collector *observability.Collector,
	logger *zap.Logger,
) (*chi.Mux, func()) {
	deps := rest.Dependencies{
		Cache:    observer.Cache(),
		Observer: observer,
		Logger:   logger,
	}
	if cfg.Cache.ResponseCacheSize > 0 {
		deps.Responses = responses
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = collector
	}
	return rest.NewRouter(deps)
}
