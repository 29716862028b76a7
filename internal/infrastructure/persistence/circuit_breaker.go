// Package persistence holds decorators shared by every record store
// backend.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

// CircuitBreakerConfig holds configuration for the store circuit breaker.
type CircuitBreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// FailureRatio and MinRequests decide when the breaker trips.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitBreakerConfig returns the default configuration.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  5,
		Interval:     30 * time.Second,
		Timeout:      60 * time.Second,
		FailureRatio: 0.8,
		MinRequests:  5,
	}
}

// CircuitBreakerStore stops calling the wrapped store while it keeps
// failing. Only EXTERNAL, INTERNAL and UNAVAILABLE errors count as failures; domain errors
// such as NOT_FOUND or CONFLICT are answers, not outages. Calls are never
// retried and errors from the wrapped store are returned unchanged. Calls
// rejected by an open breaker fail with UNAVAILABLE.
type CircuitBreakerStore struct {
	inner  repository.Store
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger
}

// NewCircuitBreakerStore wraps inner.
func NewCircuitBreakerStore(inner repository.Store, config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreakerStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: isSuccessful,
	})
	return &CircuitBreakerStore{inner: inner, cb: cb, name: config.Name, logger: logger}
}

func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeExternal, apperrors.ErrorTypeInternal, apperrors.ErrorTypeUnavailable:
		return false
	}
	return true
}

// State reports the breaker state.
func (s *CircuitBreakerStore) State() gobreaker.State {
	return s.cb.State()
}

func (s *CircuitBreakerStore) execute(operation string, fn func() error) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Debug("store call rejected", zap.String("breaker", s.name), zap.String("operation", operation))
		return apperrors.Unavailable("STORE_UNAVAILABLE", "record store is temporarily unavailable").
			WithOperation(operation).
			WithResource(s.name).
			WithCause(err).
			Build()
	}
	return err
}

func (s *CircuitBreakerStore) write(ctx context.Context, operation string, records []repository.Record,
	fn func(context.Context, []repository.Record) (repository.ChangeSet, error)) (repository.ChangeSet, error) {
	var cs repository.ChangeSet
	err := s.execute(operation, func() error {
		var err error
		cs, err = fn(ctx, records)
		return err
	})
	return cs, err
}

// Create implements repository.Store.
func (s *CircuitBreakerStore) Create(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, "Create", records, s.inner.Create)
}

// Update implements repository.Store.
func (s *CircuitBreakerStore) Update(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, "Update", records, s.inner.Update)
}

// CreateOrUpdate implements repository.Store.
func (s *CircuitBreakerStore) CreateOrUpdate(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, "CreateOrUpdate", records, s.inner.CreateOrUpdate)
}

// Delete implements repository.Store.
func (s *CircuitBreakerStore) Delete(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, "Delete", records, s.inner.Delete)
}

// Read implements repository.Store.
func (s *CircuitBreakerStore) Read(ctx context.Context, q repository.Query) ([]repository.Record, error) {
	var records []repository.Record
	err := s.execute("Read", func() error {
		var err error
		records, err = s.inner.Read(ctx, q)
		return err
	})
	return records, err
}

// ReadPaged implements repository.Store. The whole paged read counts as one
// call; errors returned by fn are passed through like store errors.
func (s *CircuitBreakerStore) ReadPaged(ctx context.Context, q repository.Query, pageSize int, fn func([]repository.Record) error) error {
	return s.execute("ReadPaged", func() error {
		return s.inner.ReadPaged(ctx, q, pageSize, fn)
	})
}

// Count implements repository.Store.
func (s *CircuitBreakerStore) Count(ctx context.Context, f repository.Filter) (int64, error) {
	var n int64
	err := s.execute("Count", func() error {
		var err error
		n, err = s.inner.Count(ctx, f)
		return err
	})
	return n, err
}

// Subscribe implements repository.Store. Subscriptions bypass the breaker.
func (s *CircuitBreakerStore) Subscribe(ctx context.Context, f repository.Filter, handler repository.ChangeHandler) (repository.Subscription, error) {
	return s.inner.Subscribe(ctx, f, handler)
}
