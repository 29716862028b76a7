package persistence

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"taxonomy-backend/internal/repository"
)

// OperationRecorder receives one observation per store call.
type OperationRecorder interface {
	RecordStoreOperation(operation string, duration time.Duration, err error)
}

// InstrumentedStore traces, times and logs every call to the wrapped store.
type InstrumentedStore struct {
	inner         repository.Store
	tracer        trace.Tracer
	recorder      OperationRecorder
	logger        *zap.Logger
	slowThreshold time.Duration
}

// InstrumentOption configures an InstrumentedStore.
type InstrumentOption func(*InstrumentedStore)

// WithTracer sets the tracer. The global provider's tracer is the default.
func WithTracer(tracer trace.Tracer) InstrumentOption {
	return func(s *InstrumentedStore) { s.tracer = tracer }
}

// WithRecorder sets where operation metrics go.
func WithRecorder(recorder OperationRecorder) InstrumentOption {
	return func(s *InstrumentedStore) { s.recorder = recorder }
}

// WithSlowThreshold logs calls slower than d at warn level.
func WithSlowThreshold(d time.Duration) InstrumentOption {
	return func(s *InstrumentedStore) { s.slowThreshold = d }
}

// NewInstrumentedStore wraps inner.
func NewInstrumentedStore(inner repository.Store, logger *zap.Logger, opts ...InstrumentOption) *InstrumentedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &InstrumentedStore{
		inner:         inner,
		tracer:        otel.Tracer("taxonomy-backend/store"),
		logger:        logger.Named("store"),
		slowThreshold: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InstrumentedStore) observe(ctx context.Context, operation string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "store."+operation, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if s.recorder != nil {
		s.recorder.RecordStoreOperation(operation, duration, err)
	}

	fields := []zap.Field{zap.String("operation", operation), zap.Duration("duration", duration)}
	switch {
	case err != nil:
		s.logger.Debug("store call failed", append(fields, zap.Error(err))...)
	case s.slowThreshold > 0 && duration > s.slowThreshold:
		s.logger.Warn("slow store call", fields...)
	default:
		s.logger.Debug("store call", fields...)
	}
	return err
}

func (s *InstrumentedStore) write(ctx context.Context, operation string, records []repository.Record,
	fn func(context.Context, []repository.Record) (repository.ChangeSet, error)) (repository.ChangeSet, error) {
	var cs repository.ChangeSet
	err := s.observe(ctx, operation, []attribute.KeyValue{attribute.Int("store.records", len(records))}, func(ctx context.Context) error {
		var err error
		cs, err = fn(ctx, records)
		return err
	})
	return cs, err
}

// Create implements repository.Store.
func (s *InstrumentedStore) Create(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, "Create", records, s.inner.Create)
}

// Update implements repository.Store.
func (s *InstrumentedStore) Update(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, "Update", records, s.inner.Update)
}

// CreateOrUpdate implements repository.Store.
func (s *InstrumentedStore) CreateOrUpdate(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, "CreateOrUpdate", records, s.inner.CreateOrUpdate)
}

// Delete implements repository.Store.
func (s *InstrumentedStore) Delete(ctx context.Context, records []repository.Record) (repository.ChangeSet, error) {
	return s.write(ctx, "Delete", records, s.inner.Delete)
}

// Read implements repository.Store.
func (s *InstrumentedStore) Read(ctx context.Context, q repository.Query) ([]repository.Record, error) {
	var records []repository.Record
	attrs := []attribute.KeyValue{attribute.String("store.query", q.String())}
	err := s.observe(ctx, "Read", attrs, func(ctx context.Context) error {
		var err error
		records, err = s.inner.Read(ctx, q)
		return err
	})
	return records, err
}

// ReadPaged implements repository.Store.
func (s *InstrumentedStore) ReadPaged(ctx context.Context, q repository.Query, pageSize int, fn func([]repository.Record) error) error {
	attrs := []attribute.KeyValue{attribute.String("store.query", q.String()), attribute.Int("store.page_size", pageSize)}
	return s.observe(ctx, "ReadPaged", attrs, func(ctx context.Context) error {
		return s.inner.ReadPaged(ctx, q, pageSize, fn)
	})
}

// Count implements repository.Store.
func (s *InstrumentedStore) Count(ctx context.Context, f repository.Filter) (int64, error) {
	var n int64
	attrs := []attribute.KeyValue{attribute.String("store.query", repository.Where(f).String())}
	err := s.observe(ctx, "Count", attrs, func(ctx context.Context) error {
		var err error
		n, err = s.inner.Count(ctx, f)
		return err
	})
	return n, err
}

// Subscribe implements repository.Store.
func (s *InstrumentedStore) Subscribe(ctx context.Context, f repository.Filter, handler repository.ChangeHandler) (repository.Subscription, error) {
	var sub repository.Subscription
	err := s.observe(ctx, "Subscribe", nil, func(ctx context.Context) error {
		var err error
		sub, err = s.inner.Subscribe(ctx, f, handler)
		return err
	})
	return sub, err
}
