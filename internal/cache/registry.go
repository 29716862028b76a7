package cache

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Entry is a cache together with the observer keeping it current.
type Entry struct {
	Cache    *Cache
	Observer *Observer
}

// Registry holds one subscribed and loaded cache per store connection key.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	logger   *zap.Logger
	options  []Option
	observer []ObserverOption
}

// NewRegistry creates an empty registry. opts apply to every cache it
// creates, observerOpts to every observer.
func NewRegistry(logger *zap.Logger, opts []Option, observerOpts ...ObserverOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries:  make(map[string]*Entry),
		logger:   logger,
		options:  opts,
		observer: append([]ObserverOption{WithLogger(logger)}, observerOpts...),
	}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry. Prefer passing a Registry or
// Cache explicitly; Default exists for entry points without wiring.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(nil, nil)
	})
	return defaultRegistry
}

// GetOrCreate returns the entry for key, creating it on first use: the new
// cache is subscribed before it is loaded so no change between the two is
// lost.
func (r *Registry) GetOrCreate(ctx context.Context, key string, source Source) (*Entry, error) {
	if key == "" {
		return nil, emptyArgument("registry key")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e, nil
	}

	c := New(r.options...)
	o, err := NewObserver(c, source, r.observer...)
	if err != nil {
		return nil, err
	}
	if err := o.Subscribe(ctx); err != nil {
		return nil, err
	}
	if err := o.LoadInitialData(ctx); err != nil {
		_ = o.Unsubscribe()
		return nil, err
	}

	e := &Entry{Cache: c, Observer: o}
	r.entries[key] = e
	r.logger.Info("taxonomy cache created", zap.String("key", key), zap.Any("stats", c.Stats()))
	return e, nil
}

// Get returns the entry for key if it exists.
func (r *Registry) Get(key string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok
}

// Reset unsubscribes and forgets every entry.
func (r *Registry) Reset() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := e.Observer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
