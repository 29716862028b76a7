package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"taxonomy-backend/internal/domain/category"
	"taxonomy-backend/internal/repository"
)

// Kind names used in logs and metrics.
const (
	KindScope        = "scope"
	KindCategory     = "category"
	KindCategoryItem = "category_item"
)

// ApplyRecorder receives one call per change batch applied to the cache.
type ApplyRecorder interface {
	RecordCacheApply(kind string, upserted, deleted int)
}

// ObserverOption configures an Observer.
type ObserverOption func(*Observer)

// WithLogger sets the observer logger.
func WithLogger(logger *zap.Logger) ObserverOption {
	return func(o *Observer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithApplyRecorder reports applied batches to recorder.
func WithApplyRecorder(recorder ApplyRecorder) ObserverOption {
	return func(o *Observer) { o.recorder = recorder }
}

// Observer applies the store's change stream to a Cache and re-raises each
// change once the cache reflects it. Handlers run outside the cache lock and
// may call back into the cache, but must not call Unsubscribe or Close: those
// wait for in-flight deliveries to finish.
type Observer struct {
	cache  *Cache
	source Source
	logger *zap.Logger

	recorder ApplyRecorder

	mu         sync.Mutex
	subscribed bool
	generation uint64
	subs       []repository.Subscription
	inflight   *sync.WaitGroup

	handlersMu       sync.RWMutex
	nextHandler      int
	scopeHandlers    map[int]func(category.ChangeEvent[category.Scope])
	categoryHandlers map[int]func(category.ChangeEvent[category.Category])
	itemHandlers     map[int]func(category.ChangeEvent[category.CategoryItem])
}

// NewObserver creates an unsubscribed observer feeding cache from source.
func NewObserver(cache *Cache, source Source, opts ...ObserverOption) (*Observer, error) {
	if cache == nil {
		return nil, emptyArgument("cache")
	}
	if err := source.validate(); err != nil {
		return nil, err
	}
	o := &Observer{
		cache:            cache,
		source:           source,
		logger:           zap.NewNop(),
		scopeHandlers:    make(map[int]func(category.ChangeEvent[category.Scope])),
		categoryHandlers: make(map[int]func(category.ChangeEvent[category.Category])),
		itemHandlers:     make(map[int]func(category.ChangeEvent[category.CategoryItem])),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Cache returns the cache the observer feeds.
func (o *Observer) Cache() *Cache { return o.cache }

// IsSubscribed reports whether the observer is attached to the store.
func (o *Observer) IsSubscribed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.subscribed
}

// LoadInitialData populates the cache from the source.
func (o *Observer) LoadInitialData(ctx context.Context) error {
	return o.cache.LoadInitialData(ctx, o.source)
}

// Subscribe attaches one store subscription per entity kind. Calling it
// while subscribed does nothing. On failure no subscription is left open.
func (o *Observer) Subscribe(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subscribed {
		return nil
	}

	o.generation++
	gen := o.generation
	o.inflight = &sync.WaitGroup{}
	var subs []repository.Subscription
	abort := func(err error) error {
		for _, s := range subs {
			_ = s.Close()
		}
		o.logger.Error("cache subscription failed", zap.Error(err))
		return err
	}

	s, err := o.source.Scopes.Subscribe(ctx, func(e category.ChangeEvent[category.Scope]) {
		done, ok := o.begin(gen)
		if !ok {
			return
		}
		defer done()
		o.cache.UpdateScopes(e.Upserted(), e.Deleted)
		o.recordApply(KindScope, len(e.Created)+len(e.Updated), len(e.Deleted))
		raise(&o.handlersMu, o.scopeHandlers, e)
	})
	if err != nil {
		return abort(err)
	}
	subs = append(subs, s)

	s, err = o.source.Categories.Subscribe(ctx, func(e category.ChangeEvent[category.Category]) {
		done, ok := o.begin(gen)
		if !ok {
			return
		}
		defer done()
		o.cache.UpdateCategories(e.Upserted(), e.Deleted)
		o.recordApply(KindCategory, len(e.Created)+len(e.Updated), len(e.Deleted))
		raise(&o.handlersMu, o.categoryHandlers, e)
	})
	if err != nil {
		return abort(err)
	}
	subs = append(subs, s)

	s, err = o.source.CategoryItems.Subscribe(ctx, func(e category.ChangeEvent[category.CategoryItem]) {
		done, ok := o.begin(gen)
		if !ok {
			return
		}
		defer done()
		o.cache.UpdateCategoryItems(e.Upserted(), e.Deleted)
		o.recordApply(KindCategoryItem, len(e.Created)+len(e.Updated), len(e.Deleted))
		raise(&o.handlersMu, o.itemHandlers, e)
	})
	if err != nil {
		return abort(err)
	}
	subs = append(subs, s)

	o.subs = subs
	o.subscribed = true
	o.logger.Debug("cache subscribed to store changes")
	return nil
}

// Unsubscribe detaches every store subscription and waits for deliveries
// already in progress. Once it returns, changes are neither applied nor
// raised. Calling it while unsubscribed does nothing.
func (o *Observer) Unsubscribe() error {
	o.mu.Lock()
	if !o.subscribed {
		o.mu.Unlock()
		return nil
	}

	o.subscribed = false
	o.generation++
	var firstErr error
	for _, s := range o.subs {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	o.subs = nil
	inflight := o.inflight
	o.inflight = nil
	o.mu.Unlock()

	inflight.Wait()
	o.logger.Debug("cache unsubscribed from store changes")
	return firstErr
}

// Close unsubscribes.
func (o *Observer) Close() error {
	return o.Unsubscribe()
}

// begin admits a delivery of subscription generation gen. The returned func
// marks it finished.
func (o *Observer) begin(gen uint64) (func(), bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.subscribed || o.generation != gen {
		return nil, false
	}
	o.inflight.Add(1)
	return o.inflight.Done, true
}

func (o *Observer) recordApply(kind string, upserted, deleted int) {
	if o.recorder != nil {
		o.recorder.RecordCacheApply(kind, upserted, deleted)
	}
}

// OnScopesChanged registers handler for applied scope changes and returns a
// function removing it.
func (o *Observer) OnScopesChanged(handler func(category.ChangeEvent[category.Scope])) (remove func()) {
	return register(o, o.scopeHandlers, handler)
}

// OnCategoriesChanged registers handler for applied category changes.
func (o *Observer) OnCategoriesChanged(handler func(category.ChangeEvent[category.Category])) (remove func()) {
	return register(o, o.categoryHandlers, handler)
}

// OnCategoryItemsChanged registers handler for applied item changes.
func (o *Observer) OnCategoryItemsChanged(handler func(category.ChangeEvent[category.CategoryItem])) (remove func()) {
	return register(o, o.itemHandlers, handler)
}

func register[T any](o *Observer, handlers map[int]func(category.ChangeEvent[T]), handler func(category.ChangeEvent[T])) func() {
	if handler == nil {
		return func() {}
	}
	o.handlersMu.Lock()
	defer o.handlersMu.Unlock()
	id := o.nextHandler
	o.nextHandler++
	handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			o.handlersMu.Lock()
			defer o.handlersMu.Unlock()
			delete(handlers, id)
		})
	}
}

func raise[T any](mu *sync.RWMutex, handlers map[int]func(category.ChangeEvent[T]), e category.ChangeEvent[T]) {
	mu.RLock()
	snapshot := make([]func(category.ChangeEvent[T]), 0, len(handlers))
	for _, h := range handlers {
		snapshot = append(snapshot, h)
	}
	mu.RUnlock()

	for _, h := range snapshot {
		h(e)
	}
}
