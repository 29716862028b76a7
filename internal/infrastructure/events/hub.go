// Package events provides change notification plumbing: the in-process hub
// that store implementations use to serve subscriptions, and publishers that
// forward change sets to EventBridge.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"taxonomy-backend/internal/repository"
)

// Hub fans change sets out to filtered subscribers. Handlers run on the
// publishing goroutine, after the store has committed the write.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscription
	logger *zap.Logger
}

type subscription struct {
	id      uint64
	filter  repository.Filter
	handler repository.ChangeHandler
	hub     *Hub
	closed  atomic.Bool
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[uint64]*subscription),
		logger: logger,
	}
}

// Subscribe registers handler for the changes matching f.
func (h *Hub) Subscribe(_ context.Context, f repository.Filter, handler repository.ChangeHandler) (repository.Subscription, error) {
	if f == nil {
		f = repository.True()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &subscription{id: h.nextID, filter: f, handler: handler, hub: h}
	h.subs[sub.id] = sub

	h.logger.Debug("subscription opened", zap.Uint64("id", sub.id), zap.String("filter", f.String()))
	return sub, nil
}

// Publish delivers cs to every open subscription whose filter matches at
// least one record.
func (h *Hub) Publish(cs repository.ChangeSet) {
	if cs.IsEmpty() {
		return
	}

	h.mu.RLock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		filtered := cs.Filtered(s.filter)
		if filtered.IsEmpty() {
			continue
		}
		s.deliver(filtered)
	}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (s *subscription) deliver(cs repository.ChangeSet) {
	if s.closed.Load() {
		return
	}
	s.handler(cs)
}

// Close removes the subscription. Deliveries that start afterwards skip it.
func (s *subscription) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()

	s.hub.logger.Debug("subscription closed", zap.Uint64("id", s.id))
	return nil
}
