// Package responsecache memoises rendered HTTP responses in memory with LRU
// eviction and a TTL.
package responsecache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HitRecorder is told about every lookup.
type HitRecorder interface {
	RecordResponseCache(hit bool)
}

// MemoryCache is a thread-safe LRU cache bounded by item count and total
// bytes. Entries expire after the cache TTL.
type MemoryCache struct {
	mu          sync.Mutex
	items       map[string]*cacheItem
	lruList     *list.List
	maxItems    int
	maxMemory   int64
	ttl         time.Duration
	currentSize int64
	generation  uint64

	hits      int64
	misses    int64
	evictions int64

	recorder HitRecorder
	now      func() time.Time
	logger   *zap.Logger
}

type cacheItem struct {
	key        string
	value      []byte
	size       int64
	expiry     time.Time
	lruElement *list.Element
}

// Option configures a MemoryCache.
type Option func(*MemoryCache)

// WithHitRecorder reports hits and misses to r.
func WithHitRecorder(r HitRecorder) Option {
	return func(c *MemoryCache) { c.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache creates a cache holding at most maxItems entries and
// maxMemory bytes of keys and values.
func NewMemoryCache(maxItems int, maxMemory int64, ttl time.Duration, logger *zap.Logger, opts ...Option) *MemoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &MemoryCache{
		items:     make(map[string]*cacheItem),
		lruList:   list.New(),
		maxItems:  maxItems,
		maxMemory: maxMemory,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached value for key.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	value, ok := c.get(key)
	if c.recorder != nil {
		c.recorder.RecordResponseCache(ok)
	}
	return value, ok
}

func (c *MemoryCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false
	}
	if c.now().After(item.expiry) {
		c.removeItem(item)
		c.misses++
		return nil, false
	}

	c.lruList.MoveToFront(item.lruElement)
	c.hits++

	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, true
}

// Set stores value under key, evicting least recently used entries as
// needed. Values larger than the whole cache are not stored.
func (c *MemoryCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

// Generation counts calls to Clear. A value rendered from state read after
// Generation returned g may be stored with SetIfGeneration(key, value, g).
func (c *MemoryCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetIfGeneration stores value only if Clear has not run since gen was read,
// and reports whether it did.
func (c *MemoryCache) SetIfGeneration(key string, value []byte, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	return c.set(key, value)
}

func (c *MemoryCache) set(key string, value []byte) bool {
	itemSize := int64(len(key) + len(value))
	if itemSize > c.maxMemory {
		c.logger.Debug("response too large for cache",
			zap.String("key", key),
			zap.Int64("size", itemSize),
			zap.Int64("max_memory", c.maxMemory))
		return false
	}

	if existing, exists := c.items[key]; exists {
		c.removeItem(existing)
	}

	for (c.currentSize+itemSize > c.maxMemory || len(c.items) >= c.maxItems) && c.lruList.Len() > 0 {
		c.removeItem(c.lruList.Back().Value.(*cacheItem))
		c.evictions++
	}

	item := &cacheItem{
		key:    key,
		value:  make([]byte, len(value)),
		size:   itemSize,
		expiry: c.now().Add(c.ttl),
	}
	copy(item.value, value)
	item.lruElement = c.lruList.PushFront(item)
	c.items[key] = item
	c.currentSize += itemSize
	return true
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, exists := c.items[key]; exists {
		c.removeItem(item)
	}
}

// Clear removes every key matching pattern and advances the generation,
// even when nothing matched. A pattern may start or end with "*"; "*" alone
// matches everything.
func (c *MemoryCache) Clear(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++

	var toDelete []*cacheItem
	for key, item := range c.items {
		if matchPattern(key, pattern) {
			toDelete = append(toDelete, item)
		}
	}
	for _, item := range toDelete {
		c.removeItem(item)
	}

	if len(toDelete) > 0 {
		c.logger.Debug("cleared response cache entries",
			zap.String("pattern", pattern),
			zap.Int("count", len(toDelete)))
	}
	return len(toDelete)
}

// removeItem must be called with the lock held.
func (c *MemoryCache) removeItem(item *cacheItem) {
	if item.lruElement != nil {
		c.lruList.Remove(item.lruElement)
	}
	delete(c.items, item.key)
	c.currentSize -= item.size
}

// Stats holds cache statistics
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Items     int
	Size      int64
	HitRate   float64
}

// GetStats returns cache statistics
func (c *MemoryCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := float64(0)
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Items:     len(c.items),
		Size:      c.currentSize,
		HitRate:   hitRate,
	}
}

func matchPattern(str, pattern string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(str, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(str, pattern[:len(pattern)-1])
	}
	return str == pattern
}

// StartCleanup removes expired entries every interval until ctx is done.
func (c *MemoryCache) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.cleanupExpired()
			}
		}
	}()
}

func (c *MemoryCache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int
	for _, item := range c.items {
		if now.After(item.expiry) {
			c.removeItem(item)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("cleaned up expired response cache entries", zap.Int("count", removed))
	}
}
