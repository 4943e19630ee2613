package engine

import (
	"context"
	"sync"
	"time"
)

// Cache is a TTL key/value store. Expired entries are treated as absent
// and removed lazily on the access that observes them; there is no
// background sweeper.
type Cache[T any] struct {
	Clock func() time.Time

	mu         sync.Mutex
	defaultTTL time.Duration
	entries    map[string]cacheEntry[T]
	inflight   map[string]*inflightCall[T]
}

type cacheEntry[T any] struct {
	value     T
	createdAt time.Time
	expiresAt time.Time
}

type inflightCall[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// NewCache creates a cache whose entries default to the given TTL when
// Set is called without an explicit one.
func NewCache[T any](defaultTTL time.Duration) *Cache[T] {
	return &Cache[T]{
		defaultTTL: defaultTTL,
		entries:    make(map[string]cacheEntry[T]),
		inflight:   make(map[string]*inflightCall[T]),
	}
}

// Set stores a value expiring after ttl, or after the cache default when
// ttl is zero.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{value: value, createdAt: now, expiresAt: now.Add(ttl)}
	c.mu.Unlock()
}

// Get returns the stored value for key. An expired entry is deleted and
// reported as absent.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

// Has reports whether a live entry exists for key, expiring it as a side
// effect if its TTL has elapsed.
func (c *Cache[T]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.getLocked(key)
	return ok
}

// Delete removes the entry for key if present.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[T])
	c.mu.Unlock()
}

// Size sweeps expired entries and returns the live count. The sweep makes
// this O(n); callers polling size frequently pay for it.
func (c *Cache[T]) Size() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	return len(c.entries)
}

// GetOrSet returns the cached value for key, or invokes factory on a miss,
// stores the result, and returns it. Concurrent misses for the same key are
// served by a single factory invocation (single-flight): the factory
// typically performs a metered external call, and running it twice would
// double-charge the rate limiter. A factory error propagates to every
// waiting caller and nothing is cached.
func (c *Cache[T]) GetOrSet(ctx context.Context, key string, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if value, ok := c.getLocked(key); ok {
		c.mu.Unlock()
		return value, nil
	}
	if call, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.value, call.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
	call := &inflightCall[T]{done: make(chan struct{})}
	c.inflight[key] = call
	c.mu.Unlock()

	call.value, call.err = factory(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	if call.err == nil {
		effective := ttl
		if effective <= 0 {
			effective = c.defaultTTL
		}
		now := c.now()
		c.entries[key] = cacheEntry[T]{value: call.value, createdAt: now, expiresAt: now.Add(effective)}
	}
	c.mu.Unlock()
	close(call.done)

	return call.value, call.err
}

// getLocked implements lazy expiry. Caller holds c.mu.
func (c *Cache[T]) getLocked(key string) (T, bool) {
	entry, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return entry.value, true
}

func (c *Cache[T]) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
