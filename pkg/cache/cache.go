// Package cache provides bounded TTL caches shared across concurrent
// requests: an in-memory LRU and a Redis-backed variant. Both coalesce
// concurrent lookups for the same key so a cold-cache burst performs at most
// one underlying computation per key.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a thread-safe in-memory cache with LRU eviction and TTL expiry.
type Cache[V any] struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	group      singleflight.Group
	now        func() time.Time // for testing
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// New creates a cache holding at most maxEntries values for at most ttl each.
func New[V any](maxEntries int, ttl time.Duration) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache[V]{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the cached value if present and unexpired, marking it recently
// used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.now().After(e.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxEntries {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry[V]).key)
		}
	}
	c.entries[key] = c.order.PushFront(&entry[V]{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	})
}

// GetOrCompute returns the cached value, or runs compute exactly once per key
// across concurrent callers and caches the result. The second return reports
// whether this was a cache hit.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	var zero V
	res, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have filled the entry while we queued.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return zero, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		return zero, false, err
	}
	return res.(V), false, nil
}

// Len returns the number of live entries (expired ones included until they
// are touched or evicted).
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}
