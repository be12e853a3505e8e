package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Redis is a Redis-backed cache with the same contract as Cache. Values are
// stored as JSON under prefix:key with the TTL applied server-side; eviction
// is left to Redis' own maxmemory policy.
type Redis[V any] struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

// NewRedis creates a Redis-backed cache.
func NewRedis[V any](rdb *redis.Client, prefix string, ttl time.Duration) *Redis[V] {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis[V]{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis[V]) key(key string) string {
	return r.prefix + ":" + key
}

// Get returns the cached value if present. Redis errors read as misses so a
// cache outage degrades to recomputation, never to request failure.
func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	data, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false
	}
	return v, true
}

// Set stores a value with the configured TTL.
func (r *Redis[V]) Set(ctx context.Context, key string, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	if err := r.rdb.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// GetOrCompute returns the cached value, or runs compute once per key across
// concurrent callers in this process and caches the result.
func (r *Redis[V]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (V, error)) (V, bool, error) {
	if v, ok := r.Get(ctx, key); ok {
		return v, true, nil
	}

	var zero V
	res, err, _ := r.group.Do(key, func() (any, error) {
		if v, ok := r.Get(ctx, key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return zero, err
		}
		_ = r.Set(ctx, key, v) // best effort; the computed value still serves this request
		return v, nil
	})
	if err != nil {
		return zero, false, err
	}
	return res.(V), false, nil
}
