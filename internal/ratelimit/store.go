// Package ratelimit enforces per-key fixed-window request ceilings backed
// by a shared counter store.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore is the narrow contract the limiter needs from a shared
// counter backend. Implementations must be safe for concurrent use from
// many gate instances.
type CounterStore interface {
	// Get returns the current value of a counter, 0 when absent.
	Get(ctx context.Context, key string) (int64, error)

	// Increment adds one to a counter and arranges for it to expire
	// after ttl, creating it at 1 when absent.
	Increment(ctx context.Context, key string, ttl time.Duration) error
}

// RedisCounterStore keeps counters in Redis so ceilings hold across
// horizontally replicated gate instances.
type RedisCounterStore struct {
	rdb    *redis.Client
	prefix string
}

type RedisCounterOption func(*RedisCounterStore)

func WithCounterPrefix(prefix string) RedisCounterOption {
	return func(s *RedisCounterStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func NewRedisCounterStore(rdb *redis.Client, opts ...RedisCounterOption) *RedisCounterStore {
	s := &RedisCounterStore{
		rdb:    rdb,
		prefix: "ratelimit",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, s.prefix+":"+key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string, ttl time.Duration) error {
	full := s.prefix + ":" + key

	pipe := s.rdb.Pipeline()
	pipe.Incr(ctx, full)
	if ttl > 0 {
		pipe.Expire(ctx, full, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Ping reports whether the underlying Redis connection is usable. Used by
// the health endpoint.
func (s *RedisCounterStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
