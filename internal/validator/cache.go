package validator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache keeps decoded results for recently seen IDs so repeat
// lookups skip the decoder. Validation is pure, so entries can only go
// stale through the age field; the TTL keeps that bounded. The cache is
// strictly an optimization: every failure path reads as a miss.
type ResultCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewResultCache(rdb *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{
		rdb:    rdb,
		ttl:    ttl,
		prefix: "validation:",
	}
}

// Get returns the cached result for a sanitized ID, or (nil, false).
func (c *ResultCache) Get(ctx context.Context, id string) (*Result, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, c.prefix+id).Bytes()
	if err != nil {
		return nil, false
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false
	}
	return &res, true
}

// Put stores a result best-effort.
func (c *ResultCache) Put(ctx context.Context, id string, res *Result) {
	if c == nil || c.rdb == nil || res == nil {
		return
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, c.prefix+id, raw, c.ttl).Err()
}
