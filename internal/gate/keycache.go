package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	dbpkg "idgate/internal/db"
)

var (
	// ErrKeyNotFound means no key record exists for the presented secret.
	ErrKeyNotFound = errors.New("api key not found")

	// ErrRegistryUnavailable means the registry could not be queried at
	// all. Callers must treat this as a request failure, never as a
	// valid-key result.
	ErrRegistryUnavailable = errors.New("key registry unavailable")
)

// KeyResolver turns a raw secret into its key record.
type KeyResolver interface {
	Resolve(ctx context.Context, secret string) (*dbpkg.APIKey, error)
}

// RegistryResolver resolves secrets against the authoritative key store.
type RegistryResolver struct {
	db *gorm.DB
}

func NewRegistryResolver(db *gorm.DB) *RegistryResolver {
	return &RegistryResolver{db: db}
}

func (r *RegistryResolver) Resolve(ctx context.Context, secret string) (*dbpkg.APIKey, error) {
	key, err := dbpkg.FindAPIKeyBySecret(r.db.WithContext(ctx), secret)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return key, nil
}

type cacheEntry struct {
	key       *dbpkg.APIKey
	expiresAt time.Time
}

// CachingResolver is a read-through cache in front of another resolver.
// Hits within the TTL skip the registry entirely; misses populate the
// cache on success. Not-found results are never cached, so a just-issued
// key becomes usable immediately at the cost of a registry round trip for
// every probe with an unknown secret.
type CachingResolver struct {
	next KeyResolver
	ttl  time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry

	now func() time.Time
}

type CachingResolverOption func(*CachingResolver)

// WithCacheClock swaps the clock, for tests.
func WithCacheClock(now func() time.Time) CachingResolverOption {
	return func(c *CachingResolver) { c.now = now }
}

func NewCachingResolver(next KeyResolver, ttl time.Duration, opts ...CachingResolverOption) *CachingResolver {
	c := &CachingResolver{
		next:    next,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachingResolver) Resolve(ctx context.Context, secret string) (*dbpkg.APIKey, error) {
	now := c.now()

	c.mu.Lock()
	if ent, ok := c.entries[secret]; ok {
		if ent.expiresAt.After(now) {
			c.mu.Unlock()
			return ent.key, nil
		}
		delete(c.entries, secret)
	}
	c.mu.Unlock()

	key, err := c.next.Resolve(ctx, secret)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[secret] = cacheEntry{key: key, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return key, nil
}

// Cleanup drops expired entries. Expired entries are also dropped lazily
// on read; this only bounds memory for secrets that stop arriving.
func (c *CachingResolver) Cleanup() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for secret, ent := range c.entries {
		if !ent.expiresAt.After(now) {
			delete(c.entries, secret)
		}
	}
}

// StartJanitor sweeps expired entries periodically until ctx is done.
func (c *CachingResolver) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Cleanup()
			}
		}
	}()
}
