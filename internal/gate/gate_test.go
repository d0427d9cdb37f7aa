package gate

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbpkg "idgate/internal/db"
	"idgate/internal/ratelimit"
)

var gateNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

// fakeResolver serves keys from a map and counts lookups so tests can
// observe whether the cache actually short-circuited the registry.
type fakeResolver struct {
	keys  map[string]*dbpkg.APIKey
	err   error
	calls int
}

func (r *fakeResolver) Resolve(_ context.Context, secret string) (*dbpkg.APIKey, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	key, ok := r.keys[secret]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

func activeKey(secret string) *dbpkg.APIKey {
	return &dbpkg.APIKey{
		ID:                 "key-id-1",
		Key:                secret,
		Name:               "test key",
		Status:             dbpkg.StatusActive,
		Enabled:            true,
		RateLimitPerMinute: 100,
		RateLimitPerHour:   1000,
		RateLimitPerDay:    10000,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestGate(resolver KeyResolver, opts ...Option) *Gate {
	store := ratelimit.NewMemoryCounterStore(ratelimit.WithClock(func() time.Time { return gateNow }))
	limiter := ratelimit.NewLimiter(store, quietLogger())
	opts = append(opts, WithClock(func() time.Time { return gateNow }))
	return New(resolver, limiter, quietLogger(), opts...)
}

func TestAuthorizeAllowsValidKey(t *testing.T) {
	resolver := &fakeResolver{keys: map[string]*dbpkg.APIKey{"nid_good": activeKey("nid_good")}}
	g := newTestGate(resolver)

	d := g.Authorize(context.Background(), "nid_good", "203.0.113.7", "/api/v1/validate")
	assert.True(t, d.Allowed)
	assert.False(t, d.Exempt)
	require.NotNil(t, d.Key)
	assert.Equal(t, "key-id-1", d.Key.ID)
}

func TestAuthorizeExemptPathsSkipEverything(t *testing.T) {
	resolver := &fakeResolver{err: ErrRegistryUnavailable}
	g := newTestGate(resolver)

	for _, path := range []string{"/healthz", "/metrics", "/api/v1/health", "/api/v1/docs", "/admin/apikeys"} {
		d := g.Authorize(context.Background(), "", "203.0.113.7", path)
		assert.True(t, d.Allowed, "path %s", path)
		assert.True(t, d.Exempt, "path %s", path)
		assert.Nil(t, d.Key)
	}
	assert.Zero(t, resolver.calls)
}

func TestAuthorizeNonAPIPathIsExempt(t *testing.T) {
	resolver := &fakeResolver{}
	g := newTestGate(resolver)

	d := g.Authorize(context.Background(), "", "203.0.113.7", "/")
	assert.True(t, d.Allowed)
	assert.True(t, d.Exempt)
}

func TestAuthorizeMissingKey(t *testing.T) {
	g := newTestGate(&fakeResolver{})

	d := g.Authorize(context.Background(), "", "203.0.113.7", "/api/v1/validate")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMissingKey, d.Reason)
	assert.Nil(t, d.Key)
}

func TestAuthorizeUnknownKey(t *testing.T) {
	g := newTestGate(&fakeResolver{keys: map[string]*dbpkg.APIKey{}})

	d := g.Authorize(context.Background(), "nid_unknown", "203.0.113.7", "/api/v1/validate")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonInvalidKey, d.Reason)
}

func TestAuthorizeDeniesWhenRegistryUnavailable(t *testing.T) {
	g := newTestGate(&fakeResolver{err: ErrRegistryUnavailable})

	d := g.Authorize(context.Background(), "nid_good", "203.0.113.7", "/api/v1/validate")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonValidationFailed, d.Reason)
}

func TestAuthorizeDisabledKey(t *testing.T) {
	key := activeKey("nid_off")
	key.Enabled = false
	g := newTestGate(&fakeResolver{keys: map[string]*dbpkg.APIKey{"nid_off": key}})

	d := g.Authorize(context.Background(), "nid_off", "203.0.113.7", "/api/v1/validate")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonKeyInactiveOrExpired, d.Reason)
	assert.NotNil(t, d.Key, "denial should still attribute the key")
}

func TestAuthorizeSuspendedKey(t *testing.T) {
	key := activeKey("nid_susp")
	key.Status = dbpkg.StatusSuspended
	g := newTestGate(&fakeResolver{keys: map[string]*dbpkg.APIKey{"nid_susp": key}})

	d := g.Authorize(context.Background(), "nid_susp", "203.0.113.7", "/api/v1/validate")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonKeyInactiveOrExpired, d.Reason)
}

func TestAuthorizeExpiredKey(t *testing.T) {
	key := activeKey("nid_exp")
	expired := gateNow.Add(-time.Minute)
	key.ExpiresAt = &expired
	g := newTestGate(&fakeResolver{keys: map[string]*dbpkg.APIKey{"nid_exp": key}})

	d := g.Authorize(context.Background(), "nid_exp", "203.0.113.7", "/api/v1/validate")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonKeyInactiveOrExpired, d.Reason)
}

func TestAuthorizeFutureExpiryStillValid(t *testing.T) {
	key := activeKey("nid_future")
	future := gateNow.Add(time.Hour)
	key.ExpiresAt = &future
	g := newTestGate(&fakeResolver{keys: map[string]*dbpkg.APIKey{"nid_future": key}})

	d := g.Authorize(context.Background(), "nid_future", "203.0.113.7", "/api/v1/validate")
	assert.True(t, d.Allowed)
}

func TestAuthorizeIPAllowList(t *testing.T) {
	key := activeKey("nid_ip")
	key.AllowedIPs = "203.0.113.7, 198.51.100.1"
	g := newTestGate(&fakeResolver{keys: map[string]*dbpkg.APIKey{"nid_ip": key}})

	d := g.Authorize(context.Background(), "nid_ip", "203.0.113.7", "/api/v1/validate")
	assert.True(t, d.Allowed)

	d = g.Authorize(context.Background(), "nid_ip", "192.0.2.50", "/api/v1/validate")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonIPNotAllowed, d.Reason)
	assert.Contains(t, d.Message, "192.0.2.50")
}

func TestAuthorizeEmptyAllowListAdmitsAnyIP(t *testing.T) {
	g := newTestGate(&fakeResolver{keys: map[string]*dbpkg.APIKey{"nid_any": activeKey("nid_any")}})

	d := g.Authorize(context.Background(), "nid_any", "192.0.2.50", "/api/v1/validate")
	assert.True(t, d.Allowed)
}

func TestAuthorizeRateLimit(t *testing.T) {
	key := activeKey("nid_limited")
	key.RateLimitPerMinute = 2
	g := newTestGate(&fakeResolver{keys: map[string]*dbpkg.APIKey{"nid_limited": key}})

	for i := 0; i < 2; i++ {
		d := g.Authorize(context.Background(), "nid_limited", "203.0.113.7", "/api/v1/validate")
		assert.True(t, d.Allowed, "request %d", i+1)
	}

	d := g.Authorize(context.Background(), "nid_limited", "203.0.113.7", "/api/v1/validate")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRateLimitExceeded, d.Reason)
	assert.Equal(t, ratelimit.WindowMinute, d.Window)
	assert.NotNil(t, d.Key)
}

func TestAuthorizeChecksOrder(t *testing.T) {
	// An invalid key from a disallowed IP reports the validity failure:
	// validity is checked before the allow-list.
	key := activeKey("nid_order")
	key.Enabled = false
	key.AllowedIPs = "203.0.113.7"
	g := newTestGate(&fakeResolver{keys: map[string]*dbpkg.APIKey{"nid_order": key}})

	d := g.Authorize(context.Background(), "nid_order", "192.0.2.50", "/api/v1/validate")
	assert.Equal(t, ReasonKeyInactiveOrExpired, d.Reason)
}

func TestAuthorizeReasonTypes(t *testing.T) {
	tests := []struct {
		reason Reason
		want   string
	}{
		{ReasonMissingKey, "missing_api_key"},
		{ReasonInvalidKey, "invalid_api_key"},
		{ReasonKeyInactiveOrExpired, "key_inactive_or_expired"},
		{ReasonIPNotAllowed, "ip_not_allowed"},
		{ReasonRateLimitExceeded, "rate_limit_exceeded"},
		{ReasonValidationFailed, "validation_failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.reason.Type())
	}
}
