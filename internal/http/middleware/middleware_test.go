package middleware

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"idgate/internal/config"
	dbpkg "idgate/internal/db"
	"idgate/internal/gate"
	httpctx "idgate/internal/http/ctx"
	"idgate/internal/ratelimit"
)

func TestEndpointName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/validate", "validate"},
		{"/api/v1/validate/bulk", "validate/bulk"},
		{"/api/v1/health", "health"},
		{"/api/v1/metrics/", "metrics"},
		{"/healthz", "/healthz"},
		{"/", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, endpointName(tt.path), "path %s", tt.path)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1, 10.0.0.2")
	assert.Equal(t, "203.0.113.7", ClientIP(&ctx))
}

func TestClientIPSingleForwardedHop(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("X-Forwarded-For", " 198.51.100.4 ")
	assert.Equal(t, "198.51.100.4", ClientIP(&ctx))
}

func TestClientIPFallsBackToPeer(t *testing.T) {
	var ctx fasthttp.RequestCtx
	assert.Equal(t, "0.0.0.0", ClientIP(&ctx))
}

func TestQueryParams(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/api/v1/validate?verbose=1&lang=en")

	params := queryParams(&ctx)
	assert.Equal(t, map[string]interface{}{"verbose": "1", "lang": "en"}, params)

	ctx.Request.SetRequestURI("/api/v1/validate")
	assert.Nil(t, queryParams(&ctx))
}

func newAuthGate(key *dbpkg.APIKey) *gate.Gate {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	resolver := mapResolver{}
	if key != nil {
		resolver[key.Key] = key
	}
	store := ratelimit.NewMemoryCounterStore()
	return gate.New(resolver, ratelimit.NewLimiter(store, logger), logger)
}

type mapResolver map[string]*dbpkg.APIKey

func (r mapResolver) Resolve(_ context.Context, secret string) (*dbpkg.APIKey, error) {
	if key, ok := r[secret]; ok {
		return key, nil
	}
	return nil, gate.ErrKeyNotFound
}

func testConfig() *config.Config {
	return &config.Config{APIKeyHeader: "X-API-Key"}
}

func passHandler(called *bool) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		*called = true
		ctx.SetStatusCode(fasthttp.StatusOK)
	}
}

func decodeEnvelope(t *testing.T, ctx *fasthttp.RequestCtx) map[string]interface{} {
	t.Helper()
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env))
	return env
}

func TestAPIKeyAuthMissingKey(t *testing.T) {
	mw := APIKeyAuth(newAuthGate(nil), testConfig())

	var called bool
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/api/v1/validate")

	mw(passHandler(&called))(&ctx)

	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())

	env := decodeEnvelope(t, &ctx)
	assert.Equal(t, false, env["success"])
	errBody := env["error"].(map[string]interface{})
	assert.Equal(t, "missing_api_key", errBody["type"])
}

func TestAPIKeyAuthInvalidKey(t *testing.T) {
	mw := APIKeyAuth(newAuthGate(nil), testConfig())

	var called bool
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/api/v1/validate")
	ctx.Request.Header.Set("X-API-Key", "nid_wrong")

	mw(passHandler(&called))(&ctx)

	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	env := decodeEnvelope(t, &ctx)
	errBody := env["error"].(map[string]interface{})
	assert.Equal(t, "invalid_api_key", errBody["type"])
}

func TestAPIKeyAuthValidKeyPassesAndAttributes(t *testing.T) {
	key := &dbpkg.APIKey{
		ID:      "key-id-1",
		Key:     "nid_good",
		Name:    "test",
		Status:  dbpkg.StatusActive,
		Enabled: true,
	}
	mw := APIKeyAuth(newAuthGate(key), testConfig())

	var called bool
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/api/v1/validate")
	ctx.Request.Header.Set("X-API-Key", "nid_good")

	mw(passHandler(&called))(&ctx)

	assert.True(t, called)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	got, ok := httpctx.APIKeyFromCtx(&ctx)
	require.True(t, ok)
	assert.Equal(t, "key-id-1", got.ID)
}

func TestAPIKeyAuthDeniedKeyStaysOnContext(t *testing.T) {
	key := &dbpkg.APIKey{
		ID:      "key-id-2",
		Key:     "nid_off",
		Status:  dbpkg.StatusActive,
		Enabled: false,
	}
	mw := APIKeyAuth(newAuthGate(key), testConfig())

	var called bool
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/api/v1/validate")
	ctx.Request.Header.Set("X-API-Key", "nid_off")

	mw(passHandler(&called))(&ctx)

	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	got, ok := httpctx.APIKeyFromCtx(&ctx)
	require.True(t, ok)
	assert.Equal(t, "key-id-2", got.ID)
}

func TestAPIKeyAuthExemptPath(t *testing.T) {
	mw := APIKeyAuth(newAuthGate(nil), testConfig())

	var called bool
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/api/v1/health")

	mw(passHandler(&called))(&ctx)
	assert.True(t, called)
}

func TestIPRateLimitThrottlesPerIP(t *testing.T) {
	cfg := &config.Config{IPRateLimit: 2, IPRateWindow: time.Minute}
	mw := IPRateLimit(cfg)

	var calls int
	handler := mw(func(ctx *fasthttp.RequestCtx) {
		calls++
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	for i := 0; i < 2; i++ {
		var ctx fasthttp.RequestCtx
		ctx.Request.SetRequestURI("/api/v1/validate")
		ctx.Request.Header.Set("X-Forwarded-For", "203.0.113.7")
		handler(&ctx)
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	}

	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/api/v1/validate")
	ctx.Request.Header.Set("X-Forwarded-For", "203.0.113.7")
	handler(&ctx)
	assert.Equal(t, fasthttp.StatusTooManyRequests, ctx.Response.StatusCode())
	assert.Equal(t, 2, calls)

	// A different source is unaffected.
	var other fasthttp.RequestCtx
	other.Request.SetRequestURI("/api/v1/validate")
	other.Request.Header.Set("X-Forwarded-For", "198.51.100.4")
	handler(&other)
	assert.Equal(t, fasthttp.StatusOK, other.Response.StatusCode())
}

func TestIPRateLimitSkipsNonAPIPaths(t *testing.T) {
	cfg := &config.Config{IPRateLimit: 1, IPRateWindow: time.Minute}
	mw := IPRateLimit(cfg)

	var calls int
	handler := mw(func(ctx *fasthttp.RequestCtx) { calls++ })

	for i := 0; i < 5; i++ {
		var ctx fasthttp.RequestCtx
		ctx.Request.SetRequestURI("/healthz")
		handler(&ctx)
	}
	assert.Equal(t, 5, calls)
}
