// Package ctx carries per-request values between middleware and handlers
// over fasthttp's user-value mechanism.
package ctx

import (
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "idgate/internal/db"
)

const (
	APIKeyKey     = "apiKey"
	RequestIDKey  = "requestID"
	StartTimeKey  = "startTime"
	CacheHitKey   = "cacheHit"
	ValidationKey = "validationOK"
	IDCountKey    = "idCount"
)

func SetAPIKey(ctx *fasthttp.RequestCtx, apiKey *dbpkg.APIKey) {
	ctx.SetUserValue(APIKeyKey, apiKey)
}

func APIKeyFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.APIKey, bool) {
	v := ctx.UserValue(APIKeyKey)
	if v == nil {
		return nil, false
	}
	ak, ok := v.(*dbpkg.APIKey)
	return ak, ok
}

func SetRequestID(ctx *fasthttp.RequestCtx, id string) {
	ctx.SetUserValue(RequestIDKey, id)
}

func RequestIDFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(RequestIDKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func SetStartTime(ctx *fasthttp.RequestCtx, t time.Time) {
	ctx.SetUserValue(StartTimeKey, t)
}

func StartTimeFromCtx(ctx *fasthttp.RequestCtx) (time.Time, bool) {
	v := ctx.UserValue(StartTimeKey)
	if v == nil {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// SetCacheHit marks that the response was served from the result cache.
func SetCacheHit(ctx *fasthttp.RequestCtx) {
	ctx.SetUserValue(CacheHitKey, true)
}

func CacheHitFromCtx(ctx *fasthttp.RequestCtx) bool {
	v, ok := ctx.UserValue(CacheHitKey).(bool)
	return ok && v
}

// SetValidationOutcome records the decoder outcome and the number of IDs
// processed, for the call log.
func SetValidationOutcome(ctx *fasthttp.RequestCtx, ok bool, count int) {
	ctx.SetUserValue(ValidationKey, ok)
	ctx.SetUserValue(IDCountKey, count)
}

// ValidationOutcomeFromCtx returns nil when the handler recorded no
// decoder outcome.
func ValidationOutcomeFromCtx(ctx *fasthttp.RequestCtx) (outcome *bool, count int) {
	if v, ok := ctx.UserValue(ValidationKey).(bool); ok {
		outcome = &v
	}
	if n, ok := ctx.UserValue(IDCountKey).(int); ok {
		count = n
	}
	return outcome, count
}
