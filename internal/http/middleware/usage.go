package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"idgate/internal/config"
	httpctx "idgate/internal/http/ctx"
	"idgate/internal/http/handlers"
	"idgate/internal/usage"
)

// recordTimeout bounds how long a request's telemetry may wait on the log
// store. Past it the record is dropped; request teardown never blocks on
// logging.
const recordTimeout = 2 * time.Second

// UsageTracking is the outermost middleware: it stamps the request with an
// ID and a start time, lets the rest of the chain run, then hands the
// completed call to the recorder. Recording happens off the request
// goroutine and covers denied requests too, so every decision the gate
// renders is accounted for.
func UsageTracking(rec *usage.Recorder, cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			httpctx.SetStartTime(ctx, start)

			requestID := uuid.NewString()
			httpctx.SetRequestID(ctx, requestID)
			ctx.Response.Header.Set("X-Request-ID", requestID)

			next(ctx)

			path := string(ctx.Path())
			if !strings.HasPrefix(path, "/api/") {
				return
			}

			duration := time.Since(start)
			endpoint := endpointName(path)
			method := string(ctx.Method())
			status := ctx.Response.StatusCode()

			key, _ := httpctx.APIKeyFromCtx(ctx)
			keyName := ""
			if key != nil {
				keyName = key.Name
			}
			handlers.ObserveRequest(keyName, endpoint, method, status, duration)

			outcome, idCount := httpctx.ValidationOutcomeFromCtx(ctx)

			// fasthttp reuses request/response buffers once the handler
			// chain returns; everything the goroutine needs is copied out
			// first.
			info := usage.CallInfo{
				RequestID:            requestID,
				Key:                  key,
				Endpoint:             endpoint,
				Method:               method,
				Path:                 path,
				QueryParams:          queryParams(ctx),
				IPAddress:            ClientIP(ctx),
				UserAgent:            string(ctx.Request.Header.Peek("User-Agent")),
				Referer:              string(ctx.Request.Header.Peek("Referer")),
				RequestBody:          append([]byte(nil), ctx.PostBody()...),
				ResponseBody:         append([]byte(nil), ctx.Response.Body()...),
				StatusCode:           status,
				Duration:             duration,
				ValidationSuccessful: outcome,
				NationalIDCount:      idCount,
				CacheHit:             httpctx.CacheHitFromCtx(ctx),
				RetentionDays:        cfg.RetentionDays,
			}

			go func() {
				recordCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
				defer cancel()
				rec.Record(recordCtx, info)
			}()
		}
	}
}

// endpointName reduces a path to a stable endpoint label.
func endpointName(path string) string {
	const prefix = "/api/v1/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

func queryParams(ctx *fasthttp.RequestCtx) map[string]interface{} {
	args := ctx.QueryArgs()
	if args.Len() == 0 {
		return nil
	}
	params := make(map[string]interface{}, args.Len())
	args.VisitAll(func(k, v []byte) {
		params[string(k)] = string(v)
	})
	return params
}
