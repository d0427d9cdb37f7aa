package middleware

import (
	"net"
	"strings"

	"github.com/valyala/fasthttp"

	"idgate/internal/config"
	"idgate/internal/gate"
	httpctx "idgate/internal/http/ctx"
	"idgate/internal/http/handlers"
)

// APIKeyAuth runs every request through the access gate. Denials are
// answered here with the envelope the original decision mapped to; the
// resolved key (when there is one) is left on the context either way so
// usage tracking can attribute the call.
func APIKeyAuth(g *gate.Gate, cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			secret := strings.TrimSpace(string(ctx.Request.Header.Peek(cfg.APIKeyHeader)))

			decision := g.Authorize(ctx, secret, ClientIP(ctx), string(ctx.Path()))

			if decision.Key != nil {
				httpctx.SetAPIKey(ctx, decision.Key)
			}

			if !decision.Allowed {
				handlers.CountDenial(decision.Reason.Type())

				status := fasthttp.StatusForbidden
				if decision.Reason == gate.ReasonMissingKey {
					status = fasthttp.StatusUnauthorized
				}
				handlers.WriteError(ctx, status, decision.Message, decision.Reason.Type())
				return
			}

			next(ctx)
		}
	}
}

// ClientIP derives the client address, preferring the first hop of
// X-Forwarded-For over the socket peer. Only correct behind a trusted
// reverse proxy that sanitizes that header.
func ClientIP(ctx *fasthttp.RequestCtx) string {
	if xff := string(ctx.Request.Header.Peek("X-Forwarded-For")); xff != "" {
		first := xff
		if i := strings.IndexByte(xff, ','); i >= 0 {
			first = xff[:i]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	addr := ctx.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}
