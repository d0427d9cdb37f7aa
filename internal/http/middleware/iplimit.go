package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"idgate/internal/config"
	"idgate/internal/http/handlers"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimit throttles by client IP in front of the per-key limiter,
// shielding the gate (and its registry lookups) from abusive sources that
// never present a valid key. Limiters are process-local token buckets.
func IPRateLimit(cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	var (
		mu      sync.Mutex
		clients = make(map[string]*ipLimiter)
	)

	rps := rate.Limit(float64(cfg.IPRateLimit) / cfg.IPRateWindow.Seconds())
	burst := cfg.IPRateLimit

	// Evict idle sources so the map stays bounded.
	go func() {
		for {
			time.Sleep(time.Minute)
			mu.Lock()
			for ip, client := range clients {
				if time.Since(client.lastSeen) > 3*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if cfg.IPRateLimit <= 0 || !strings.HasPrefix(string(ctx.Path()), "/api/") {
				next(ctx)
				return
			}

			ip := ClientIP(ctx)

			mu.Lock()
			client, ok := clients[ip]
			if !ok {
				client = &ipLimiter{limiter: rate.NewLimiter(rps, burst)}
				clients[ip] = client
			}
			client.lastSeen = time.Now()
			mu.Unlock()

			if !client.limiter.Allow() {
				handlers.WriteError(ctx, fasthttp.StatusTooManyRequests,
					"Too many requests from this IP address", "ip_rate_limit_exceeded")
				return
			}

			next(ctx)
		}
	}
}
