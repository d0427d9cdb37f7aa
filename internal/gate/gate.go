// Package gate renders the allow/deny decision for every inbound request:
// key resolution, validity and IP checks, then rate-limit enforcement.
package gate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	dbpkg "idgate/internal/db"
	"idgate/internal/ratelimit"
)

// Reason classifies a denial. The string forms are safe to return to
// callers; none leak secret material.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonMissingKey
	ReasonInvalidKey
	ReasonKeyInactiveOrExpired
	ReasonIPNotAllowed
	ReasonRateLimitExceeded
	ReasonValidationFailed
)

// Type returns the machine-readable error type for the response envelope.
func (r Reason) Type() string {
	switch r {
	case ReasonMissingKey:
		return "missing_api_key"
	case ReasonInvalidKey:
		return "invalid_api_key"
	case ReasonKeyInactiveOrExpired:
		return "key_inactive_or_expired"
	case ReasonIPNotAllowed:
		return "ip_not_allowed"
	case ReasonRateLimitExceeded:
		return "rate_limit_exceeded"
	case ReasonValidationFailed:
		return "validation_failed"
	default:
		return "none"
	}
}

// Decision is the outcome of authorizing one request.
type Decision struct {
	Allowed bool

	// Exempt is set when the path required no key at all. Key is nil in
	// that case.
	Exempt bool

	// Key is the resolved key record when one was found, including on
	// denials past the resolution step (so usage recording can still
	// attribute the call).
	Key *dbpkg.APIKey

	Reason  Reason
	Window  ratelimit.Window
	Message string
}

func allowed(key *dbpkg.APIKey) Decision {
	return Decision{Allowed: true, Key: key}
}

func denied(reason Reason, message string) Decision {
	return Decision{Reason: reason, Message: message}
}

// Gate orchestrates key resolution and the per-request checks. It holds no
// authoritative state of its own; everything mutable lives in the resolver
// cache and the counter store.
type Gate struct {
	resolver KeyResolver
	limiter  *ratelimit.Limiter
	log      *logrus.Entry

	exemptPrefixes []string
	apiPrefix      string

	now func() time.Time
}

type Option func(*Gate)

// WithExemptPrefixes replaces the default unauthenticated path prefixes.
func WithExemptPrefixes(prefixes ...string) Option {
	return func(g *Gate) { g.exemptPrefixes = prefixes }
}

// WithAPIPrefix replaces the authenticated namespace prefix.
func WithAPIPrefix(prefix string) Option {
	return func(g *Gate) { g.apiPrefix = prefix }
}

// WithClock swaps the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func New(resolver KeyResolver, limiter *ratelimit.Limiter, logger *logrus.Logger, opts ...Option) *Gate {
	g := &Gate{
		resolver:       resolver,
		limiter:        limiter,
		log:            logger.WithField("component", "gate"),
		exemptPrefixes: []string{"/admin", "/healthz", "/metrics", "/api/v1/health", "/api/v1/docs"},
		apiPrefix:      "/api/",
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize decides whether the request identified by (secret, clientIP,
// path) may proceed, short-circuiting on the first failing check. Any
// unexpected fault inside the pipeline denies with ReasonValidationFailed
// rather than propagating; the gate must never take down the request path
// it fronts.
func (g *Gate) Authorize(ctx context.Context, secret, clientIP, path string) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			g.log.WithField("panic", r).Error("authorization panicked")
			decision = denied(ReasonValidationFailed, "API key validation failed")
		}
	}()

	if g.isExempt(path) {
		return Decision{Allowed: true, Exempt: true}
	}

	if secret == "" {
		return denied(ReasonMissingKey,
			"Missing API key. Please include your API key in the request header.")
	}

	key, err := g.resolver.Resolve(ctx, secret)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return denied(ReasonInvalidKey, "Invalid API key")
		}
		// Registry unreachable or any other resolution fault: deny.
		// Availability is never bought by weakening the gate.
		g.log.WithError(err).Error("key resolution failed")
		return denied(ReasonValidationFailed, "API key validation failed")
	}

	now := g.now()

	if !key.IsValid(now) {
		d := denied(ReasonKeyInactiveOrExpired, "API key is inactive or expired")
		d.Key = key
		return d
	}

	if !key.IsIPAllowed(clientIP) {
		d := denied(ReasonIPNotAllowed, "Access denied for IP address: "+clientIP)
		d.Key = key
		return d
	}

	minute, hour, day := key.RateLimits()
	exceeded, window := g.limiter.Check(ctx, key.Key, ratelimit.Limits{
		PerMinute: minute,
		PerHour:   hour,
		PerDay:    day,
	}, now)
	if exceeded {
		d := denied(ReasonRateLimitExceeded, "Rate limit exceeded: "+window.String()+" limit")
		d.Key = key
		d.Window = window
		return d
	}

	return allowed(key)
}

func (g *Gate) isExempt(path string) bool {
	for _, prefix := range g.exemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return !strings.HasPrefix(path, g.apiPrefix)
}
