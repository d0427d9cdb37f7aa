package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Window identifies which fixed window a denial was attributed to.
type Window int

const (
	WindowNone Window = iota
	WindowMinute
	WindowHour
	WindowDay
)

func (w Window) String() string {
	switch w {
	case WindowMinute:
		return "per-minute"
	case WindowHour:
		return "per-hour"
	case WindowDay:
		return "per-day"
	default:
		return "none"
	}
}

// Limits are the per-window ceilings for one key.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

type windowSpec struct {
	window Window
	name   string
	length time.Duration
}

var windows = []windowSpec{
	{WindowMinute, "minute", time.Minute},
	{WindowHour, "hour", time.Hour},
	{WindowDay, "day", 24 * time.Hour},
}

// Limiter enforces three independent tumbling windows (minute, hour, day)
// per key against a shared counter store.
type Limiter struct {
	store CounterStore
	log   *logrus.Entry
}

func NewLimiter(store CounterStore, logger *logrus.Logger) *Limiter {
	return &Limiter{
		store: store,
		log:   logger.WithField("component", "ratelimit"),
	}
}

// Check reads all three window counters for the key and, if every one is
// under its ceiling, increments them. On any window at its ceiling it
// reports (true, window) without touching any counter, so denied requests
// never count against the limit.
//
// The read and the increment are separate store operations, so concurrent
// requests for the same key can race past the ceiling by a small margin.
// That is accepted here: the ceilings inform billing, they are not a hard
// admission cap.
//
// Counter-store failures are logged and treated as under-limit; the gate
// already fails closed on registry faults, and refusing all traffic on a
// counter-store outage would add nothing to the guarantee.
func (l *Limiter) Check(ctx context.Context, secret string, limits Limits, now time.Time) (exceeded bool, window Window) {
	ceilings := [...]int{limits.PerMinute, limits.PerHour, limits.PerDay}

	for i, spec := range windows {
		if ceilings[i] <= 0 {
			continue
		}
		count, err := l.store.Get(ctx, counterKey(secret, spec, now))
		if err != nil {
			l.log.WithError(err).WithField("window", spec.name).Warn("counter read failed")
			continue
		}
		if count >= int64(ceilings[i]) {
			return true, spec.window
		}
	}

	for _, spec := range windows {
		if err := l.store.Increment(ctx, counterKey(secret, spec, now), spec.length); err != nil {
			l.log.WithError(err).WithField("window", spec.name).Warn("counter increment failed")
		}
	}

	return false, WindowNone
}

// counterKey buckets time into fixed windows: floor(epoch / length)
// identifies the window, so a fresh counter starts with each window and
// the TTL self-cleans stale ones.
func counterKey(secret string, spec windowSpec, now time.Time) string {
	idx := now.Unix() / int64(spec.length.Seconds())
	return fmt.Sprintf("%s:%s:%d", spec.name, secret, idx)
}
