package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"smsgate/internal/observability"
)

// CounterStore is the slice of the counter store the limiter needs. All
// operations may fail; the limiter converts failures to fail-open results.
type CounterStore interface {
	IncrementAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	TTLRemaining(ctx context.Context, key string) (time.Duration, bool, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
}

// Result is the outcome of a rate-limit check. On a denial, LimitType names
// the smallest violated window and Current holds the count that stood when
// the limit was exceeded (post-increment minus one; see CheckAndIncrement).
type Result struct {
	Allowed   bool      `json:"allowed"`
	LimitType string    `json:"limitType"` // minute, hour, day, or none
	Current   int64     `json:"current"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}

// Usage is one window's standing for GetCurrentUsage.
type Usage struct {
	Current   int64 `json:"current"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
}

// Limiter enforces per-tenant, per-message-type limits over minute, hour,
// and day windows. All mutual exclusion is delegated to the store's atomic
// increments; the limiter holds no in-process locks.
type Limiter struct {
	Store CounterStore
	Calc  *Calculator
	// Tiers resolves a tenant to its billing tier. Nil means every tenant
	// is on the free tier.
	Tiers func(tenantID string) Tier
}

func (l *Limiter) tierFor(tenantID string) Tier {
	if l.Tiers == nil {
		return TierFree
	}
	return l.Tiers(tenantID)
}

// CheckAndIncrement charges one attempt against all three windows and
// reports whether the send may proceed. Increments are not rolled back when
// a later window turns out to be violated: the store gives no multi-key
// transaction, so a denied attempt still counts as usage in every window.
// The denial reports the smallest violated window with Current equal to the
// count that already stood there (post-increment minus one).
//
// On any store failure the limiter fails open: message delivery is worth
// more than strict enforcement during an outage. The degradation is logged
// and counted, never surfaced as an error.
func (l *Limiter) CheckAndIncrement(ctx context.Context, tenantID, messageType string) Result {
	limits := l.Calc.LimitsFor(messageType, l.tierFor(tenantID))

	denied := false
	var res Result
	for _, w := range Windows {
		key := KeyFor(tenantID, messageType, w)
		n, err := l.Store.IncrementAndExpire(ctx, key, WindowDuration(w))
		if err != nil {
			return l.failOpen(tenantID, messageType, w, err)
		}
		limit := limits.For(w)
		if !denied && n > int64(limit) {
			denied = true
			res = Result{
				Allowed:   false,
				LimitType: string(w),
				Current:   n - 1,
				Limit:     limit,
				Remaining: 0,
				ResetTime: l.resetTime(ctx, key, w),
			}
		}
		if !denied && w == WindowMinute {
			res = Result{
				Allowed:   true,
				LimitType: "none",
				Current:   n,
				Limit:     limit,
				Remaining: remaining(limit, n),
				ResetTime: l.resetTime(ctx, key, w),
			}
		}
	}

	if denied {
		observability.RateLimitDecisions.WithLabelValues(messageType, "denied").Inc()
	} else {
		observability.RateLimitDecisions.WithLabelValues(messageType, "allowed").Inc()
	}
	return res
}

// CheckOnly reads the current standing without charging usage. Used for
// pre-flight checks; never mutates counters.
func (l *Limiter) CheckOnly(ctx context.Context, tenantID, messageType string) Result {
	limits := l.Calc.LimitsFor(messageType, l.tierFor(tenantID))

	var allowedRes Result
	for _, w := range Windows {
		key := KeyFor(tenantID, messageType, w)
		n, err := l.Store.Get(ctx, key)
		if err != nil {
			return l.failOpen(tenantID, messageType, w, err)
		}
		limit := limits.For(w)
		if n >= int64(limit) {
			return Result{
				Allowed:   false,
				LimitType: string(w),
				Current:   n,
				Limit:     limit,
				Remaining: 0,
				ResetTime: l.resetTime(ctx, key, w),
			}
		}
		if w == WindowMinute {
			allowedRes = Result{
				Allowed:   true,
				LimitType: "none",
				Current:   n,
				Limit:     limit,
				Remaining: remaining(limit, n),
				ResetTime: l.resetTime(ctx, key, w),
			}
		}
	}
	return allowedRes
}

// GetCurrentUsage reports each window's standing for display. Store
// failures fail open like every other limiter read: an unreadable counter
// reports zero, the same as an expired one, and the degradation is logged
// and counted rather than surfaced.
func (l *Limiter) GetCurrentUsage(ctx context.Context, tenantID, messageType string) map[Window]Usage {
	limits := l.Calc.LimitsFor(messageType, l.tierFor(tenantID))
	out := make(map[Window]Usage, len(Windows))
	for _, w := range Windows {
		n, err := l.Store.Get(ctx, KeyFor(tenantID, messageType, w))
		if err != nil {
			slog.Warn("rate limit store unavailable, reporting empty usage",
				"tenant_id", tenantID,
				"message_type", messageType,
				"window", string(w),
				"err", err,
			)
			observability.RateLimitDecisions.WithLabelValues(messageType, "fail_open").Inc()
			n = 0
		}
		limit := limits.For(w)
		out[w] = Usage{Current: n, Limit: limit, Remaining: remaining(limit, n)}
	}
	return out
}

// ResetLimits deletes the counters for the given windows, or all three when
// none are named.
func (l *Limiter) ResetLimits(ctx context.Context, tenantID, messageType string, windows ...Window) error {
	if len(windows) == 0 {
		windows = Windows
	}
	keys := make([]string, 0, len(windows))
	for _, w := range windows {
		keys = append(keys, KeyFor(tenantID, messageType, w))
	}
	_, err := l.Store.Delete(ctx, keys...)
	return err
}

func (l *Limiter) resetTime(ctx context.Context, key string, w Window) time.Time {
	if d, ok, err := l.Store.TTLRemaining(ctx, key); err == nil && ok {
		return time.Now().Add(d)
	}
	return time.Now().Add(WindowDuration(w))
}

func (l *Limiter) failOpen(tenantID, messageType string, w Window, err error) Result {
	slog.Warn("rate limit store unavailable, failing open",
		"tenant_id", tenantID,
		"message_type", messageType,
		"window", string(w),
		"err", err,
	)
	observability.RateLimitDecisions.WithLabelValues(messageType, "fail_open").Inc()
	return Result{
		Allowed:   true,
		LimitType: "none",
		Remaining: 0,
		ResetTime: time.Now().Add(WindowDuration(w)),
	}
}

func remaining(limit int, current int64) int {
	r := limit - int(current)
	if r < 0 {
		return 0
	}
	return r
}
