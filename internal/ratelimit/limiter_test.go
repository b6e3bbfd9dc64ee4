package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"smsgate/internal/counter"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &Limiter{
		Store: counter.New(rdb),
		Calc: NewCalculator(map[string]map[Tier]Limits{
			"sms": {TierFree: {Minute: 5, Hour: 100, Day: 500}},
			"mms": {TierFree: {Minute: 2, Hour: 50, Day: 200}},
		}),
	}
}

func TestCheckAndIncrementUpToMinuteLimit(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res := l.CheckAndIncrement(ctx, "t1", "sms")
		if !res.Allowed {
			t.Fatalf("call %d: expected allowed", i)
		}
		if res.Current != int64(i) {
			t.Fatalf("call %d: expected current %d, got %d", i, i, res.Current)
		}
		if res.LimitType != "none" {
			t.Fatalf("call %d: expected limitType none, got %s", i, res.LimitType)
		}
		if res.Remaining != 5-i {
			t.Fatalf("call %d: expected remaining %d, got %d", i, 5-i, res.Remaining)
		}
	}

	res := l.CheckAndIncrement(ctx, "t1", "sms")
	if res.Allowed {
		t.Fatalf("call 6: expected denial")
	}
	if res.LimitType != "minute" {
		t.Fatalf("call 6: expected limitType minute, got %s", res.LimitType)
	}
	// The reported current is the count that stood when the limit was
	// exceeded, not the post-increment value.
	if res.Current != 5 {
		t.Fatalf("call 6: expected current 5, got %d", res.Current)
	}
	if res.Limit != 5 || res.Remaining != 0 {
		t.Fatalf("call 6: expected limit 5 remaining 0, got %d/%d", res.Limit, res.Remaining)
	}
	if res.ResetTime.Before(time.Now()) {
		t.Fatalf("call 6: expected reset time in the future")
	}
}

func TestDeniedCallStillChargesOtherWindows(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.CheckAndIncrement(ctx, "t1", "sms")
	}

	// Non-rollback: all six attempts are charged against hour and day even
	// though the sixth was denied on the minute window.
	usage := l.GetCurrentUsage(ctx, "t1", "sms")
	if usage[WindowHour].Current != 6 {
		t.Fatalf("expected hour counter 6, got %d", usage[WindowHour].Current)
	}
	if usage[WindowDay].Current != 6 {
		t.Fatalf("expected day counter 6, got %d", usage[WindowDay].Current)
	}
	if usage[WindowMinute].Current != 6 {
		t.Fatalf("expected minute counter 6, got %d", usage[WindowMinute].Current)
	}
}

func TestMessageTypesLimitIndependently(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.CheckAndIncrement(ctx, "t1", "sms")
	}
	if res := l.CheckAndIncrement(ctx, "t1", "sms"); res.Allowed {
		t.Fatalf("expected sms exhausted")
	}

	res := l.CheckAndIncrement(ctx, "t1", "mms")
	if !res.Allowed || res.Current != 1 {
		t.Fatalf("mms should be unaffected by sms exhaustion, got %+v", res)
	}
}

func TestTenantsLimitIndependently(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.CheckAndIncrement(ctx, "t1", "sms")
	}
	if res := l.CheckAndIncrement(ctx, "t2", "sms"); !res.Allowed || res.Current != 1 {
		t.Fatalf("tenant t2 should be unaffected, got %+v", res)
	}
}

func TestResetLimitsSingleWindow(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.CheckAndIncrement(ctx, "t1", "sms")
	}

	if err := l.ResetLimits(ctx, "t1", "sms", WindowMinute); err != nil {
		t.Fatalf("ResetLimits: %v", err)
	}

	usage := l.GetCurrentUsage(ctx, "t1", "sms")
	if usage[WindowMinute].Current != 0 {
		t.Fatalf("expected minute counter reset, got %d", usage[WindowMinute].Current)
	}
	if usage[WindowHour].Current != 3 || usage[WindowDay].Current != 3 {
		t.Fatalf("expected hour/day counters untouched, got %d/%d",
			usage[WindowHour].Current, usage[WindowDay].Current)
	}
}

func TestResetLimitsAllWindows(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.CheckAndIncrement(ctx, "t1", "sms")
	}
	if err := l.ResetLimits(ctx, "t1", "sms"); err != nil {
		t.Fatalf("ResetLimits: %v", err)
	}
	usage := l.GetCurrentUsage(ctx, "t1", "sms")
	for _, w := range Windows {
		if usage[w].Current != 0 {
			t.Fatalf("expected %s counter reset, got %d", w, usage[w].Current)
		}
	}
}

func TestCheckOnlyHasNoSideEffects(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if res := l.CheckOnly(ctx, "t1", "sms"); !res.Allowed || res.Current != 0 {
			t.Fatalf("expected clean read, got %+v", res)
		}
	}

	// The sequence of CheckAndIncrement results is exactly what it would
	// have been without the reads above.
	for i := 1; i <= 5; i++ {
		if res := l.CheckAndIncrement(ctx, "t1", "sms"); !res.Allowed || res.Current != int64(i) {
			t.Fatalf("call %d after reads: got %+v", i, res)
		}
	}

	if res := l.CheckOnly(ctx, "t1", "sms"); res.Allowed {
		t.Fatalf("expected CheckOnly to report exhaustion at the limit, got %+v", res)
	}
}

func TestGetCurrentUsageRemainingFloorsAtZero(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		l.CheckAndIncrement(ctx, "t1", "sms")
	}
	usage := l.GetCurrentUsage(ctx, "t1", "sms")
	if usage[WindowMinute].Remaining != 0 {
		t.Fatalf("expected remaining floored at 0, got %d", usage[WindowMinute].Remaining)
	}
	if usage[WindowMinute].Current != 7 {
		t.Fatalf("expected current 7, got %d", usage[WindowMinute].Current)
	}
}

func TestTierResolution(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := &Limiter{
		Store: counter.New(rdb),
		Calc:  DefaultCalculator(),
		Tiers: func(tenantID string) Tier {
			if tenantID == "t-paid" {
				return TierPaid
			}
			return TierFree
		},
	}
	ctx := context.Background()

	if res := l.CheckAndIncrement(ctx, "t-paid", "sms"); res.Limit != 30 {
		t.Fatalf("expected paid minute limit 30, got %d", res.Limit)
	}
	if res := l.CheckAndIncrement(ctx, "t-free", "sms"); res.Limit != 5 {
		t.Fatalf("expected free minute limit 5, got %d", res.Limit)
	}
}

type failingStore struct{}

var errDown = errors.New("store down")

func (failingStore) IncrementAndExpire(context.Context, string, time.Duration) (int64, error) {
	return 0, errDown
}
func (failingStore) Get(context.Context, string) (int64, error) { return 0, errDown }
func (failingStore) TTLRemaining(context.Context, string) (time.Duration, bool, error) {
	return 0, false, errDown
}
func (failingStore) Delete(context.Context, ...string) (int64, error) { return 0, errDown }

func TestFailOpenOnStoreOutage(t *testing.T) {
	t.Parallel()
	l := &Limiter{Store: failingStore{}, Calc: DefaultCalculator()}
	ctx := context.Background()

	res := l.CheckAndIncrement(ctx, "t1", "sms")
	if !res.Allowed {
		t.Fatalf("expected fail-open allow, got %+v", res)
	}
	if res.Remaining != 0 {
		t.Fatalf("expected remaining 0 on fail-open, got %d", res.Remaining)
	}
	if res.ResetTime.Before(time.Now()) || res.ResetTime.After(time.Now().Add(2*time.Minute)) {
		t.Fatalf("expected reset time about one window out, got %v", res.ResetTime)
	}

	if res := l.CheckOnly(ctx, "t1", "sms"); !res.Allowed {
		t.Fatalf("expected CheckOnly fail-open allow, got %+v", res)
	}

	// Usage reads degrade the same way: zero counts with the limits still
	// populated, never an error for the caller to handle.
	usage := l.GetCurrentUsage(ctx, "t1", "sms")
	if len(usage) != len(Windows) {
		t.Fatalf("expected all windows reported, got %d", len(usage))
	}
	for _, w := range Windows {
		if usage[w].Current != 0 {
			t.Fatalf("%s: expected zero count on store outage, got %d", w, usage[w].Current)
		}
		if usage[w].Limit == 0 {
			t.Fatalf("%s: expected configured limit reported, got 0", w)
		}
		if usage[w].Remaining != usage[w].Limit {
			t.Fatalf("%s: expected full remaining on store outage, got %d", w, usage[w].Remaining)
		}
	}
}

func TestFailOpenOnClosedRedis(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := &Limiter{Store: counter.New(rdb), Calc: DefaultCalculator()}
	mr.Close()

	if res := l.CheckAndIncrement(context.Background(), "t1", "sms"); !res.Allowed {
		t.Fatalf("expected fail-open allow against dead redis, got %+v", res)
	}
}
