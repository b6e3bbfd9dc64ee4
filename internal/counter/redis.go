// Package counter wraps the shared atomic counter store used for rate
// limiting. All operations are fallible; callers decide the degradation
// policy.
package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps any store failure so callers can match the
// whole class with errors.Is.
var ErrStoreUnavailable = errors.New("counter store unavailable")

type Counters struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Counters {
	return &Counters{rdb: rdb}
}

// Increment atomically increments a key, initializing it to 1 if absent.
// No expiry is set; prefer IncrementAndExpire on the rate-limit write path.
func (c *Counters) Increment(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, storeErr("incr", key, err)
	}
	return n, nil
}

// Expire sets or refreshes a key's TTL. Idempotent.
func (c *Counters) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return storeErr("expire", key, err)
	}
	return nil
}

// IncrementAndExpire is the atomic compound of Increment and a
// set-if-absent expiry, executed as a single MULTI/EXEC transaction. A
// freshly created counter therefore always carries a TTL — two separate
// calls would leave a counter that never resets if the process dies between
// them. EXPIRE NX keeps existing TTLs untouched, so windows are fixed
// rather than sliding.
func (c *Counters) IncrementAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, storeErr("incr+expire", key, err)
	}
	return incr.Val(), nil
}

// Get returns the current count, or 0 if the key is absent or already
// expired.
func (c *Counters) Get(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, storeErr("get", key, err)
	}
	return n, nil
}

// TTLRemaining returns the remaining lifetime of a key. ok is false when the
// key is absent or carries no expiry.
func (c *Counters) TTLRemaining(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, storeErr("ttl", key, err)
	}
	if d < 0 {
		// -2: no such key, -1: no expiry set.
		return 0, false, nil
	}
	return d, true, nil
}

// Delete removes counters and returns how many existed.
func (c *Counters) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, storeErr("del", keys[0], err)
	}
	return n, nil
}

func storeErr(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrStoreUnavailable, op, key, err)
}
