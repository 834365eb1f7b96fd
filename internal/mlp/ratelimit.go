package mlp

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateBudget tracks the provider's rate-limit headers (X-RateLimit-Remaining
// / X-RateLimit-Reset) and a minimum inter-request spacing. The budget is
// shared in Redis (keyed per-client) so that multiple engine instances
// honour the same upstream budget, the same role the teacher's
// RateLimiter Lua scripts play for per-ESP send throttling, adapted here
// from bucket counters to a remaining/reset-timestamp model.
type rateBudget struct {
	redis       *redis.Client
	key         string
	minInterval time.Duration
	setScript   *redis.Script

	mu       sync.Mutex
	lastSent time.Time
}

const setBudgetLuaScript = `
local key = KEYS[1]
local remaining = tonumber(ARGV[1])
local resetAt = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

redis.call("HSET", key, "remaining", remaining, "reset_at", resetAt)
redis.call("EXPIRE", key, ttl)
return 1
`

func newRateBudget(client *redis.Client, key string, minInterval time.Duration) *rateBudget {
	return &rateBudget{
		redis:       client,
		key:         key,
		minInterval: minInterval,
		setScript:   redis.NewScript(setBudgetLuaScript),
	}
}

// observe records the remaining-requests and reset-timestamp headers from
// the most recent response.
func (b *rateBudget) observe(ctx context.Context, remaining int, resetAt time.Time) {
	if b.redis == nil {
		return
	}
	_ = b.setScript.Run(ctx, b.redis, []string{b.key}, remaining, resetAt.UnixMilli(), 120).Err()
}

// waitForBudget blocks until the shared budget indicates remaining > 0 (or
// until ctx is cancelled), per spec §4.1's "sleep until the reset
// timestamp before issuing the next request".
func (b *rateBudget) waitForBudget(ctx context.Context) error {
	if b.redis == nil {
		return nil
	}
	vals, err := b.redis.HMGet(ctx, b.key, "remaining", "reset_at").Result()
	if err != nil || vals[0] == nil || vals[1] == nil {
		return nil
	}

	remaining, _ := toInt64(vals[0])
	resetUnix, _ := toInt64(vals[1])
	if remaining > 0 {
		return nil
	}

	resetAt := time.UnixMilli(resetUnix)
	wait := time.Until(resetAt)
	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitMinInterval enforces the minimum per-process inter-request spacing.
func (b *rateBudget) waitMinInterval(ctx context.Context) error {
	b.mu.Lock()
	elapsed := time.Since(b.lastSent)
	var wait time.Duration
	if elapsed < b.minInterval {
		wait = b.minInterval - elapsed
	}
	b.lastSent = time.Now().Add(wait)
	b.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case string:
		var n int64
		var sign int64 = 1
		if len(t) > 0 && t[0] == '-' {
			sign = -1
			t = t[1:]
		}
		for _, r := range t {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int64(r-'0')
		}
		return n * sign, true
	case int64:
		return t, true
	default:
		return 0, false
	}
}
