package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"trustgate.io/internal/obs"
)

// Atomic increment-with-expiry keeps concurrent requests from the same
// actor race-free without application-level locking.
var counterScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

const redisOpTimeout = 2 * time.Second

// RedisLimiter counts in a shared Redis store so the limit holds across
// all gateway instances. When Redis is unreachable it degrades to the
// in-memory fallback (or fails open without one): availability wins over
// strict enforcement during infrastructure failure.
type RedisLimiter struct {
	client   *redis.Client
	window   time.Duration
	prefix   string
	fallback *InMemoryLimiter
}

// NewRedis constructs a Redis-backed limiter with an in-memory fallback.
func NewRedis(client *redis.Client, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client:   client,
		window:   window,
		prefix:   "rl:",
		fallback: NewInMemory(window),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	if l.client == nil {
		return l.degraded(ctx, key, limit, "no client configured")
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	res, err := counterScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Result()
	if err != nil {
		return l.degraded(ctx, key, limit, err.Error())
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return l.degraded(ctx, key, limit, "unexpected script reply")
	}
	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = l.window.Milliseconds()
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   int(count) <= limit,
		Count:     int(count),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().UTC().Add(time.Duration(ttlMs) * time.Millisecond),
	}
}

func (l *RedisLimiter) degraded(ctx context.Context, key string, limit int, detail string) Decision {
	obs.LogDegradation("ratelimit", detail)
	obs.CountRateLimitDecision("degraded")
	if l.fallback != nil {
		return l.fallback.Allow(ctx, key, limit)
	}
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   time.Now().UTC().Add(l.window),
	}
}
