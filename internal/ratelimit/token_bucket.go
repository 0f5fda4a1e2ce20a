// Package ratelimit throttles outbound calls to listing sources with a token
// bucket kept in Redis, so every process sharing the Redis instance shares the
// same per-source budget.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/telemetry"
)

const keyPrefix = "ratelimit:source:"

// TokenBucket is a Redis-backed token bucket keyed by source name.
type TokenBucket struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenBucket constructs a bucket with the provided capacity and refill rate.
func NewTokenBucket(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	return &TokenBucket{
		client:   client,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow consumes a single token for source if one is available.
// It returns the allowed flag and the tokens left afterwards.
func (b *TokenBucket) Allow(ctx context.Context, source string) (bool, float64, error) {
	now := b.now().UnixMilli()
	res, err := bucketScript.Run(ctx, b.client, []string{keyPrefix + source}, b.capacity, b.refill, now, b.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("token bucket %s: %w", source, err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, fmt.Errorf("token bucket %s: unexpected script reply %T", source, res)
	}
	allowed := arr[0] == int64(1)
	var tokens float64
	switch v := arr[1].(type) {
	case int64:
		tokens = float64(v)
	case float64:
		tokens = v
	case string:
		_, _ = fmt.Sscan(v, &tokens)
	}
	return allowed, tokens, nil
}

// Wait blocks until a token for source is available or ctx is done.
func (b *TokenBucket) Wait(ctx context.Context, source string) error {
	waited := false
	for {
		allowed, tokens, err := b.Allow(ctx, source)
		if err != nil {
			return err
		}
		if allowed {
			if waited {
				telemetry.RateLimitWaits.Inc()
			}
			return nil
		}
		waited = true
		timer := time.NewTimer(b.retryAfter(tokens))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for %s token: %w", source, ctx.Err())
		case <-timer.C:
		}
	}
}

// retryAfter estimates how long until one whole token has accumulated.
func (b *TokenBucket) retryAfter(tokens float64) time.Duration {
	if b.refill <= 0 {
		return time.Second
	}
	missing := max(1-tokens, 0)
	d := time.Duration(missing / b.refill * float64(time.Second))
	return max(d, 5*time.Millisecond)
}

// Redis truncates Lua numbers to integers in replies, so tokens go back as a string.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
local add = delta / 1000 * refill
tokens = math.min(capacity, tokens + add)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tostring(tokens)}
`)
