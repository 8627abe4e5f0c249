package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kamitools/kami/pkg/types"
)

// Redis-backed variant of the execution rate limiter for deployments
// running several KAMI instances against one catalog. Buckets live in
// Redis and the check-and-debit is atomic in a Lua script, mirroring
// the in-process window-reset semantics.

// redisWindowBucketScript resets the bucket when the window has passed,
// then debits one token.
// KEYS[1] = bucket key
// ARGV[1] = capacity
// ARGV[2] = window in milliseconds
// ARGV[3] = current unix time in milliseconds
var redisWindowBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "window_start")
local tokens = tonumber(state[1])
local window_start = tonumber(state[2])

if not tokens or not window_start or now_ms - window_start >= window_ms then
    tokens = capacity
    window_start = now_ms
end

local allowed = 0
if tokens > 0 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "window_start", window_start)
redis.call("PEXPIRE", key, window_ms * 2)

return allowed
`)

// RedisRateLimiter enforces the per-tool and global caps through Redis.
type RedisRateLimiter struct {
	client *redis.Client
	config RateLimitConfig
	prefix string
}

// NewRedisRateLimiter connects a limiter to the Redis instance at addr.
func NewRedisRateLimiter(addr, password string, db int, config RateLimitConfig) *RedisRateLimiter {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &RedisRateLimiter{client: client, config: config, prefix: "kami:ratelimit"}
}

// Check reports whether one more execution of id is admitted now.
// A Redis outage fails open with a warning: rate limiting is a guard,
// not a correctness requirement, and the admission gate still bounds
// local concurrency.
func (r *RedisRateLimiter) Check(ctx context.Context, id types.ToolID) bool {
	if r.config.Global == 0 && r.config.PerTool == 0 {
		return true
	}
	if r.config.Global > 0 {
		ok, err := r.tryAcquire(ctx, r.prefix+":global", r.config.Global)
		if err != nil {
			slog.Warn("redis rate limiter unavailable, failing open", "error", err)
			return true
		}
		if !ok {
			return false
		}
	}
	if r.config.PerTool > 0 {
		ok, err := r.tryAcquire(ctx, fmt.Sprintf("%s:tool:%s", r.prefix, id), r.config.PerTool)
		if err != nil {
			slog.Warn("redis rate limiter unavailable, failing open", "error", err)
			return true
		}
		if !ok {
			return false
		}
	}
	return true
}

func (r *RedisRateLimiter) tryAcquire(ctx context.Context, key string, capacity uint64) (bool, error) {
	res, err := redisWindowBucketScript.Run(ctx, r.client, []string{key},
		capacity, r.config.Window.Milliseconds(), time.Now().UnixMilli()).Result()
	if err != nil {
		return false, err
	}
	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result %T", res)
	}
	return allowed == 1, nil
}

// Close releases the Redis connection.
func (r *RedisRateLimiter) Close() error { return r.client.Close() }
