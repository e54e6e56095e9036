// Package ratelimiter throttles chat triggers with a Redis-backed token bucket.
package ratelimiter

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
)

var _ domain.Limiter = (*RedisLuaLimiter)(nil)

// BucketConfig is a token bucket: Capacity tokens, refilled at RefillRate per second.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64
}

// NewBucketConfigFromPerMinute returns a bucket allowing perMinute bursts,
// refilled evenly over a minute. Non-positive input disables the bucket.
func NewBucketConfigFromPerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{
		Capacity:   int64(perMinute),
		RefillRate: float64(perMinute) / 60.0,
	}
}

// ttl is how long an idle bucket lives before it would be full again anyway.
func (c BucketConfig) ttl() time.Duration {
	if c.RefillRate <= 0 {
		return time.Hour
	}
	return time.Duration(math.Ceil(float64(c.Capacity)/c.RefillRate)+1) * time.Second
}

// RedisLuaLimiter implements domain.Limiter. Keys have the form
// "<class>:<subject>" (for example "trigger:1234"); the bucket is chosen by
// class, and each subject gets its own Redis hash.
type RedisLuaLimiter struct {
	redis   *redis.Client
	buckets map[string]BucketConfig
	script  *redis.Script
	mu      sync.RWMutex
}

// NewRedisLuaLimiter returns nil when rdb is nil; a nil limiter allows everything.
func NewRedisLuaLimiter(rdb *redis.Client, buckets map[string]BucketConfig) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	if buckets == nil {
		buckets = map[string]BucketConfig{}
	}
	return &RedisLuaLimiter{
		redis:   rdb,
		buckets: buckets,
		script:  redis.NewScript(luaTokenBucketScript),
	}
}

// Retry-after is returned in milliseconds since Lua numbers are truncated
// to integers on the way back to the client.
const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] ~= false and data[1] ~= nil then
  tokens = tonumber(data[1])
end
if data[2] ~= false and data[2] ~= nil then
  last_refill = tonumber(data[2])
end

if last_refill == nil then
  last_refill = now
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end

tokens = math.min(capacity, tokens + delta * refill_rate)
last_refill = now

local allowed = 0
local retry_after_ms = 0

if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  local shortage = cost - tokens
  if refill_rate > 0 then
    retry_after_ms = math.ceil(shortage / refill_rate * 1000)
  end
end

redis.call("HMSET", key, "tokens", tostring(tokens), "last_refill", tostring(last_refill))
redis.call("EXPIRE", key, ttl)

return { allowed, retry_after_ms }
`

// Allow consumes cost tokens from the bucket of key. Unknown classes and a
// nil limiter always allow. Redis errors fail open and are returned.
func (l *RedisLuaLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil {
		return true, 0, nil
	}
	cfg, ok := l.bucketFor(key)
	if !ok || cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	nowSec := float64(time.Now().UnixNano()) / 1e9
	ttlSec := int64(cfg.ttl() / time.Second)

	redisKey := "rate:" + key
	res, err := l.script.Run(ctx, l.redis, []string{redisKey}, cfg.Capacity, cfg.RefillRate, nowSec, cost, ttlSec).Result()
	if err != nil {
		slog.Error("redis rate limiter script error", slog.String("key", key), slog.Any("error", err))
		return true, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		slog.Error("redis rate limiter unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}

	allowed := toInt64(vals[0]) == 1
	retryAfter := time.Duration(toInt64(vals[1])) * time.Millisecond
	return allowed, retryAfter, nil
}

// Ping checks Redis connectivity for readiness probes.
func (l *RedisLuaLimiter) Ping(ctx context.Context) error {
	if l == nil || l.redis == nil {
		return nil
	}
	return l.redis.Ping(ctx).Err()
}

// SetBucketConfig updates or creates the bucket of a key class. It is safe
// for concurrent use.
func (l *RedisLuaLimiter) SetBucketConfig(class string, cfg BucketConfig) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buckets == nil {
		l.buckets = map[string]BucketConfig{}
	}
	l.buckets[class] = cfg
}

func (l *RedisLuaLimiter) bucketFor(key string) (BucketConfig, bool) {
	class := key
	if i := strings.IndexByte(key, ':'); i >= 0 {
		class = key[:i]
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg, ok := l.buckets[class]
	return cfg, ok
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
