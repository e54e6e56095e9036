package app

import (
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/llm-chat-relay/internal/config"
	"github.com/fairyhunter13/llm-chat-relay/internal/service/ratelimiter"
	"github.com/fairyhunter13/llm-chat-relay/internal/usecase"
)

// BuildLimiter returns the Redis throttle with one bucket per responder key
// class, or nil when no Redis client is configured.
func BuildLimiter(rdb *redis.Client, cfg config.Config) *ratelimiter.RedisLuaLimiter {
	rl := ratelimiter.NewRedisLuaLimiter(rdb, nil)
	if rl == nil {
		return nil
	}
	rl.SetBucketConfig(usecase.ThrottleTrigger, ratelimiter.NewBucketConfigFromPerMinute(cfg.TriggerRateLimitPerMin))
	rl.SetBucketConfig(usecase.ThrottleAsk, ratelimiter.NewBucketConfigFromPerMinute(cfg.AskRateLimitPerMin))
	return rl
}
