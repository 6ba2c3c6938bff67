package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/lumenfest/checkout-engine/internal/adapters/redis"
)

// RateLimiter is a fixed-window limiter on Redis. Fails open when Redis is
// unreachable: checkout must not depend on the limiter being up.
type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	count, err := rl.redis.IncrWindow(ctx, "rl:"+key, period)
	if err != nil {
		return true
	}
	return count <= int64(rate)
}
