// internal/ratelimit/redis.go
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter shared by every API instance.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	period time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter allows limit calls per key in each period across all processes.
func NewRedisLimiter(rdb *redis.Client, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{
		rdb:    rdb,
		limit:  limit,
		period: period,
		prefix: "ledger:ratelimit:",
		now:    time.Now,
	}
}

// Allow increments key's counter for the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := l.windowKey(key)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, windowKey)
		pipe.Expire(ctx, windowKey, l.period)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}
	return incr.Val() <= int64(l.limit), nil
}

func (l *RedisLimiter) windowKey(key string) string {
	window := l.now().Truncate(l.period).Unix()
	return l.prefix + key + ":" + strconv.FormatInt(window, 10)
}
