package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key fits in the budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

const keyPrefix = "better404:ratelimit:"

// RedisLimiter is a fixed-window counter shared by every replica.
type RedisLimiter struct {
	rdb    redis.Cmdable
	limit  int64
	window time.Duration
}

func NewRedisLimiter(rdb redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: int64(limit), window: window}
}

// Allow fails open: a Redis error lets the request through and is returned
// so the caller can log it.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := time.Now().Unix() / max(1, int64(l.window.Seconds()))
	k := fmt.Sprintf("%s%s:%d", keyPrefix, key, bucket)

	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return true, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return true, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	return count <= l.limit, nil
}

// MemoryLimiter keeps a token bucket per key in process memory.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	limit = max(1, limit)
	return &MemoryLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	return lim.Allow(), nil
}

// New returns nil when perMinute is zero or less, meaning unlimited.
// A non-nil rdb selects the shared Redis limiter.
func New(rdb redis.Cmdable, perMinute int) Limiter {
	if perMinute <= 0 {
		return nil
	}
	if rdb != nil {
		return NewRedisLimiter(rdb, perMinute, time.Minute)
	}
	return NewMemoryLimiter(perMinute, time.Minute)
}
