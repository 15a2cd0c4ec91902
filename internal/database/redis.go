package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis. rawURL is either a redis:// or rediss://
// URL or a bare host:port.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redisOptions(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, nil
}

func redisOptions(rawURL string) (*redis.Options, error) {
	if strings.HasPrefix(rawURL, "redis://") || strings.HasPrefix(rawURL, "rediss://") {
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		return opts, nil
	}
	if rawURL == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	return &redis.Options{Addr: rawURL}, nil
}
