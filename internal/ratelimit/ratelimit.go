// Package ratelimit provides redis-backed fixed-window request limits,
// applied per caller IP and per tenant key ahead of any tenant or provider
// work.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	client *redis.Client
}

func New(redisURL string) (*Limiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Limiter{client: redis.NewClient(opt)}, nil
}

// Allow counts a hit for key within the current fixed window and reports
// whether it stays under limit. scope keeps IP and tenant counters separate.
func (l *Limiter) Allow(ctx context.Context, scope, key string, limit int, window time.Duration) (bool, error) {
	bucket := time.Now().UTC().Truncate(window).Unix()
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", scope, key, bucket)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, window)
	}
	return count <= int64(limit), nil
}

func (l *Limiter) Close() error {
	return l.client.Close()
}
