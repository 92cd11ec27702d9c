package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/artboard/server/internal/utils/middleware"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimiter is a sliding window limiter over a redis sorted set.
type RateLimiter struct {
	client redis.UniversalClient
}

// NewRateLimiter creates a new rate limiter adapter.
func NewRateLimiter(client redis.UniversalClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow records one request for key if fewer than limit were seen in window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := rateLimitKeyPrefix + key
	now := time.Now().UnixNano()

	count, err := r.count(ctx, fullKey, now, window)
	if err != nil {
		return false, err
	}
	if count+1 > int64(limit) {
		return false, nil
	}

	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, fullKey, redis.Z{
		Score:  float64(now),
		Member: strconv.FormatInt(now, 10) + "-" + uuid.NewString(),
	})
	pipe.Expire(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// GetRemaining returns how many requests key may still make in window.
func (r *RateLimiter) GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	count, err := r.count(ctx, rateLimitKeyPrefix+key, time.Now().UnixNano(), window)
	if err != nil {
		return 0, err
	}
	return max(limit-int(count), 0), nil
}

// count drops entries older than window and returns the remaining cardinality.
func (r *RateLimiter) count(ctx context.Context, fullKey string, now int64, window time.Duration) (int64, error) {
	windowStart := now - window.Nanoseconds()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, fullKey, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return countCmd.Val(), nil
}

// Compile-time check
var _ middleware.RateLimiter = (*RateLimiter)(nil)
