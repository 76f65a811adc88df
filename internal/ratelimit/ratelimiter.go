package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	window    = time.Minute
	keyExpiry = 2 * time.Minute
)

// Limiter is used to enforce per-key request rate limits.
type Limiter interface {
	// AllowWithDetails reports whether a request under the given key may
	// proceed, along with the remaining budget in the current window and
	// when the window resets. A limit of 0 or less means unlimited, in
	// which case remaining is -1 and resetAt is the zero time.
	AllowWithDetails(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt time.Time, err error)
}

// NoopLimiter allows all requests (no rate limiting configured).
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(ctx context.Context, key string) bool {
	return true
}

func (l *NoopLimiter) AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	return true, -1, time.Time{}, nil
}

// RateLimiter implements distributed rate limiting using Redis
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// AllowWithDetails checks if a request should be allowed for the given key
// using a sliding window over Redis sorted sets. Timestamps are the scores,
// entries older than the window are trimmed before counting.
func (rl *RateLimiter) AllowWithDetails(ctx context.Context, apiKeyID string, limit int) (bool, int, time.Time, error) {
	if limit <= 0 {
		// No limit configured
		return true, -1, time.Time{}, nil
	}

	key := fmt.Sprintf("ratelimit:%s", apiKeyID)
	now := time.Now()
	windowStart := now.Add(-window)

	pipe := rl.client.Pipeline()

	// Remove old entries outside the window
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixMilli()))

	// Count current requests in window
	countCmd := pipe.ZCard(ctx, key)

	// Oldest surviving entry determines when budget frees up
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	current := int(countCmd.Val())

	resetAt := now.Add(window)
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(window)
	}

	if current >= limit {
		return false, 0, resetAt, nil
	}

	// Record this request with its timestamp as the score
	timestamp := now.UnixMilli()
	pipe = rl.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(timestamp),
		Member: fmt.Sprintf("%d:%d", timestamp, now.Nanosecond()),
	})

	// Set expiry on the key (cleanup old keys)
	pipe.Expire(ctx, key, keyExpiry)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit record failed: %w", err)
	}

	return true, limit - current - 1, resetAt, nil
}

// GetCurrentUsage returns the current request count in the window
func (rl *RateLimiter) GetCurrentUsage(ctx context.Context, apiKeyID string) (int64, error) {
	key := fmt.Sprintf("ratelimit:%s", apiKeyID)
	now := time.Now()
	windowStart := now.Add(-window)

	// Remove old entries
	if err := rl.client.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixMilli())).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	// Count current requests
	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}

	return count, nil
}

// Reset resets the rate limit for a key
func (rl *RateLimiter) Reset(ctx context.Context, apiKeyID string) error {
	key := fmt.Sprintf("ratelimit:%s", apiKeyID)
	return rl.client.Del(ctx, key).Err()
}
