package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindow increments the counter for KEYS[1] and starts its expiry on the
// first hit of a window. It returns {allowed, remaining, ttl_seconds}.
var fixedWindow = redis.NewScript(`
	local key = KEYS[1]
	local max_requests = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	if current >= max_requests then
		return {0, 0, redis.call('TTL', key)}
	end

	current = redis.call('INCR', key)
	if current == 1 then
		redis.call('EXPIRE', key, window)
	end
	return {1, max_requests - current, redis.call('TTL', key)}
`)

// Limiter is a fixed-window request limiter shared across instances through
// Redis. Each key gets maxRequests per window.
type Limiter struct {
	client      *redis.Client
	prefix      string
	maxRequests int
	window      time.Duration
}

// NewLimiter creates a limiter, e.g. NewLimiter(client, "verify", 10, time.Minute).
func NewLimiter(client *redis.Client, prefix string, maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		client:      client,
		prefix:      prefix,
		maxRequests: maxRequests,
		window:      window,
	}
}

func (l *Limiter) redisKey(key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", l.prefix, key)
}

// Allow consumes one request for key.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	windowSeconds := int(l.window.Seconds())
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	result, err := fixedWindow.Run(ctx, l.client, []string{l.redisKey(key)}, l.maxRequests, windowSeconds).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(result) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected rate limit result: %v", result)
	}

	ttl := result[2]
	if ttl < 0 {
		ttl = int64(windowSeconds)
	}

	allowed := result[0] == 1
	remaining := int(result[1])
	resetTime := time.Now().Add(time.Duration(ttl) * time.Second)

	return allowed, remaining, resetTime, nil
}

// Reset clears the window for a key
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.redisKey(key)).Err()
}

// MaxRequests returns the maximum number of requests allowed per window
func (l *Limiter) MaxRequests() int {
	return l.maxRequests
}
