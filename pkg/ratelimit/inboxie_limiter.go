// Package ratelimit provides rate limiting for provider and API calls.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBucket is an in-process token bucket limiter. Label application against
// the mail provider goes through one of these instead of ad-hoc sleeps, so the
// rate lives in one place and is parameterized per provider.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	rate     float64 // tokens per second
	last     time.Time
}

// NewTokenBucket creates a bucket that refills at ratePerSecond up to burst.
// The bucket starts full.
func NewTokenBucket(ratePerSecond, burst int) *TokenBucket {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = ratePerSecond
	}
	return &TokenBucket{
		capacity: float64(burst),
		tokens:   float64(burst),
		rate:     float64(ratePerSecond),
		last:     time.Now(),
	}
}

func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
}

// TryTake takes a token if one is available without blocking.
func (b *TokenBucket) TryTake() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := time.Now()
		b.refill(now)
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		// Time until the next token accrues.
		wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// SlidingWindowLimiter implements sliding window rate limiting using Redis.
// Protects the API surface; falls open when Redis is unavailable.
type SlidingWindowLimiter struct {
	redis     *redis.Client
	rate      int
	window    time.Duration
	burstSize int
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
func NewSlidingWindowLimiter(redisClient *redis.Client, requestsPerSecond, burstSize int) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:     redisClient,
		rate:      requestsPerSecond,
		window:    time.Second,
		burstSize: burstSize,
	}
}

// Allow checks if request is allowed and returns wait duration if not.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l.redis == nil {
		return true, 0
	}

	now := time.Now()
	windowStart := now.Add(-l.window)
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	// Lua script for atomic sliding window check
	script := redis.NewScript(`
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local max_requests = tonumber(ARGV[3])
		local window_ms = tonumber(ARGV[4])

		redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

		local count = redis.call('ZCARD', key)

		if count < max_requests then
			redis.call('ZADD', key, now, now .. '-' .. math.random())
			redis.call('PEXPIRE', key, window_ms * 2)
			return 1
		else
			local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
			if #oldest > 0 then
				return -(oldest[2] + window_ms - now)
			end
			return 0
		end
	`)

	result, err := script.Run(ctx, l.redis, []string{redisKey},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		l.rate+l.burstSize,
		l.window.Milliseconds(),
	).Int64()

	if err != nil {
		return true, 0
	}

	if result == 1 {
		return true, 0
	}

	// result is negative wait time in milliseconds
	if result < 0 {
		return false, time.Duration(-result) * time.Millisecond
	}

	return false, l.window
}

// RunGuard is a per-user distributed lock over Redis. A pipeline run holds the
// lock for its duration; a second run for the same user is rejected instead of
// racing the quota counter.
type RunGuard struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRunGuard creates a run guard with the given lock TTL.
func NewRunGuard(redisClient *redis.Client, ttl time.Duration) *RunGuard {
	return &RunGuard{redis: redisClient, ttl: ttl}
}

func (g *RunGuard) key(userID string) string {
	return fmt.Sprintf("pipeline:run:%s", userID)
}

// TryAcquire attempts to take the run lock for userID. Returns false when a
// run is already in flight. When Redis is unavailable the guard fails open so
// a cache outage does not block processing.
func (g *RunGuard) TryAcquire(ctx context.Context, userID string) (bool, error) {
	if g.redis == nil {
		return true, nil
	}
	ok, err := g.redis.SetNX(ctx, g.key(userID), "1", g.ttl).Result()
	if err != nil {
		return true, nil
	}
	return ok, nil
}

// Release drops the run lock. Safe to call when the lock already expired.
func (g *RunGuard) Release(ctx context.Context, userID string) {
	if g.redis == nil {
		return
	}
	g.redis.Del(ctx, g.key(userID))
}
