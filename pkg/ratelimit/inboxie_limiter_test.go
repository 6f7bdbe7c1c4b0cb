package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketBurst(t *testing.T) {
	bucket := NewTokenBucket(5, 3)

	// Full bucket allows the burst immediately.
	for i := 0; i < 3; i++ {
		if !bucket.TryTake() {
			t.Fatalf("take %d: expected token available", i)
		}
	}

	// Burst exhausted, next take must fail.
	if bucket.TryTake() {
		t.Fatal("expected empty bucket to refuse a token")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	bucket := NewTokenBucket(100, 1)

	if !bucket.TryTake() {
		t.Fatal("expected initial token")
	}
	if bucket.TryTake() {
		t.Fatal("expected bucket drained")
	}

	// At 100/s a token accrues within ~10ms.
	time.Sleep(25 * time.Millisecond)
	if !bucket.TryTake() {
		t.Fatal("expected bucket refilled after waiting")
	}
}

func TestTokenBucketWaitBlocks(t *testing.T) {
	bucket := NewTokenBucket(50, 1)
	ctx := context.Background()

	if err := bucket.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := bucket.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("expected wait to block for a token, returned after %v", elapsed)
	}
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	bucket := NewTokenBucket(1, 1)
	bucket.TryTake() // drain

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := bucket.Wait(ctx); err == nil {
		t.Fatal("expected context error from cancelled wait")
	}
}

func TestTokenBucketDefaults(t *testing.T) {
	tests := []struct {
		name  string
		rate  int
		burst int
	}{
		{"zero rate", 0, 5},
		{"negative rate", -1, 5},
		{"zero burst", 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket := NewTokenBucket(tt.rate, tt.burst)
			if !bucket.TryTake() {
				t.Error("expected a usable bucket despite bad config")
			}
		})
	}
}

func TestSlidingWindowNoRedis(t *testing.T) {
	limiter := NewSlidingWindowLimiter(nil, 10, 20)

	allowed, wait := limiter.Allow(context.Background(), "user-1")
	if !allowed {
		t.Error("expected fail-open without redis")
	}
	if wait != 0 {
		t.Errorf("expected zero wait, got %v", wait)
	}
}

func TestRunGuardNoRedis(t *testing.T) {
	guard := NewRunGuard(nil, time.Minute)

	ok, err := guard.TryAcquire(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected fail-open without redis")
	}
	guard.Release(context.Background(), "user-1")
}
