package infra

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
// Thread-safe and suitable for concurrent API calls.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter.
// maxRequests: maximum burst size
// perSecond: refill rate (requests per second)
func NewRateLimiter(maxRequests int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(maxRequests),
		maxTokens:  float64(maxRequests),
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until weight tokens are available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.WaitN(ctx, 1)
}

// WaitN blocks until n tokens are available or ctx is done.
// n is capped at the bucket size so heavy calls cannot block forever.
func (r *RateLimiter) WaitN(ctx context.Context, n int) error {
	need := float64(n)
	if need > r.maxTokens {
		need = r.maxTokens
	}

	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= need {
			r.tokens -= need
			r.mu.Unlock()
			return nil
		}
		wait := time.Duration((need - r.tokens) / r.refillRate * float64(time.Second))
		r.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// TryAcquire attempts to acquire a token without blocking.
// Returns true if a token was acquired, false otherwise.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time.
// Must be called with mutex held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate

	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	r.lastRefill = now
}

// BinanceLimits groups the limiters for Binance spot REST endpoints.
// Binance meters request weight per minute and order count per 10 seconds.
type BinanceLimits struct {
	Weight *RateLimiter
	Orders *RateLimiter
}

// NewBinanceLimits returns conservative limiters: 1200 weight per minute
// and 50 orders per 10 seconds.
func NewBinanceLimits() *BinanceLimits {
	return &BinanceLimits{
		Weight: NewRateLimiter(1200, 20),
		Orders: NewRateLimiter(50, 5),
	}
}
