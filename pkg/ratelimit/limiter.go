// Package ratelimit implements a token-bucket limiter used to bound the
// request rate of internal/feed.RESTClient's Binance ticker-price
// fallback calls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter: tokens refill continuously at
// rate per second up to a burst capacity, and each call consumes one.
type RateLimiter struct {
	rate       float64
	burst      float64
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter builds a limiter allowing rate requests/sec with bursts
// up to burst. A non-positive rate defaults to 10/sec; a non-positive
// burst defaults to 2x the rate.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	if burst < rate {
		burst = rate
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
	}
}

// refill must be called under mu.
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()

	rl.tokens += elapsed * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastRefill = now
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-time.After(waitTime):
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allow reports whether a token is available right now, consuming one if
// so, without blocking.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Tokens reports the current token count, useful for tests and metrics.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// Rate returns the configured refill rate (tokens/sec).
func (rl *RateLimiter) Rate() float64 { return rl.rate }

// Burst returns the configured burst capacity.
func (rl *RateLimiter) Burst() float64 { return rl.burst }
