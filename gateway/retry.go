package gateway

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig tunes the gateway's backoff loop for transient failures.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the initial
	// one. 0 or 1 means no retries.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
	// Multiplier is the factor the backoff grows by each retry; 2.0 gives
	// exponential backoff.
	Multiplier float64
	// Jitter adds randomness to each delay to avoid thundering herds; 0.1
	// means up to ±10%.
	Jitter float64
}

// DefaultRetryConfig returns the gateway's default retry tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

// backoffFor computes the delay after the given 1-based attempt.
func (c RetryConfig) backoffFor(attempt int) time.Duration {
	backoff := float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(attempt-1))
	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}
	if c.Jitter > 0 {
		backoff += backoff * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(backoff)
}
