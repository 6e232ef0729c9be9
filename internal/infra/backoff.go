package infra

import (
	"time"
)

const (
	// Standard backoff constants
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// CalculateBackoff returns the exponential backoff duration for a given retry count.
// Logic: baseDelay * 2^retryCount, capped at maxDelay.
// If retryCount is negative, it returns baseDelay.
func CalculateBackoff(retryCount int) time.Duration {
	return ExponentialBackoff(baseDelay, maxDelay)(retryCount)
}

// ExponentialBackoff returns base * 2^retry capped at max.
func ExponentialBackoff(base, max time.Duration) func(retry int) time.Duration {
	return func(retry int) time.Duration {
		if retry < 0 {
			return base
		}
		// 2^30 seconds is far beyond any sensible cap.
		if retry > 30 {
			return max
		}
		backoff := base * time.Duration(1<<retry)
		if backoff > max || backoff <= 0 {
			return max
		}
		return backoff
	}
}
