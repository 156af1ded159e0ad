package session

import (
	"math/rand/v2"
	"time"
)

// Default per-message retry schedule. A batch holds its session for the
// whole retry window, so these stay short.
var retrySchedule = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	15 * time.Second,
}

// RetryStrategy is backoff with jitter for transient send failures.
type RetryStrategy struct {
	MaxRetries int
	Schedule   []time.Duration
}

// NewRetryStrategy uses the default schedule. maxAttempts counts the first
// try, so maxAttempts=3 allows two retries.
func NewRetryStrategy(maxAttempts int) *RetryStrategy {
	retries := maxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return &RetryStrategy{MaxRetries: retries, Schedule: retrySchedule}
}

// ShouldRetry reports whether another attempt is allowed after retryCount retries.
func (r *RetryStrategy) ShouldRetry(retryCount int) bool {
	return retryCount < r.MaxRetries
}

// NextBackoff returns base * [0.5, 1.0) for the given retry.
func (r *RetryStrategy) NextBackoff(retryCount int) time.Duration {
	if len(r.Schedule) == 0 {
		return 0
	}
	idx := retryCount
	if idx >= len(r.Schedule) {
		idx = len(r.Schedule) - 1
	}

	base := r.Schedule[idx]
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(base) * jitter)
}
