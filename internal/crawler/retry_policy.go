package crawler

import (
	"context"
	"errors"
	"time"
)

// Defaults for fetch retries and pacing.
const (
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 2 * time.Second
	DefaultPageDelay   = 3 * time.Second
	DefaultDetailDelay = time.Second
)

// RetryPolicy decides whether and when a failed attempt is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// FixedRetryPolicy retries up to MaxRetries times with a constant delay.
type FixedRetryPolicy struct {
	maxRetries int
	delay      time.Duration
}

// NewFixedRetryPolicy builds a policy. Negative values are treated as zero.
func NewFixedRetryPolicy(maxRetries int, delay time.Duration) *FixedRetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if delay < 0 {
		delay = 0
	}
	return &FixedRetryPolicy{maxRetries: maxRetries, delay: delay}
}

// MaxAttempts is the total number of attempts the policy allows.
func (p *FixedRetryPolicy) MaxAttempts() int {
	return p.maxRetries + 1
}

// ShouldRetry reports whether attempt (1-based) may be followed by another.
func (p *FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt > p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Backoff returns the wait before the next attempt; it does not grow.
func (p *FixedRetryPolicy) Backoff(int) time.Duration {
	return p.delay
}
