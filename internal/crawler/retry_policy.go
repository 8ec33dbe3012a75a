package crawler

import (
	"context"
	"time"
)

// DoublingRetryPolicy retries every failure, timeouts included, until the
// caller's context is done. It waits
// base, 2·base, 4·base ... between attempts. There is no jitter.
type DoublingRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// NewDoublingRetryPolicy builds a policy. maxAttempts < 1 is treated as 1.
func NewDoublingRetryPolicy(maxAttempts int, baseDelay time.Duration) *DoublingRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	return &DoublingRetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// MaxAttempts is the total number of attempts, including the first.
func (p *DoublingRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether another attempt follows attempt (1-based).
// A per-request timeout is retried; only a done ctx stops the loop early.
func (p *DoublingRetryPolicy) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	return ctx.Err() == nil
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p *DoublingRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.baseDelay << (attempt - 1)
}
