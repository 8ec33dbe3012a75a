// Package ratelimit implements the global request spacing applied before
// every fetch, regardless of host.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
)

// Limiter spaces requests by a fixed delay.
type Limiter struct {
	limiter *rate.Limiter
	delay   time.Duration
}

// Config holds rate limiter configuration.
type Config struct {
	// Delay is the minimum spacing between requests. Zero disables limiting.
	Delay time.Duration
}

// New creates a new Limiter. The first Wait returns immediately.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, 1),
		delay:   cfg.Delay,
	}
}

// Delay returns the configured spacing.
func (l *Limiter) Delay() time.Duration {
	return l.delay
}

// Wait blocks until the next request may be sent, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	crawler.ThrottleWait.Observe(time.Since(start).Seconds())
	return nil
}
