// Package system provides the wall clock and a fixed clock for tests.
package system

import (
	"sync"
	"time"
)

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a clock that returns a set time, advancing by Step on every call.
type Fixed struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewFixed returns a Fixed clock starting at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

// Now returns the current fixed time and advances it by Step.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now
	f.now = f.now.Add(f.Step)
	return now
}
