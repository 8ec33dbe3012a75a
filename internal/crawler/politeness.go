package crawler

import (
	"context"
	"time"
)

// Sleep blocks for delay or until ctx is done.
func Sleep(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
