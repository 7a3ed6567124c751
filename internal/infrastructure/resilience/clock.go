package resilience

import (
	"context"
	"time"
)

// Clock abstracts time so retry and throttle delays can be driven by tests
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep waits for d, returning ctx.Err() if the context ends first
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
