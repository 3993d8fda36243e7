package probe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy is a fixed-delay, bounded retry loop.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc
}

// Do calls fn until it succeeds or MaxAttempts calls have been made. It
// returns the number of calls made. fn is never called more than
// MaxAttempts times, and the delay is only spent between attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == maxAttempts {
			break
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return attempt, fmt.Errorf("retry aborted after %d attempts: %w (last error: %v)", attempt, err, lastErr)
		}
	}

	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
