package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func TestRetryPolicy_SucceedsFirstAttempt(t *testing.T) {
	rec := &sleepRecorder{}
	policy := RetryPolicy{MaxAttempts: 10, Delay: time.Second, Sleep: rec.sleep}

	attempts, err := policy.Do(context.Background(), func(int) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, rec.calls)
}

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	rec := &sleepRecorder{}
	policy := RetryPolicy{MaxAttempts: 10, Delay: time.Second, Sleep: rec.sleep}

	attempts, err := policy.Do(context.Background(), func(attempt int) error {
		if attempt < 4 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, rec.calls)
}

func TestRetryPolicy_NeverExceedsMaxAttempts(t *testing.T) {
	rec := &sleepRecorder{}
	policy := RetryPolicy{MaxAttempts: 10, Delay: time.Second, Sleep: rec.sleep}

	calls := 0
	transportErr := errors.New("dial tcp: connection refused")
	attempts, err := policy.Do(context.Background(), func(int) error {
		calls++
		return transportErr
	})

	assert.Equal(t, 10, calls)
	assert.Equal(t, 10, attempts)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, transportErr)
	assert.Len(t, rec.calls, 9, "no delay after the final attempt")
}

func TestRetryPolicy_ZeroAttemptsMeansOne(t *testing.T) {
	calls := 0
	_, err := RetryPolicy{}.Do(context.Background(), func(int) error {
		calls++
		return errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	policy := RetryPolicy{MaxAttempts: 10, Delay: time.Hour}
	attempts, err := policy.Do(ctx, func(int) error {
		calls++
		return errors.New("fail")
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepContext(t *testing.T) {
	start := time.Now()
	require.NoError(t, sleepContext(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
