package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordSleeps replaces the package sleep with a recorder and restores it
// when the test finishes. Tests using it must not run in parallel.
func recordSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleep
	sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	t.Cleanup(func() { sleep = orig })
	return &slept
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	slept := recordSleeps(t)

	const base = 5 * time.Second
	attempts := 0
	result, err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: base}, "flaky", zap.NewNop(),
		func(context.Context) (string, error) {
			attempts++
			if attempts <= 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 4, attempts)

	// Waits are base*1, base*2, base*3: the linear backoff series.
	require.Equal(t, []time.Duration{base, 2 * base, 3 * base}, *slept)

	var total time.Duration
	for _, d := range *slept {
		total += d
	}
	require.Equal(t, base*(1+2+3), total)
}

func TestDo_ReturnsLastError(t *testing.T) {
	recordSleeps(t)

	attempts := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Second}, "doomed", zap.NewNop(),
		func(context.Context) (int, error) {
			attempts++
			return 0, fmt.Errorf("failure %d", attempts)
		})
	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.EqualError(t, err, "failure 3")
}

func TestDo_NoSleepAfterFinalAttempt(t *testing.T) {
	slept := recordSleeps(t)

	_, err := Do(context.Background(), Policy{MaxAttempts: 2, BaseDelay: time.Second}, "doomed", zap.NewNop(),
		func(context.Context) (int, error) {
			return 0, errors.New("nope")
		})
	require.Error(t, err)
	require.Equal(t, []time.Duration{time.Second}, *slept)
}

func TestDo_FirstAttemptSuccessSkipsBackoff(t *testing.T) {
	slept := recordSleeps(t)

	result, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Hour}, "steady", zap.NewNop(),
		func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, result)
	require.Empty(t, *slept)
}

func TestDo_CancelBetweenAttempts(t *testing.T) {
	orig := sleep
	sleep = sleepContext
	t.Cleanup(func() { sleep = orig })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Hour}, "canceled", zap.NewNop(),
		func(context.Context) (int, error) { return 0, errors.New("transient") })
	require.ErrorIs(t, err, context.Canceled)
}

func TestGuarded_RetriesOnlyResourceExhaustion(t *testing.T) {
	slept := recordSleeps(t)
	reclaims := 0
	origReclaim := reclaim
	reclaim = func() { reclaims++ }
	t.Cleanup(func() { reclaim = origReclaim })

	attempts := 0
	result, err := Guarded(context.Background(), GuardPolicy{MaxAttempts: 3, RetryDelay: time.Minute}, "job", zap.NewNop(),
		func(context.Context) (string, error) {
			attempts++
			if attempts == 1 {
				return "", fmt.Errorf("allocating buffer: %w", ErrResourceExhausted)
			}
			return "done", nil
		})
	require.NoError(t, err)
	require.Equal(t, "done", result)
	require.Equal(t, 2, attempts)
	require.Equal(t, 1, reclaims)
	require.Equal(t, []time.Duration{time.Minute}, *slept)
}

func TestGuarded_OrdinaryFailurePropagatesImmediately(t *testing.T) {
	recordSleeps(t)
	reclaims := 0
	origReclaim := reclaim
	reclaim = func() { reclaims++ }
	t.Cleanup(func() { reclaim = origReclaim })

	attempts := 0
	_, err := Guarded(context.Background(), GuardPolicy{MaxAttempts: 3, RetryDelay: time.Minute}, "job", zap.NewNop(),
		func(context.Context) (string, error) {
			attempts++
			return "", errors.New("page load timeout")
		})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Zero(t, reclaims)
}

func TestGuarded_ExhaustedBudgetPropagates(t *testing.T) {
	recordSleeps(t)
	origReclaim := reclaim
	reclaim = func() {}
	t.Cleanup(func() { reclaim = origReclaim })

	attempts := 0
	_, err := Guarded(context.Background(), GuardPolicy{MaxAttempts: 3, RetryDelay: time.Minute}, "job", zap.NewNop(),
		func(context.Context) (string, error) {
			attempts++
			return "", ErrResourceExhausted
		})
	require.ErrorIs(t, err, ErrResourceExhausted)
	require.Equal(t, 3, attempts)
}

func TestIsResourceExhausted(t *testing.T) {
	t.Parallel()
	require.True(t, IsResourceExhausted(ErrResourceExhausted))
	require.True(t, IsResourceExhausted(fmt.Errorf("ffmpeg: %w", ErrResourceExhausted)))
	require.True(t, IsResourceExhausted(errors.New("mmap failed: Cannot allocate memory")))
	require.False(t, IsResourceExhausted(errors.New("connection refused")))
	require.False(t, IsResourceExhausted(nil))
}
