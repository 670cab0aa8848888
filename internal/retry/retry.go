// Package retry implements the two retry primitives the pipeline is built on:
// a linear-backoff executor for ordinary transient failures and a
// memory-guarded executor that only re-attempts resource-exhaustion failures.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Policy bounds a retried operation. The delay before attempt n+1 is
// BaseDelay multiplied by n, so the total worst-case wait is
// BaseDelay * MaxAttempts * (MaxAttempts-1) / 2 and known at call time.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// sleep is swapped out by tests to assert backoff arithmetic without waiting.
var sleep = sleepContext

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do invokes op up to p.MaxAttempts times. A success returns immediately and
// is logged only when it took more than one attempt. After each failure the
// executor sleeps BaseDelay times the attempt number, except after the final
// attempt. When all attempts are exhausted the LAST observed error is
// returned. Do is oblivious to what op does and never inspects error types.
func Do[T any](ctx context.Context, p Policy, label string, logger *zap.Logger, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry",
					zap.String("operation", label),
					zap.Int("attempt", attempt),
				)
			}
			return result, nil
		}
		lastErr = err
		logger.Warn("operation attempt failed",
			zap.String("operation", label),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Error(err),
		)
		if attempt < p.MaxAttempts {
			if serr := sleep(ctx, p.BaseDelay*time.Duration(attempt)); serr != nil {
				return zero, serr
			}
		}
	}
	if lastErr == nil {
		return zero, fmt.Errorf("all %d attempts failed for %s", p.MaxAttempts, label)
	}
	return zero, lastErr
}
