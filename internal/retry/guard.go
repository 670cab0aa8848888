package retry

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrResourceExhausted marks a memory-class failure. Collaborators wrap their
// out-of-memory conditions with this sentinel so the guarded executor can
// distinguish them from ordinary faults.
var ErrResourceExhausted = errors.New("resource exhausted")

// oomFragments catches allocation failures surfaced as bare text by external
// processes (ffmpeg stderr, Chrome crash output) that nothing wrapped for us.
var oomFragments = []string{
	"out of memory",
	"cannot allocate memory",
	"memory exhausted",
}

// IsResourceExhausted reports whether err is a memory-class failure.
func IsResourceExhausted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrResourceExhausted) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range oomFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// GuardPolicy bounds the guarded executor. RetryDelay scales linearly with
// the attempt number, like Policy, but from a distinct budget.
type GuardPolicy struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// reclaim forces a collection pass and returns retained pages to the OS.
// Swapped out by tests to count reclamation passes.
var reclaim = func() {
	runtime.GC()
	debug.FreeOSMemory()
}

// Guarded runs op, re-attempting only resource-exhaustion failures. Between
// such attempts it waits RetryDelay times the attempt number and forces a
// reclamation pass. Any other failure propagates immediately without
// consuming additional attempts. This wraps whole pipeline invocations;
// ordinary per-phase retries happen inside via Do.
func Guarded[T any](ctx context.Context, p GuardPolicy, label string, logger *zap.Logger, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !IsResourceExhausted(err) {
			return zero, err
		}
		logger.Warn("memory pressure detected",
			zap.String("operation", label),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Error(err),
		)
		if attempt >= p.MaxAttempts {
			return zero, err
		}
		if serr := sleep(ctx, p.RetryDelay*time.Duration(attempt)); serr != nil {
			return zero, serr
		}
		reclaim()
	}
}
