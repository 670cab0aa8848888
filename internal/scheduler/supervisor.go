package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/metrics"
	"github.com/JakeFAU/reelrunner/internal/runner"
)

// Supervisor restarts the scheduler loop if it ever crashes. Ticks already
// absorb per-account failures, so a crash reaching this layer means the loop
// itself is broken; the supervisor notifies, cools down, and relaunches it.
type Supervisor struct {
	run      func(ctx context.Context) error
	cooldown time.Duration
	notifier runner.Notifier
	logger   *zap.Logger
}

// NewSupervisor wraps run, typically (*Scheduler).Loop.
func NewSupervisor(run func(ctx context.Context) error, cooldown time.Duration, notifier runner.Notifier, logger *zap.Logger) *Supervisor {
	return &Supervisor{run: run, cooldown: cooldown, notifier: notifier, logger: logger}
}

// Run keeps the loop alive until the context is canceled, then reports the
// clean stop.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			// The run context is already canceled once the stop signal
			// lands; the notification goes out on a detached context.
			s.notifier.Notify(context.WithoutCancel(ctx), "scheduler stopped cleanly", "")
			return
		}
		metrics.ObserveRestart()
		s.logger.Error("scheduler crashed, restarting", zap.Error(err))
		s.notifier.Notify(ctx, fmt.Sprintf("scheduler crashed, restarting: %v", err), "")
		_ = sleep(ctx, s.cooldown)
	}
}

// runOnce converts a panic in the loop into an error so Run can restart it.
func (s *Supervisor) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loop panic: %v", r)
		}
	}()
	return s.run(ctx)
}
