// Package scheduler runs the infinite account rotation: each tick writes the
// heartbeat, picks the account after the last-run one, executes its job under
// the memory-guarded executor, and sleeps a randomized inter-cycle delay. A
// supervisor restarts the loop if it ever crashes.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/config"
	"github.com/JakeFAU/reelrunner/internal/metrics"
	"github.com/JakeFAU/reelrunner/internal/retry"
	"github.com/JakeFAU/reelrunner/internal/runner"
)

// Pipeline runs one account job end to end.
type Pipeline interface {
	Run(ctx context.Context, accountName string) error
}

// sleep is swapped in tests so ticks do not actually wait.
var sleep = sleepContext

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Next returns the account after last in the sorted fleet, wrapping to the
// first when last is unknown, absent, or the final entry.
func Next(names []string, last string) string {
	if len(names) == 0 {
		return ""
	}
	if last == "" {
		return names[0]
	}
	for i, n := range names {
		if n == last {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}

// Scheduler owns the tick loop.
type Scheduler struct {
	cfg          config.SchedulerConfig
	mem          config.MemoryConfig
	accounts     runner.AccountSource
	pipeline     Pipeline
	continuation runner.ContinuationStore
	heartbeat    runner.HeartbeatStore
	notifier     runner.Notifier
	clock        runner.Clock
	rng          *rand.Rand
	logger       *zap.Logger
}

// New builds a Scheduler.
func New(
	cfg config.SchedulerConfig,
	mem config.MemoryConfig,
	accounts runner.AccountSource,
	pipeline Pipeline,
	continuation runner.ContinuationStore,
	heartbeat runner.HeartbeatStore,
	notifier runner.Notifier,
	clock runner.Clock,
	rng *rand.Rand,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		mem:          mem,
		accounts:     accounts,
		pipeline:     pipeline,
		continuation: continuation,
		heartbeat:    heartbeat,
		notifier:     notifier,
		clock:        clock,
		rng:          rng,
		logger:       logger,
	}
}

// Loop ticks until the context is canceled. It never returns for any other
// reason: tick failures and panics are absorbed with a cooldown.
func (s *Scheduler) Loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.tick(ctx)
	}
}

// tick runs one full scheduling cycle. Panics escaping the job are caught
// here so a single poisoned account cannot take the loop down.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tick crashed", zap.Any("panic", r))
			s.notifier.Notify(ctx, fmt.Sprintf("cycle crashed: %v", r), "")
			_ = sleep(ctx, s.cfg.CrashCooldown)
		}
	}()

	now := s.clock.Now()
	if err := s.heartbeat.Beat(now); err != nil {
		s.logger.Warn("heartbeat write failed", zap.Error(err))
	}
	metrics.ObserveBeat(now)

	names, err := s.accounts.List()
	if err != nil {
		s.logger.Error("account listing failed", zap.Error(err))
		s.notifier.Notify(ctx, fmt.Sprintf("account listing failed: %v", err), "")
		_ = sleep(ctx, s.cfg.CrashCooldown)
		return
	}
	if len(names) == 0 {
		s.logger.Warn("no accounts configured")
		s.notifier.Notify(ctx, "no accounts configured, idling", "")
		_ = sleep(ctx, s.cfg.EmptyFleetDelay)
		return
	}

	last := ""
	if rec, err := s.continuation.Load(); err != nil {
		s.logger.Warn("continuation load failed, starting from first account", zap.Error(err))
	} else if rec != nil {
		last = rec.LastAccount
	}
	name := Next(names, last)

	s.logger.Info("cycle starting", zap.String("account", name))
	start := s.clock.Now()
	var attempts int
	_, err = retry.Guarded(ctx, retry.GuardPolicy{
		MaxAttempts: s.mem.MaxAttempts,
		RetryDelay:  s.mem.RetryDelay,
	}, "account job", s.logger, func(ctx context.Context) (struct{}, error) {
		attempts++
		if attempts > 1 {
			metrics.ObserveMemoryRetry()
		}
		return struct{}{}, s.pipeline.Run(ctx, name)
	})
	elapsed := s.clock.Now().Sub(start)

	if err != nil {
		s.logger.Error("cycle failed",
			zap.String("account", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		s.notifier.Notify(ctx, fmt.Sprintf("cycle failed after %s: %v", elapsed.Round(time.Second), err), name)
	} else {
		s.logger.Info("cycle finished",
			zap.String("account", name),
			zap.Duration("elapsed", elapsed),
		)
		s.notifier.Notify(ctx, fmt.Sprintf("cycle finished in %s", elapsed.Round(time.Second)), name)
	}

	_ = sleep(ctx, s.cycleDelay())
}

// cycleDelay draws uniformly from the configured [min, max] window.
func (s *Scheduler) cycleDelay() time.Duration {
	min, max := s.cfg.MinCycleDelay, s.cfg.MaxCycleDelay
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int63n(int64(max-min)+1))
}
