// Package pipeline runs the sequential per-account job: acquire a target,
// fetch its asset, extract and sanitize metadata, transform the asset, and
// publish it. Any phase failure halts the job for this cycle; a finalizer
// always cleans up and advances the continuation record so a failing account
// never monopolizes the rotation.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/caption"
	"github.com/JakeFAU/reelrunner/internal/config"
	"github.com/JakeFAU/reelrunner/internal/logging"
	"github.com/JakeFAU/reelrunner/internal/metrics"
	"github.com/JakeFAU/reelrunner/internal/retry"
	"github.com/JakeFAU/reelrunner/internal/runner"
)

// maxPublishHashtags bounds how many pool hashtags are appended to the
// published caption.
const maxPublishHashtags = 10

// AccountStore is the slice of account management the pipeline needs.
type AccountStore interface {
	Load(name string) (runner.Account, error)
	PruneSnapshots(account string) error
}

// Pipeline wires the phase collaborators together for one account job.
type Pipeline struct {
	cfg          config.Config
	accounts     AccountStore
	browser      runner.Browser
	downloader   runner.Downloader
	transcoder   runner.Transcoder
	rewriter     runner.Rewriter
	notifier     runner.Notifier
	continuation runner.ContinuationStore
	clock        runner.Clock
	rng          *rand.Rand
	logger       *zap.Logger
}

// New builds a Pipeline.
func New(
	cfg config.Config,
	accounts AccountStore,
	browser runner.Browser,
	downloader runner.Downloader,
	transcoder runner.Transcoder,
	rewriter runner.Rewriter,
	notifier runner.Notifier,
	continuation runner.ContinuationStore,
	clock runner.Clock,
	rng *rand.Rand,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		accounts:     accounts,
		browser:      browser,
		downloader:   downloader,
		transcoder:   transcoder,
		rewriter:     rewriter,
		notifier:     notifier,
		continuation: continuation,
		clock:        clock,
		rng:          rng,
		logger:       logger,
	}
}

// Run executes one full job for the named account. The finalizer runs on
// every exit path, including panics unwinding through the guarded executor.
func (p *Pipeline) Run(ctx context.Context, accountName string) error {
	job := runner.JobState{
		JobID:                uuid.NewString(),
		AccountName:          accountName,
		AssetPath:            p.cfg.AssetPath(accountName),
		TransformedAssetPath: p.cfg.TransformedAssetPath(accountName),
	}
	log := p.logger.With(
		zap.String("account", accountName),
		zap.String("job_id", job.JobID),
	)
	defer p.finalize(job, log)

	acct, err := p.accounts.Load(accountName)
	if err != nil {
		metrics.ObserveCycle(accountName, "skipped")
		p.notifier.Notify(ctx, fmt.Sprintf("account skipped: %v", err), accountName)
		return fmt.Errorf("load account %s: %w", accountName, err)
	}

	if err := p.runPhases(ctx, acct, &job, log); err != nil {
		metrics.ObserveCycle(accountName, "failed")
		return err
	}
	metrics.ObserveCycle(accountName, "success")
	log.Info("job complete", zap.String("target", job.TargetURL))
	return nil
}

func (p *Pipeline) runPhases(ctx context.Context, acct runner.Account, job *runner.JobState, log *zap.Logger) error {
	target, err := runPhase(ctx, p, runner.PhaseAcquireTarget, p.cfg.Phases.Acquire, log,
		func(ctx context.Context) (string, error) {
			return p.browser.AcquireTarget(ctx, acct)
		})
	if err != nil {
		return err
	}
	job.TargetURL = target

	_, err = runPhase(ctx, p, runner.PhaseFetchAsset, p.cfg.Phases.Fetch, log,
		func(ctx context.Context) (struct{}, error) {
			src, err := p.browser.HarvestAsset(ctx, acct, job.TargetURL)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, p.downloader.Fetch(ctx, src, job.AssetPath)
		})
	if err != nil {
		return err
	}

	text, err := runPhase(ctx, p, runner.PhaseExtractMetadata, p.cfg.Phases.Extract, log,
		func(ctx context.Context) (string, error) {
			raw, err := p.browser.ExtractCaption(ctx, acct, job.TargetURL)
			if err != nil {
				return "", err
			}
			normalized := caption.Normalize(raw)
			rewritten := p.rewriter.Rewrite(ctx, acct.Name, normalized)
			sanitized := caption.Sanitize(rewritten)
			if werr := os.WriteFile(p.cfg.CaptionPath(acct.Name), []byte(sanitized), 0o644); werr != nil {
				log.Warn("caption file write failed", zap.Error(werr))
			}
			return sanitized, nil
		})
	if err != nil {
		return err
	}
	job.CaptionText = text

	_, err = runPhase(ctx, p, runner.PhaseTransformAsset, p.cfg.Phases.Transform, log,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.transcoder.Transform(ctx, acct, job.AssetPath, job.TransformedAssetPath)
		})
	if err != nil {
		return err
	}

	final := p.composeCaption(acct, job.CaptionText)
	_, err = runPhase(ctx, p, runner.PhasePublish, p.cfg.Phases.Publish, log,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.browser.Publish(ctx, acct, job.TransformedAssetPath, final)
		})
	return err
}

// runPhase wraps one phase in the linear-backoff retry executor and records
// its duration and terminal failures.
func runPhase[T any](ctx context.Context, p *Pipeline, phase runner.Phase, pol config.PhasePolicy, log *zap.Logger, op func(context.Context) (T, error)) (T, error) {
	start := p.clock.Now()
	v, err := retry.Do(ctx, retry.Policy{MaxAttempts: pol.MaxAttempts, BaseDelay: pol.BaseDelay}, string(phase), log, op)
	metrics.ObservePhase(string(phase), p.clock.Now().Sub(start))
	if err != nil {
		metrics.ObservePhaseFailure(string(phase))
		return v, fmt.Errorf("phase %s: %w", phase, err)
	}
	return v, nil
}

// composeCaption builds the text handed to the upload flow: the account's
// custom caption when its policy selects one, otherwise the extracted text,
// plus a sample of the account's hashtag pool.
func (p *Pipeline) composeCaption(acct runner.Account, extracted string) string {
	base := strings.TrimSpace(extracted)
	if acct.UseCustomCaption && strings.TrimSpace(acct.CustomCaption) != "" {
		base = strings.TrimSpace(acct.CustomCaption)
	}
	if base == "" {
		base = caption.DefaultCaption
	}
	if tags := p.sampleHashtags(acct.HashtagPool); len(tags) > 0 {
		base = base + "\n\n" + strings.Join(tags, " ")
	}
	return base + " .."
}

// sampleHashtags draws up to maxPublishHashtags pool entries without
// replacement, preserving nothing of the pool order.
func (p *Pipeline) sampleHashtags(pool []string) []string {
	if len(pool) == 0 {
		return nil
	}
	n := maxPublishHashtags
	if len(pool) < n {
		n = len(pool)
	}
	idx := p.rng.Perm(len(pool))[:n]
	tags := make([]string, 0, n)
	for _, i := range idx {
		tag := strings.TrimSpace(pool[i])
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tags = append(tags, tag)
	}
	return tags
}

// finalize cleans up the job's transient artifacts and advances the
// continuation record no matter how the job ended.
func (p *Pipeline) finalize(job runner.JobState, log *zap.Logger) {
	for _, path := range []string{
		job.AssetPath,
		job.TransformedAssetPath,
		p.cfg.CaptionPath(job.AccountName),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("artifact cleanup failed", zap.String("path", path), zap.Error(err))
		}
	}
	if err := p.accounts.PruneSnapshots(job.AccountName); err != nil {
		log.Warn("snapshot prune failed", zap.Error(err))
	}
	if p.cfg.Logging.File != "" {
		if err := logging.RotateIfLarge(p.cfg.Logging.File, p.cfg.Logging.MaxBytes, p.cfg.Logging.KeepLines); err != nil {
			log.Warn("log rotation failed", zap.Error(err))
		}
	}
	if err := p.continuation.Save(job.AccountName, p.clock.Now()); err != nil {
		log.Error("continuation save failed", zap.Error(err))
	}
}
