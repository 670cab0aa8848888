package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/accounts"
	"github.com/JakeFAU/reelrunner/internal/browser"
	"github.com/JakeFAU/reelrunner/internal/clock/system"
	"github.com/JakeFAU/reelrunner/internal/config"
	"github.com/JakeFAU/reelrunner/internal/download"
	"github.com/JakeFAU/reelrunner/internal/logging"
	"github.com/JakeFAU/reelrunner/internal/metrics"
	"github.com/JakeFAU/reelrunner/internal/notify"
	"github.com/JakeFAU/reelrunner/internal/ops"
	"github.com/JakeFAU/reelrunner/internal/pipeline"
	"github.com/JakeFAU/reelrunner/internal/rewrite"
	"github.com/JakeFAU/reelrunner/internal/scheduler"
	"github.com/JakeFAU/reelrunner/internal/state"
	"github.com/JakeFAU/reelrunner/internal/transcode"
)

// newRunCmd creates and configures the 'run' subcommand, which starts the
// scheduler loop and the ops HTTP server and blocks until a stop signal.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Starts the account rotation loop",
		Long: `Runs the orchestrator: an infinite loop that picks the next account
in the rotation, executes its publishing job, and sleeps a randomized delay.
The loop survives crashes via a supervising restart layer and stops cleanly
on SIGINT or SIGTERM.`,
		RunE: runRunCommand,
	}
	return cmd
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return fmt.Errorf("create base dir: %w", err)
	}

	logger, err := logging.NewWithFile(development || cfg.Logging.Development, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	clk := system.New()

	mgr := accounts.New(
		cfg.Accounts.Dir,
		filepath.Join(cfg.BaseDir, "snapshots"),
		cfg.Accounts.SnapshotsKeep,
		logger,
	)
	continuation := state.NewContinuationFile(cfg.ContinuationPath())
	heartbeat := state.NewHeartbeatFile(cfg.HeartbeatPath())
	notifier := notify.NewTelegram(cfg.Notify.BotToken, cfg.Notify.ChatID, cfg.Notify.PerMinuteSend, logger)
	rewriter := rewrite.New(cfg.Rewrite.Endpoint, cfg.Rewrite.APIKey, cfg.Rewrite.Timeout, logger)
	downloader := download.New(cfg.Browser.NavTimeout, cfg.Browser.MinAssetBytes, logger)
	transcoder := transcode.New(transcode.Options{
		FFmpegPath:  cfg.Transcode.FFmpegPath,
		FFprobePath: cfg.Transcode.FFprobePath,
		FontFile:    cfg.Transcode.FontFile,
		LogoPath:    cfg.Transcode.LogoPath,
	}, rng, logger)
	chrome := browser.New(browser.Config{
		UserAgent:     cfg.Browser.UserAgent,
		NavTimeout:    cfg.Browser.NavTimeout,
		SettleWait:    cfg.Browser.SettleWait,
		FeedURL:       cfg.Browser.FeedURL,
		MinAssetBytes: cfg.Browser.MinAssetBytes,
	}, mgr, rng, logger)

	pipe := pipeline.New(cfg, mgr, chrome, downloader, transcoder, rewriter,
		notifier, continuation, clk, rng, logger)
	sched := scheduler.New(cfg.Scheduler, cfg.Memory, mgr, pipe, continuation,
		heartbeat, notifier, clk, rng, logger)
	supervisor := scheduler.NewSupervisor(sched.Loop, cfg.Scheduler.CrashCooldown, notifier, logger)

	opsServer := ops.NewServer(heartbeat, continuation, clk, cfg.Ops.HeartbeatMaxAge, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Ops.Port),
		Handler:           opsServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", zap.Int("port", cfg.Ops.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()

	logger.Info("scheduler starting", zap.String("accounts_dir", cfg.Accounts.Dir))
	notifier.Notify(ctx, "scheduler starting", "")
	supervisor.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
