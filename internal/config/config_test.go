package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "data", cfg.BaseDir)
	require.Equal(t, filepath.Join("data", "accounts"), cfg.Accounts.Dir)
	require.Equal(t, 3, cfg.Accounts.SnapshotsKeep)
	require.Equal(t, 3*time.Second, cfg.Scheduler.MinCycleDelay)
	require.Equal(t, 16*time.Second, cfg.Scheduler.MaxCycleDelay)
	require.Equal(t, 3, cfg.Memory.MaxAttempts)
	require.Equal(t, 60*time.Second, cfg.Memory.RetryDelay)
	require.Equal(t, 3, cfg.Phases.Fetch.MaxAttempts)
	require.Equal(t, 5*time.Second, cfg.Phases.Fetch.BaseDelay)
	require.Equal(t, int64(100_000), cfg.Browser.MinAssetBytes)
	require.Equal(t, int64(100*1024), cfg.Logging.MaxBytes)
	require.Equal(t, 1000, cfg.Logging.KeepLines)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
base_dir: /srv/runner
scheduler:
  min_cycle_delay: 1m
  max_cycle_delay: 5m
phases:
  publish:
    max_attempts: 3
    base_delay: 20s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/srv/runner", cfg.BaseDir)
	require.Equal(t, filepath.Join("/srv/runner", "accounts"), cfg.Accounts.Dir)
	require.Equal(t, time.Minute, cfg.Scheduler.MinCycleDelay)
	require.Equal(t, 5*time.Minute, cfg.Scheduler.MaxCycleDelay)
	require.Equal(t, 3, cfg.Phases.Publish.MaxAttempts)
	require.Equal(t, 20*time.Second, cfg.Phases.Publish.BaseDelay)
	require.Equal(t, "/srv/runner/last_run.json", cfg.ContinuationPath())
	require.Equal(t, "/srv/runner/healthcheck", cfg.HeartbeatPath())
}

func TestLoad_RejectsInvalidWindow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
scheduler:
  min_cycle_delay: 10s
  max_cycle_delay: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle delay window")
}

func TestLoad_RejectsZeroAttemptPhase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
phases:
  fetch:
    max_attempts: 0
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "phases.fetch.max_attempts")
}

func TestArtifactPaths(t *testing.T) {
	t.Parallel()
	cfg := Config{BaseDir: "/srv/runner"}
	require.Equal(t, "/srv/runner/reel_acct1.mp4", cfg.AssetPath("acct1"))
	require.Equal(t, "/srv/runner/reel_acct1_processed.mp4", cfg.TransformedAssetPath("acct1"))
	require.Equal(t, "/srv/runner/caption_acct1.txt", cfg.CaptionPath("acct1"))
}
