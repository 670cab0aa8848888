// Package config loads and validates orchestrator configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	BaseDir   string          `mapstructure:"base_dir"`
	Accounts  AccountsConfig  `mapstructure:"accounts"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Phases    PhasesConfig    `mapstructure:"phases"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Rewrite   RewriteConfig   `mapstructure:"rewrite"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Ops       OpsConfig       `mapstructure:"ops"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AccountsConfig locates the fleet and bounds per-account debug artifacts.
type AccountsConfig struct {
	Dir           string `mapstructure:"dir"`
	SnapshotsKeep int    `mapstructure:"snapshots_keep"`
}

// SchedulerConfig governs the tick loop and the supervisor.
type SchedulerConfig struct {
	MinCycleDelay   time.Duration `mapstructure:"min_cycle_delay"`
	MaxCycleDelay   time.Duration `mapstructure:"max_cycle_delay"`
	EmptyFleetDelay time.Duration `mapstructure:"empty_fleet_delay"`
	CrashCooldown   time.Duration `mapstructure:"crash_cooldown"`
}

// MemoryConfig bounds the memory-guarded executor wrapping each cycle.
type MemoryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// PhasePolicy is the retry budget for one pipeline phase.
type PhasePolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

// PhasesConfig holds the per-phase retry budgets.
type PhasesConfig struct {
	Acquire   PhasePolicy `mapstructure:"acquire"`
	Fetch     PhasePolicy `mapstructure:"fetch"`
	Extract   PhasePolicy `mapstructure:"extract"`
	Transform PhasePolicy `mapstructure:"transform"`
	Publish   PhasePolicy `mapstructure:"publish"`
}

// BrowserConfig configures the headless automation session.
type BrowserConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout"`
	SettleWait    time.Duration `mapstructure:"settle_wait"`
	FeedURL       string        `mapstructure:"feed_url"`
	MinAssetBytes int64         `mapstructure:"min_asset_bytes"`
}

// TranscodeConfig locates the external transform binaries and overlay assets.
type TranscodeConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
	FontFile    string `mapstructure:"font_file"`
	LogoPath    string `mapstructure:"logo_path"`
}

// RewriteConfig configures the optional caption rewrite collaborator. An
// empty APIKey disables rewriting entirely.
type RewriteConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// NotifyConfig configures the chat notification channel. Empty credentials
// downgrade the notifier to log-only.
type NotifyConfig struct {
	BotToken      string  `mapstructure:"bot_token"`
	ChatID        string  `mapstructure:"chat_id"`
	PerMinuteSend float64 `mapstructure:"per_minute_send"`
}

// OpsConfig controls the health/metrics HTTP surface.
type OpsConfig struct {
	Port            int           `mapstructure:"port"`
	HeartbeatMaxAge time.Duration `mapstructure:"heartbeat_max_age"`
}

// LoggingConfig toggles zap development features and bounds the shared
// activity log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxBytes    int64  `mapstructure:"max_bytes"`
	KeepLines   int    `mapstructure:"keep_lines"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REELRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Accounts.Dir == "" {
		cfg.Accounts.Dir = filepath.Join(cfg.BaseDir, "accounts")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.BaseDir, "activity.log")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_dir", "data")
	v.SetDefault("accounts.snapshots_keep", 3)

	v.SetDefault("scheduler.min_cycle_delay", "3s")
	v.SetDefault("scheduler.max_cycle_delay", "16s")
	v.SetDefault("scheduler.empty_fleet_delay", "5m")
	v.SetDefault("scheduler.crash_cooldown", "60s")

	v.SetDefault("memory.max_attempts", 3)
	v.SetDefault("memory.retry_delay", "60s")

	v.SetDefault("phases.acquire.max_attempts", 2)
	v.SetDefault("phases.acquire.base_delay", "10s")
	v.SetDefault("phases.fetch.max_attempts", 3)
	v.SetDefault("phases.fetch.base_delay", "5s")
	v.SetDefault("phases.extract.max_attempts", 2)
	v.SetDefault("phases.extract.base_delay", "5s")
	v.SetDefault("phases.transform.max_attempts", 2)
	v.SetDefault("phases.transform.base_delay", "10s")
	v.SetDefault("phases.publish.max_attempts", 2)
	v.SetDefault("phases.publish.base_delay", "15s")

	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36")
	v.SetDefault("browser.nav_timeout", "60s")
	v.SetDefault("browser.settle_wait", "15s")
	v.SetDefault("browser.feed_url", "https://www.instagram.com/reels/")
	v.SetDefault("browser.min_asset_bytes", 100_000)

	v.SetDefault("transcode.ffmpeg_path", "ffmpeg")
	v.SetDefault("transcode.ffprobe_path", "ffprobe")
	v.SetDefault("transcode.font_file", "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf")
	v.SetDefault("transcode.logo_path", "logo.png")

	v.SetDefault("rewrite.timeout", "10s")
	v.SetDefault("notify.per_minute_send", 20.0)

	v.SetDefault("ops.port", 8080)
	v.SetDefault("ops.heartbeat_max_age", "30m")

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.max_bytes", 100*1024)
	v.SetDefault("logging.keep_lines", 1000)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir must be set")
	}
	if c.Scheduler.MinCycleDelay < 0 || c.Scheduler.MaxCycleDelay < c.Scheduler.MinCycleDelay {
		return fmt.Errorf("scheduler cycle delay window [%s, %s] is invalid",
			c.Scheduler.MinCycleDelay, c.Scheduler.MaxCycleDelay)
	}
	if c.Memory.MaxAttempts < 1 {
		return fmt.Errorf("memory.max_attempts must be >= 1")
	}
	for name, p := range map[string]PhasePolicy{
		"acquire":   c.Phases.Acquire,
		"fetch":     c.Phases.Fetch,
		"extract":   c.Phases.Extract,
		"transform": c.Phases.Transform,
		"publish":   c.Phases.Publish,
	} {
		if p.MaxAttempts < 1 {
			return fmt.Errorf("phases.%s.max_attempts must be >= 1", name)
		}
	}
	if c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0")
	}
	if c.Accounts.SnapshotsKeep < 0 {
		return fmt.Errorf("accounts.snapshots_keep must be >= 0")
	}
	return nil
}

// ContinuationPath is the fixed location of the continuation record.
func (c Config) ContinuationPath() string {
	return filepath.Join(c.BaseDir, "last_run.json")
}

// HeartbeatPath is the fixed location of the liveness timestamp.
func (c Config) HeartbeatPath() string {
	return filepath.Join(c.BaseDir, "healthcheck")
}

// AssetPath is the transient download target for one account's cycle.
func (c Config) AssetPath(account string) string {
	return filepath.Join(c.BaseDir, fmt.Sprintf("reel_%s.mp4", account))
}

// TransformedAssetPath is the transient transform output for one account.
func (c Config) TransformedAssetPath(account string) string {
	return filepath.Join(c.BaseDir, fmt.Sprintf("reel_%s_processed.mp4", account))
}

// CaptionPath is the transient sanitized caption file for one account.
func (c Config) CaptionPath(account string) string {
	return filepath.Join(c.BaseDir, fmt.Sprintf("caption_%s.txt", account))
}
