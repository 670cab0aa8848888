package runner

import (
	"context"
	"time"
)

// Browser is the headless automation session used to navigate the target
// site. Every error it returns is retryable at the phase level except
// memory-class failures, which the guarded executor handles separately.
type Browser interface {
	// AcquireTarget opens the account's feed and returns the canonical URL
	// of the item to republish.
	AcquireTarget(ctx context.Context, acct Account) (string, error)
	// HarvestAsset navigates the target and observes network responses until
	// a qualifying media response is found, returning the largest one.
	HarvestAsset(ctx context.Context, acct Account, targetURL string) (AssetSource, error)
	// ExtractCaption scrapes the raw caption text attached to the target.
	ExtractCaption(ctx context.Context, acct Account, targetURL string) (string, error)
	// Publish drives the site's upload flow with the transformed asset and
	// the final caption text.
	Publish(ctx context.Context, acct Account, assetPath, caption string) error
}

// Downloader streams a harvested asset to a local file.
type Downloader interface {
	Fetch(ctx context.Context, src AssetSource, destPath string) error
}

// Transcoder runs the external transform process and verifies its output.
type Transcoder interface {
	Transform(ctx context.Context, acct Account, inputPath, outputPath string) error
}

// Rewriter rewrites caption text. Implementations must degrade gracefully:
// on any error, timeout, or malformed response they return the original text
// and a nil error, never failing the pipeline.
type Rewriter interface {
	Rewrite(ctx context.Context, accountName, original string) string
}

// Notifier delivers fire-and-forget status messages to a human channel.
// Implementations must never return or propagate errors.
type Notifier interface {
	Notify(ctx context.Context, message, accountTag string)
}

// ContinuationRecord is the sole piece of cross-restart state: the durable
// pointer to the last processed account.
type ContinuationRecord struct {
	LastAccount string    `json:"last_account"`
	Timestamp   time.Time `json:"timestamp"`
}

// ContinuationStore persists the round-robin continuation record.
type ContinuationStore interface {
	// Load returns nil with no error when no record exists yet.
	Load() (*ContinuationRecord, error)
	Save(lastAccount string, at time.Time) error
}

// HeartbeatStore overwrites the liveness timestamp each scheduler tick.
type HeartbeatStore interface {
	Beat(at time.Time) error
}

// AccountSource lists and loads the configured fleet.
type AccountSource interface {
	// List returns the fleet's account names in deterministic sorted order.
	List() ([]string, error)
	// Load reads one account's configuration and credentials from disk.
	Load(name string) (Account, error)
}
