// Package runner defines the core types and collaborator interfaces shared by
// the account rotation scheduler, the per-account job pipeline, and the
// external adapters (browser session, downloader, transcoder, rewriter,
// notifier, and the continuation/heartbeat stores).
package runner
