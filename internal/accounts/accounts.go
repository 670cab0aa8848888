// Package accounts loads the account fleet from disk and manages per-account
// debug snapshots. Each account is a directory holding custom.json (profile
// and caption policy) and cookies.json (session credentials).
package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/runner"
)

// LoadError marks a configuration/load failure. It is fatal for the single
// account's cycle, never retried, and the rotation still advances past it.
type LoadError struct {
	Account string
	Reason  string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load account %s: %s: %v", e.Account, e.Reason, e.Err)
	}
	return fmt.Sprintf("load account %s: %s", e.Account, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// profile mirrors the on-disk custom.json shape. Optional fields default at
// load time so later phases never need ad hoc defaulting.
type profile struct {
	Username         string   `json:"username"`
	Hashtags         []string `json:"hashtags"`
	CustomCaption    string   `json:"custom_caption"`
	UseCustomCaption bool     `json:"use_custom_caption"`
	Title            string   `json:"tittle"`
}

// Manager reads the fleet from a root directory and prunes debug snapshots.
type Manager struct {
	root          string
	snapshotsDir  string
	snapshotsKeep int
	logger        *zap.Logger
}

// New creates a Manager rooted at dir. Snapshots land in snapshotsDir and all
// but the most recent keep per account are pruned.
func New(dir, snapshotsDir string, keep int, logger *zap.Logger) *Manager {
	return &Manager{
		root:          dir,
		snapshotsDir:  snapshotsDir,
		snapshotsKeep: keep,
		logger:        logger,
	}
}

// List returns the fleet's account names in sorted order.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("list accounts in %s: %w", m.root, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load reads one account's profile and credentials, validating shape.
// Absence or malformed shape of either file is a LoadError.
func (m *Manager) Load(name string) (runner.Account, error) {
	dir := filepath.Join(m.root, name)

	profileData, err := os.ReadFile(filepath.Join(dir, "custom.json"))
	if err != nil {
		return runner.Account{}, &LoadError{Account: name, Reason: "custom.json unreadable", Err: err}
	}
	var p profile
	if err := json.Unmarshal(profileData, &p); err != nil {
		return runner.Account{}, &LoadError{Account: name, Reason: "custom.json is not a JSON object", Err: err}
	}

	cookieData, err := os.ReadFile(filepath.Join(dir, "cookies.json"))
	if err != nil {
		return runner.Account{}, &LoadError{Account: name, Reason: "cookies.json unreadable", Err: err}
	}
	var cookies []runner.Cookie
	if err := json.Unmarshal(cookieData, &cookies); err != nil {
		return runner.Account{}, &LoadError{Account: name, Reason: "cookies.json is not a JSON array of cookie objects", Err: err}
	}
	if len(cookies) == 0 {
		return runner.Account{}, &LoadError{Account: name, Reason: "cookies.json is empty"}
	}

	username := strings.TrimSpace(p.Username)
	if username == "" {
		username = "@unknown"
	}

	return runner.Account{
		Name:             name,
		Username:         username,
		Cookies:          cookies,
		HashtagPool:      p.Hashtags,
		UseCustomCaption: p.UseCustomCaption,
		CustomCaption:    p.CustomCaption,
		Title:            strings.TrimSpace(p.Title),
	}, nil
}

// SaveSnapshot writes a timestamped debug image for one pipeline step, then
// prunes old snapshots for the account.
func (m *Manager) SaveSnapshot(account, step string, png []byte) (string, error) {
	if err := os.MkdirAll(m.snapshotsDir, 0o750); err != nil {
		return "", fmt.Errorf("create snapshots dir: %w", err)
	}
	name := fmt.Sprintf("debug_%s_%s_%s.png", account, step, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(m.snapshotsDir, name)
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", path, err)
	}
	if err := m.PruneSnapshots(account); err != nil {
		m.logger.Warn("snapshot prune failed", zap.String("account", account), zap.Error(err))
	}
	return path, nil
}

// PruneSnapshots removes all but the most recent snapshotsKeep debug images
// for the account. Snapshot names embed a sortable timestamp, so
// lexicographic order is chronological order.
func (m *Manager) PruneSnapshots(account string) error {
	entries, err := os.ReadDir(m.snapshotsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("list snapshots: %w", err)
	}
	prefix := fmt.Sprintf("debug_%s_", account)
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".png") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) <= m.snapshotsKeep {
		return nil
	}
	for _, name := range names[:len(names)-m.snapshotsKeep] {
		if err := os.Remove(filepath.Join(m.snapshotsDir, name)); err != nil {
			m.logger.Warn("failed to remove snapshot",
				zap.String("account", account),
				zap.String("file", name),
				zap.Error(err),
			)
		}
	}
	return nil
}
