// Package state persists the orchestrator's two pieces of durable state: the
// round-robin continuation record and the heartbeat timestamp. Both are
// single records at fixed paths with exactly one writer.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JakeFAU/reelrunner/internal/runner"
)

// ContinuationFile stores the last-processed account as a single JSON record.
type ContinuationFile struct {
	path string
}

// NewContinuationFile returns a store writing to path.
func NewContinuationFile(path string) *ContinuationFile {
	return &ContinuationFile{path: path}
}

// Load reads the continuation record. A missing file is not an error: it
// returns (nil, nil) so a fresh boot falls back to the first account.
func (s *ContinuationFile) Load() (*runner.ContinuationRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read continuation record: %w", err)
	}
	var rec runner.ContinuationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode continuation record: %w", err)
	}
	return &rec, nil
}

// Save overwrites the continuation record atomically.
func (s *ContinuationFile) Save(lastAccount string, at time.Time) error {
	rec := runner.ContinuationRecord{LastAccount: lastAccount, Timestamp: at.UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode continuation record: %w", err)
	}
	return writeAtomic(s.path, data)
}

// writeAtomic writes via a temp file and rename so a crash mid-write never
// leaves a truncated record behind.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file %s: %w", path, err)
	}
	return nil
}
