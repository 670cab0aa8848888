package state

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// HeartbeatFile overwrites a liveness timestamp each scheduler tick. An
// external monitor alerts when the timestamp grows stale; no history is kept.
type HeartbeatFile struct {
	path string
}

// NewHeartbeatFile returns a heartbeat store writing to path.
func NewHeartbeatFile(path string) *HeartbeatFile {
	return &HeartbeatFile{path: path}
}

// Beat records at as the latest liveness instant.
func (h *HeartbeatFile) Beat(at time.Time) error {
	return writeAtomic(h.path, []byte(at.UTC().Format(time.RFC3339)))
}

// Read returns the last recorded liveness instant.
func (h *HeartbeatFile) Read() (time.Time, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("read heartbeat: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse heartbeat: %w", err)
	}
	return ts, nil
}
