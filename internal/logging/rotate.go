package logging

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// RotateIfLarge truncates the shared activity log to its most recent
// keepLines lines once the file exceeds maxBytes. Below the threshold the
// file is left untouched. A missing file is a no-op.
func RotateIfLarge(path string, maxBytes int64, keepLines int) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() <= maxBytes {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read log file: %w", err)
	}

	lines := bytes.Split(data, []byte("\n"))
	// A trailing newline yields one empty final element; drop it so the
	// line budget counts real lines.
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > keepLines {
		lines = lines[len(lines)-keepLines:]
	}

	kept := append(bytes.Join(lines, []byte("\n")), '\n')
	if err := os.WriteFile(path, kept, info.Mode().Perm()); err != nil {
		return fmt.Errorf("rewrite log file: %w", err)
	}
	return nil
}
