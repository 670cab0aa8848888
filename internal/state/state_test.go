package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestContinuationFile_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "last_run.json")
	store := NewContinuationFile(path)

	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, store.Save("acct2", at))

	rec, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "acct2", rec.LastAccount)
	require.True(t, rec.Timestamp.Equal(at))
}

func TestContinuationFile_MissingIsNotAnError(t *testing.T) {
	t.Parallel()
	store := NewContinuationFile(filepath.Join(t.TempDir(), "absent.json"))
	rec, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestContinuationFile_OverwriteReplacesRecord(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "last_run.json")
	store := NewContinuationFile(path)

	require.NoError(t, store.Save("acct1", time.Now()))
	require.NoError(t, store.Save("acct2", time.Now()))

	rec, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "acct2", rec.LastAccount)

	// No leftover temp files from the atomic write path.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestContinuationFile_CorruptRecord(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "last_run.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewContinuationFile(path).Load()
	require.Error(t, err)
}

func TestHeartbeatFile_OverwritesSingleTimestamp(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "healthcheck")
	hb := NewHeartbeatFile(path)

	first := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)
	require.NoError(t, hb.Beat(first))
	require.NoError(t, hb.Beat(second))

	got, err := hb.Read()
	require.NoError(t, err)
	require.True(t, got.Equal(second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, second.Format(time.RFC3339), string(data))
}
