package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsj7419/cleo/internal/model"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSaveAndReadJSONRoundTrip(t *testing.T) {
	s := New()
	path := filepath.Join(t.TempDir(), "state", "doc.json")

	require.NoError(t, s.SaveJSON(context.Background(), path, payload{Name: "alpha", Count: 3}, SaveOptions{}))

	var got payload
	ok, err := s.ReadJSON(path, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload{Name: "alpha", Count: 3}, got)
}

func TestFirstWriteIntoMissingDirectory(t *testing.T) {
	s := New()
	ctx := context.Background()
	root := t.TempDir()

	// Both write paths must create the full parent chain themselves: the
	// advisory lock file lives beside the target, so locking runs before
	// anything else has a chance to make the directory.
	jsonPath := filepath.Join(root, "global", "deep", "doc.json")
	require.NoError(t, s.SaveJSON(ctx, jsonPath, payload{Name: "first"}, SaveOptions{}))

	streamPath := filepath.Join(root, "global", "metrics", "stream.jsonl")
	require.NoError(t, s.AppendJSONL(ctx, streamPath, payload{Count: 1}))

	raw, err := ReadLogEntries(streamPath)
	require.NoError(t, err)
	assert.Len(t, raw, 1)
}

func TestReadJSONAbsentFile(t *testing.T) {
	s := New()
	var got payload
	ok, err := s.ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadJSONRequiredAbsentFile(t *testing.T) {
	s := New()
	var got payload
	err := s.ReadJSONRequired(filepath.Join(t.TempDir(), "missing.json"), &got)
	var e *model.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, model.ErrNotFound, e.Code)
}

func TestValidatorFailureLeavesFileUntouched(t *testing.T) {
	s := New()
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, s.SaveJSON(context.Background(), path, payload{Name: "before"}, SaveOptions{}))

	err := s.SaveJSON(context.Background(), path, payload{Name: "after"}, SaveOptions{
		Validate: func() error { return model.NewError(model.ErrValidation, "document rejected") },
	})
	var e *model.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, model.ErrValidation, e.Code)

	var got payload
	_, rerr := s.ReadJSON(path, &got)
	require.NoError(t, rerr)
	assert.Equal(t, "before", got.Name)
}

func TestBackupRetentionEvictsOldest(t *testing.T) {
	s := New(WithBackupRetention(3))
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	backups := filepath.Join(dir, "backups")

	for i := 0; i < 6; i++ {
		require.NoError(t, s.SaveJSON(context.Background(), path, payload{Count: i}, SaveOptions{}))
		require.NoError(t, s.Backup(path, backups))
		time.Sleep(2 * time.Millisecond) // distinct timestamps
	}

	names, err := s.ListBackups(backups, "doc.json")
	require.NoError(t, err)
	assert.Len(t, names, 3)
}

func TestRestoreBackupRevertsContent(t *testing.T) {
	s := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	backups := filepath.Join(dir, "backups")

	require.NoError(t, s.SaveJSON(context.Background(), path, payload{Name: "original"}, SaveOptions{}))
	require.NoError(t, s.Backup(path, backups))
	require.NoError(t, s.SaveJSON(context.Background(), path, payload{Name: "clobbered"}, SaveOptions{}))

	names, err := s.ListBackups(backups, "doc.json")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.NoError(t, s.RestoreBackup(filepath.Join(backups, names[len(names)-1]), path))

	var got payload
	_, err = s.ReadJSON(path, &got)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Name)
}

func TestAppendAndRewriteJSONL(t *testing.T) {
	s := New()
	path := filepath.Join(t.TempDir(), "stream.jsonl")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendJSONL(ctx, path, payload{Count: i}))
	}
	raw, err := ReadLogEntries(path)
	require.NoError(t, err)
	require.Len(t, raw, 3)

	entries := DecodeLogEntries[payload](raw)
	require.Len(t, entries, 3)
	assert.Equal(t, 2, entries[2].Count)

	// Rewrite keeps only the last entry.
	require.NoError(t, s.RewriteJSONL(ctx, path, []any{entries[2]}))
	raw, err = ReadLogEntries(path)
	require.NoError(t, err)
	require.Len(t, raw, 1)
}

func TestReadLogEntriesLegacyWrapper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	legacy := `{
  "entries": [
    {"count": 1},
    {"count": 2}
  ]
}
{"count": 3}
not json at all
{"count": 4}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	raw, err := ReadLogEntries(path)
	require.NoError(t, err)
	entries := DecodeLogEntries[payload](raw)
	require.Len(t, entries, 4)
	assert.Equal(t, 1, entries[0].Count)
	assert.Equal(t, 4, entries[3].Count)
}

func TestChecksumIgnoresFormattingAndKeyOrder(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1}
	b := json.RawMessage("{\n  \"a\": 1,\n  \"b\": 2\n}")

	var bv any
	require.NoError(t, json.Unmarshal(b, &bv))

	ca, err := ComputeChecksum(a)
	require.NoError(t, err)
	cb, err := ComputeChecksum(bv)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
	assert.Len(t, ca, 16)
}

func TestLockTimeoutSurfacesAsLockFailed(t *testing.T) {
	s := New(WithLockTimeout(50 * time.Millisecond))
	path := filepath.Join(t.TempDir(), "doc.json")

	release, err := s.locks.acquire(context.Background(), path, time.Second)
	require.NoError(t, err)
	defer release()

	err = s.SaveJSON(context.Background(), path, payload{}, SaveOptions{})
	var e *model.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, model.ErrLockFailed, e.Code)
}
