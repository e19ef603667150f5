package cachestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedwire/internal/usecase/dedup"
)

var seenAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestFileStore_LoadMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "cache.json"))

	entries, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json")
	s := NewFileStore(path)
	want := map[string]time.Time{
		"a": seenAt,
		"b": seenAt.Add(time.Hour),
	}

	require.NoError(t, s.Save(context.Background(), want))

	got, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	for id, ts := range want {
		assert.True(t, ts.Equal(got[id]), "entry %s: got %v want %v", id, got[id], ts)
	}

	// no temp files left behind
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFileStore_SaveKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"first": seenAt}))
	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"second": seenAt}))

	backup, err := readDocument(path + backupSuffix)
	require.NoError(t, err)
	assert.Contains(t, backup, "first")
	assert.NotContains(t, backup, "second")
}

func TestFileStore_CorruptFallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"a": seenAt}))
	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"a": seenAt, "b": seenAt}))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	entries, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, entries, "a")
	assert.NotContains(t, entries, "b")
}

func TestFileStore_CorruptWithoutBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	assert.ErrorIs(t, err, dedup.ErrCacheCorrupt)
}

func TestFileStore_CorruptFileNotRotatedIntoBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"good": seenAt}))
	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"good": seenAt}))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"new": seenAt}))

	backup, err := readDocument(path + backupSuffix)
	require.NoError(t, err)
	assert.Contains(t, backup, "good")
}

func TestFileStore_MissingMainUsesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"a": seenAt}))
	require.NoError(t, s.Save(context.Background(), map[string]time.Time{"a": seenAt}))
	require.NoError(t, os.Remove(path))

	entries, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, entries, "a")
}

func TestFileStore_UnreadablePathIsIOError(t *testing.T) {
	dir := t.TempDir()
	// a directory where the file should be
	path := filepath.Join(dir, "cache.json")
	require.NoError(t, os.Mkdir(path, 0o755))

	_, err := NewFileStore(path).Load(context.Background())
	assert.ErrorIs(t, err, dedup.ErrCacheIO)

	err = NewFileStore(path).Save(context.Background(), map[string]time.Time{"a": seenAt})
	assert.ErrorIs(t, err, dedup.ErrCacheIO)
}

func TestFileStore_WithCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c := dedup.New(dedup.DefaultConfig(), NewFileStore(path))
	c.Mark("x", seenAt)
	require.NoError(t, c.Persist(context.Background()))

	cfg := dedup.DefaultConfig()
	cfg.Now = func() time.Time { return seenAt.Add(time.Hour) }
	reloaded := dedup.New(cfg, NewFileStore(path))
	n, err := reloaded.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, reloaded.Seen("x"))
}
