// Package cachestore persists the dedup cache as a JSON file.
package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"feedwire/internal/usecase/dedup"
)

// backupSuffix names the copy of the last good file kept next to it.
const backupSuffix = ".bak"

type document struct {
	SeenEntries map[string]time.Time `json:"seen_entries"`
	SavedAt     time.Time            `json:"saved_at"`
}

// FileStore implements dedup.Store on a single JSON file.
// Writes go to a temp file in the same directory which is fsynced and renamed
// over the target; the previous file is kept as path.bak and used when the
// main file cannot be decoded.
type FileStore struct {
	path string
	now  func() time.Time
}

var _ dedup.Store = (*FileStore)(nil)

// NewFileStore returns a store for path. The file need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the cache file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the cache file. A missing file is an empty cache. An undecodable
// file falls back to the backup; if that fails too, dedup.ErrCacheCorrupt is
// returned.
func (s *FileStore) Load(ctx context.Context) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := readDocument(s.path)
	switch {
	case err == nil:
		return entries, nil
	case errors.Is(err, fs.ErrNotExist):
		backup, bakErr := readDocument(s.path + backupSuffix)
		if bakErr == nil {
			slog.Warn("cache file missing, recovered from backup",
				slog.String("path", s.path),
				slog.Int("entries", len(backup)))
			return backup, nil
		}
		return map[string]time.Time{}, nil
	case errors.Is(err, dedup.ErrCacheCorrupt):
		backup, bakErr := readDocument(s.path + backupSuffix)
		if bakErr != nil {
			return nil, fmt.Errorf("%s: %w", s.path, err)
		}
		slog.Warn("cache file corrupt, recovered from backup",
			slog.String("path", s.path),
			slog.Int("entries", len(backup)),
			slog.Any("error", err))
		return backup, nil
	default:
		return nil, fmt.Errorf("%w: read %s: %w", dedup.ErrCacheIO, s.path, err)
	}
}

// Save writes entries atomically and rotates the previous file into the
// backup slot.
func (s *FileStore) Save(ctx context.Context, entries map[string]time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entries == nil {
		entries = map[string]time.Time{}
	}

	data, err := json.MarshalIndent(document{SeenEntries: entries, SavedAt: s.now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", dedup.ErrCacheIO, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir: %w", dedup.ErrCacheIO, err)
	}

	// keep only a backup that still decodes
	if prev, err := os.ReadFile(s.path); err == nil {
		if _, decErr := decode(prev); decErr == nil {
			if err := writeAtomic(s.path+backupSuffix, prev); err != nil {
				slog.Warn("failed to rotate cache backup",
					slog.String("path", s.path),
					slog.Any("error", err))
			}
		}
	}

	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: %w", dedup.ErrCacheIO, err)
	}
	return nil
}

func readDocument(path string) (map[string]time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func decode(data []byte) (map[string]time.Time, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", dedup.ErrCacheCorrupt, err)
	}
	if doc.SeenEntries == nil {
		doc.SeenEntries = map[string]time.Time{}
	}
	return doc.SeenEntries, nil
}

func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
