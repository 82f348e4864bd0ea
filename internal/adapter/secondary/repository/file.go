package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"iphone-alarms-sync/internal/domain"
)

// FileStore implements domain.OptionsStore with one JSON file per entry.
// This is a secondary adapter.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed and returns a file-backed store.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file holding the entry's options.
func (f *FileStore) Path(entryID string) string {
	return filepath.Join(f.dir, filepath.Base(entryID)+".json")
}

// Load reads the entry's options from disk.
func (f *FileStore) Load(_ context.Context, entryID string) (domain.Options, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.Path(entryID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Options{}, domain.ErrOptionsNotFound
		}
		return domain.Options{}, fmt.Errorf("read options: %w", err)
	}

	var opts domain.Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return domain.Options{}, fmt.Errorf("unmarshal options: %w", err)
	}
	return opts, nil
}

// Save persists the entry's options.
func (f *FileStore) Save(_ context.Context, entryID string, opts domain.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	// Atomic write
	path := f.Path(entryID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}

// Delete removes the entry's file. A missing file is not an error.
func (f *FileStore) Delete(_ context.Context, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.Path(entryID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove options: %w", err)
	}
	return nil
}
