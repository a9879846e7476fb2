// Package jsonfile persists the download ledger as a single JSON document.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vertextoedge/threadfetch/internal/domain"
	"github.com/vertextoedge/threadfetch/internal/port"
)

// Store keeps the snapshot in one JSON array file, replaced atomically on save.
type Store struct {
	path string
	mu   sync.Mutex
}

// Ensure Store implements port.Store
var _ port.Store = (*Store)(nil)

// Open prepares a store at path. The file itself is created on first save.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the document location
func (s *Store) Path() string {
	return s.path
}

// Load decodes the document. A missing or empty file yields no records.
func (s *Store) Load() ([]*domain.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("read", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var downloads []*domain.Download
	if err := json.Unmarshal(data, &downloads); err != nil {
		return nil, domain.NewStorageError("decode", s.path, err)
	}

	out := downloads[:0]
	for _, d := range downloads {
		if d == nil || d.ID == "" {
			continue
		}
		d.Normalize()
		out = append(out, d)
	}
	return out, nil
}

// Save writes the snapshot to a temp file, syncs it and renames it over the document.
func (s *Store) Save(downloads []*domain.Download) error {
	if downloads == nil {
		downloads = []*domain.Download{}
	}
	data, err := json.MarshalIndent(downloads, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return domain.NewStorageError("create", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return domain.NewStorageError("write", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return domain.NewStorageError("sync", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return domain.NewStorageError("close", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return domain.NewStorageError("rename", s.path, err)
	}
	return nil
}

// Close is a no-op; the file is only open during Load and Save
func (s *Store) Close() error {
	return nil
}

// Ping checks that the store directory is reachable
func (s *Store) Ping() error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}
