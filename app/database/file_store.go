package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the history as a single JSON document, {"posted_ids": [...]}.
type FileStore struct {
	path  string
	limit int
	mu    sync.Mutex
}

func NewFileStore(path string, limit int) *FileStore {
	return &FileStore{path: path, limit: limit}
}

func (s *FileStore) Load(ctx context.Context) LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// Commit re-reads the file, merges ids and replaces the file through a
// temporary sibling and a rename.
func (s *FileStore) Commit(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.load().Seen
	seen.Merge(ids, s.limit)

	data, err := json.Marshal(state{PostedIDs: seen.IDs()})
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", s.path, err)
	}

	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() LoadResult {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return LoadResult{Status: LoadAbsent, Seen: NewSeenSet(nil)}
	}
	if err != nil {
		return LoadResult{Status: LoadCorrupt, Seen: NewSeenSet(nil), Err: err}
	}

	var doc state
	if err := json.Unmarshal(data, &doc); err != nil {
		return LoadResult{Status: LoadCorrupt, Seen: NewSeenSet(nil), Err: err}
	}

	return LoadResult{Status: LoadOK, Seen: NewSeenSet(doc.PostedIDs)}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
