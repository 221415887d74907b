package database

import (
	"context"
)

// SeenStore persists the bounded history of delivered item ids. Load is
// called once at the start of a run and Commit at most once at the end.
type SeenStore interface {
	Load(ctx context.Context) LoadResult
	// Commit appends ids not yet retained, keeps the most recent entries up to
	// the store limit and persists the result atomically.
	Commit(ctx context.Context, ids []string) error
	Close() error
}

var (
	_ SeenStore = (*FileStore)(nil)
	_ SeenStore = (*SQLiteStore)(nil)
)
