package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the history in a posted_ids table; seq preserves
// insertion order across runs.
type SQLiteStore struct {
	db    *sql.DB
	limit int
}

func NewSQLiteStore(path string, limit int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		slog.Warn("Failed to enable WAL journal", "path", path, "error", err)
	}

	version, dirty, err := RunMigrations(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("State database ready", "path", path, "version", version, "dirty", dirty)

	return &SQLiteStore{db: db, limit: limit}, nil
}

// Load reports an empty table as absent state.
func (s *SQLiteStore) Load(ctx context.Context) LoadResult {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM posted_ids ORDER BY seq`)
	if err != nil {
		return LoadResult{Status: LoadCorrupt, Seen: NewSeenSet(nil), Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return LoadResult{Status: LoadCorrupt, Seen: NewSeenSet(nil), Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return LoadResult{Status: LoadCorrupt, Seen: NewSeenSet(nil), Err: err}
	}

	if len(ids) == 0 {
		return LoadResult{Status: LoadAbsent, Seen: NewSeenSet(nil)}
	}
	return LoadResult{Status: LoadOK, Seen: NewSeenSet(ids)}
}

// Commit inserts and trims in one transaction, so a failure leaves the
// previous history intact.
func (s *SQLiteStore) Commit(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO posted_ids (id) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to insert id: %w", err)
		}
	}

	if s.limit > 0 {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM posted_ids
			WHERE seq NOT IN (SELECT seq FROM posted_ids ORDER BY seq DESC LIMIT ?)
		`, s.limit)
		if err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
