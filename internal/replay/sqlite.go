package replay

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps fingerprints in a SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures the fingerprint table exists.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := checkLocalFilesystem(path); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(pctx, `CREATE TABLE IF NOT EXISTS seen_signatures (
  fingerprint TEXT PRIMARY KEY,
  seen_at     INTEGER NOT NULL
);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap sqlite: %w", err)
	}
	if _, err := db.ExecContext(pctx, `CREATE INDEX IF NOT EXISTS seen_signatures_seen_at ON seen_signatures(seen_at);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Seen inserts key; a conflicting insert means it was already recorded.
func (s *SQLiteStore) Seen(ctx context.Context, key string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO seen_signatures(fingerprint, seen_at) VALUES (?, ?) ON CONFLICT(fingerprint) DO NOTHING`,
		key, at.Unix())
	if err != nil {
		return false, fmt.Errorf("record fingerprint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record fingerprint: %w", err)
	}
	return n == 0, nil
}

// Forget deletes key.
func (s *SQLiteStore) Forget(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM seen_signatures WHERE fingerprint = ?`, key); err != nil {
		return fmt.Errorf("forget fingerprint: %w", err)
	}
	return nil
}

// Prune deletes fingerprints recorded before cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM seen_signatures WHERE seen_at < ?`, cutoff.Unix()); err != nil {
		return fmt.Errorf("prune fingerprints: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
