// Package database persists the file catalog, scan sessions and duplicate
// groups in a local sqlite file. Batch commits run in a single transaction;
// that transaction is the atomicity unit the scan resume contract relies on.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timeLayout keeps a fixed width, unlike RFC3339Nano which drops trailing
// fractional zeros: stored timestamps are compared as strings in SQL, so
// lexicographic order must match chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps the sqlite connection.
type Store struct {
	db   *sql.DB
	path string
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS media_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	filename TEXT NOT NULL,
	folder_path TEXT NOT NULL,
	size INTEGER NOT NULL,
	modified_at TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	phash TEXT,
	dhash TEXT,
	ahash TEXT,
	capture_time TEXT,
	year INTEGER,
	month INTEGER,
	day INTEGER,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	is_organized INTEGER NOT NULL DEFAULT 0,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	scanned_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_media_folder ON media_files(folder_path);
CREATE INDEX IF NOT EXISTS idx_media_phash ON media_files(phash);
CREATE INDEX IF NOT EXISTS idx_media_date ON media_files(year, month, day);

CREATE TABLE IF NOT EXISTS scan_sessions (
	id TEXT PRIMARY KEY,
	root TEXT NOT NULL,
	recursive INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL,
	total_files INTEGER NOT NULL DEFAULT 0,
	processed_files INTEGER NOT NULL DEFAULT 0,
	failed_files INTEGER NOT NULL DEFAULT 0,
	resume_cursor TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_root ON scan_sessions(root, status);

CREATE TABLE IF NOT EXISTS duplicate_groups (
	id TEXT PRIMARY KEY,
	threshold INTEGER NOT NULL,
	similarity REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	action TEXT NOT NULL DEFAULT 'none',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS duplicate_group_members (
	group_id TEXT NOT NULL REFERENCES duplicate_groups(id) ON DELETE CASCADE,
	file_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (group_id, file_id)
);
CREATE INDEX IF NOT EXISTS idx_group_members_file ON duplicate_group_members(file_id);

CREATE TABLE IF NOT EXISTS cluster_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	threshold INTEGER NOT NULL,
	ran_at TEXT NOT NULL
);
`

// Open initializes or connects to the catalog database and creates the
// schema when missing.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
