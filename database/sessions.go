package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"photosorter/types"
)

const sessionColumns = `id, root, recursive, status, total_files, processed_files,
	failed_files, resume_cursor, error_message, started_at, completed_at`

// CreateSession persists a new scan session.
func (s *Store) CreateSession(ctx context.Context, session *types.ScanSession) error {
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_sessions (
			id, root, recursive, status, total_files, processed_files,
			failed_files, resume_cursor, error_message, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Root, boolToInt(session.Recursive), string(session.Status),
		session.TotalFiles, session.ProcessedFiles, session.FailedFiles,
		session.ResumeCursor, session.ErrorMessage, formatTime(session.StartedAt),
		nullableTime(session.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*types.ScanSession, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM scan_sessions WHERE id = ?", id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.WrapError(types.ErrNotFound, nil, "session", id)
	}
	return session, err
}

// FindResumableSession returns the in-progress session for root, or nil when
// there is none.
func (s *Store) FindResumableSession(ctx context.Context, root string) (*types.ScanSession, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM scan_sessions WHERE root = ? AND status = ? ORDER BY started_at DESC LIMIT 1",
		root, string(types.ScanInProgress))
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return session, err
}

// UpdateSessionStatus transitions a session and records completion or error
// details. Sessions are never deleted.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status types.ScanStatus, errMsg string) error {
	var completedAt interface{}
	if status == types.ScanCompleted || status == types.ScanFailed || status == types.ScanCancelled {
		completedAt = formatTime(time.Now())
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE scan_sessions SET status = ?, error_message = ?, completed_at = COALESCE(?, completed_at) WHERE id = ?",
		string(status), errMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return types.WrapError(types.ErrNotFound, nil, "session", id)
	}
	return nil
}

// CommitScanBatch durably commits one batch of scan work: all record upserts,
// the processed/failed counters and the resume cursor move in one
// transaction. A crash therefore loses at most one uncommitted batch and the
// cursor always points past the last committed record.
func (s *Store) CommitScanBatch(ctx context.Context, session *types.ScanSession, records []*types.FileRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			if err := s.UpsertFile(ctx, tx, rec); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE scan_sessions
			SET processed_files = ?, failed_files = ?, resume_cursor = ?, total_files = ?
			WHERE id = ?`,
			session.ProcessedFiles, session.FailedFiles, session.ResumeCursor,
			session.TotalFiles, session.ID)
		if err != nil {
			return fmt.Errorf("update session progress: %w", err)
		}
		return nil
	})
}

func scanSession(row rowScanner) (*types.ScanSession, error) {
	var session types.ScanSession
	var recursive int
	var status, startedAt string
	var completedAt sql.NullString

	err := row.Scan(
		&session.ID, &session.Root, &recursive, &status, &session.TotalFiles,
		&session.ProcessedFiles, &session.FailedFiles, &session.ResumeCursor,
		&session.ErrorMessage, &startedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.Recursive = recursive != 0
	session.Status = types.ScanStatus(status)
	session.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		ts := parseTime(completedAt.String)
		session.CompletedAt = &ts
	}
	return &session, nil
}
