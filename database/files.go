package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"photosorter/types"
)

const fileColumns = `id, path, filename, folder_path, size, modified_at, fingerprint,
	phash, dhash, ahash, capture_time, year, month, day,
	is_favorite, is_organized, is_deleted, scanned_at, updated_at`

// ListFilter narrows ListActiveFiles results.
type ListFilter struct {
	FolderPrefix string
	WithHashes   bool
	Unorganized  bool
	Year         *int
	Month        *int
	Day          *int
}

// UpsertFile inserts or updates a catalog record by path and fills in the
// record id. It participates in the surrounding transaction when tx is not
// nil.
func (s *Store) UpsertFile(ctx context.Context, tx *sql.Tx, rec *types.FileRecord) error {
	now := formatTime(time.Now())
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = time.Now()
	}

	var year, month, day interface{}
	if rec.CaptureTime != nil {
		year, month, day = rec.CaptureTime.Year(), int(rec.CaptureTime.Month()), rec.CaptureTime.Day()
	}

	exec := s.db.ExecContext
	query := s.db.QueryRowContext
	if tx != nil {
		exec = tx.ExecContext
		query = tx.QueryRowContext
	}

	_, err := exec(ctx, `
		INSERT INTO media_files (
			path, filename, folder_path, size, modified_at, fingerprint,
			phash, dhash, ahash, capture_time, year, month, day,
			is_favorite, is_organized, is_deleted, scanned_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			folder_path = excluded.folder_path,
			size = excluded.size,
			modified_at = excluded.modified_at,
			fingerprint = excluded.fingerprint,
			phash = excluded.phash,
			dhash = excluded.dhash,
			ahash = excluded.ahash,
			capture_time = excluded.capture_time,
			year = excluded.year,
			month = excluded.month,
			day = excluded.day,
			updated_at = excluded.updated_at`,
		rec.Path, rec.Filename, rec.FolderPath, rec.Size, formatTime(rec.ModifiedAt), rec.Fingerprint,
		rec.Hashes.PHash, rec.Hashes.DHash, rec.Hashes.AHash, nullableTime(rec.CaptureTime), year, month, day,
		boolToInt(rec.IsFavorite), boolToInt(rec.IsOrganized), boolToInt(rec.IsDeleted), formatTime(rec.ScannedAt), now,
	)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", rec.Path, err)
	}

	if err := query(ctx, "SELECT id FROM media_files WHERE path = ?", rec.Path).Scan(&rec.ID); err != nil {
		return fmt.Errorf("read id for %s: %w", rec.Path, err)
	}
	return nil
}

// GetFileByPath returns the catalog record for a path.
func (s *Store) GetFileByPath(ctx context.Context, path string) (*types.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM media_files WHERE path = ?", path)
	rec, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.WrapError(types.ErrNotFound, nil, "file", path)
	}
	return rec, err
}

// GetFileByID returns the catalog record with the given id.
func (s *Store) GetFileByID(ctx context.Context, id int64) (*types.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM media_files WHERE id = ?", id)
	rec, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.WrapError(types.ErrNotFound, nil, fmt.Sprintf("file id %d", id))
	}
	return rec, err
}

// GetFilesByIDs returns the records for the given ids, keyed by id. Missing
// ids are simply absent from the result.
func (s *Store) GetFilesByIDs(ctx context.Context, ids []int64) (map[int64]*types.FileRecord, error) {
	result := make(map[int64]*types.FileRecord, len(ids))
	for _, id := range ids {
		rec, err := s.GetFileByID(ctx, id)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result[id] = rec
	}
	return result, nil
}

// ListActiveFiles returns non-deleted records matching the filter, ordered by
// path for deterministic output.
func (s *Store) ListActiveFiles(ctx context.Context, filter ListFilter) ([]*types.FileRecord, error) {
	query := "SELECT " + fileColumns + " FROM media_files WHERE is_deleted = 0"
	var args []interface{}

	if filter.FolderPrefix != "" {
		query += " AND (folder_path = ? OR folder_path LIKE ?)"
		args = append(args, filter.FolderPrefix, filter.FolderPrefix+"%")
	}
	if filter.WithHashes {
		query += " AND phash IS NOT NULL AND phash != ''"
	}
	if filter.Unorganized {
		query += " AND is_organized = 0"
	}
	if filter.Year != nil {
		query += " AND year = ?"
		args = append(args, *filter.Year)
	}
	if filter.Month != nil {
		query += " AND month = ?"
		args = append(args, *filter.Month)
	}
	if filter.Day != nil {
		query += " AND day = ?"
		args = append(args, *filter.Day)
	}
	query += " ORDER BY path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active files: %w", err)
	}
	defer rows.Close()

	var records []*types.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SoftDeleteFile marks a record deleted and updates its path to the trash
// location the file was moved to.
func (s *Store) SoftDeleteFile(ctx context.Context, id int64, trashPath string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE media_files SET is_deleted = 1, path = ?, updated_at = ? WHERE id = ?",
		trashPath, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("soft delete file %d: %w", id, err)
	}
	return requireRow(res, id)
}

// MarkFavorite flags a record as favorite.
func (s *Store) MarkFavorite(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE media_files SET is_favorite = 1, updated_at = ? WHERE id = ?",
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark favorite %d: %w", id, err)
	}
	return requireRow(res, id)
}

// MarkOrganized records the new location of a moved file.
func (s *Store) MarkOrganized(ctx context.Context, id int64, newPath, newFolder string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE media_files SET is_organized = 1, path = ?, folder_path = ?, updated_at = ? WHERE id = ?",
		newPath, newFolder, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark organized %d: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return types.WrapError(types.ErrNotFound, nil, fmt.Sprintf("file id %d", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row rowScanner) (*types.FileRecord, error) {
	var rec types.FileRecord
	var modifiedAt, scannedAt, updatedAt string
	var captureTime sql.NullString
	var phash, dhash, ahash sql.NullString
	var year, month, day sql.NullInt64
	var favorite, organized, deleted int

	err := row.Scan(
		&rec.ID, &rec.Path, &rec.Filename, &rec.FolderPath, &rec.Size, &modifiedAt, &rec.Fingerprint,
		&phash, &dhash, &ahash, &captureTime, &year, &month, &day,
		&favorite, &organized, &deleted, &scannedAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan file row: %w", err)
	}

	rec.ModifiedAt = parseTime(modifiedAt)
	rec.ScannedAt = parseTime(scannedAt)
	rec.UpdatedAt = parseTime(updatedAt)
	rec.Hashes = types.HashSet{PHash: phash.String, DHash: dhash.String, AHash: ahash.String}
	if captureTime.Valid {
		ts := parseTime(captureTime.String)
		rec.CaptureTime = &ts
	}
	rec.IsFavorite = favorite != 0
	rec.IsOrganized = organized != 0
	rec.IsDeleted = deleted != 0
	return &rec, nil
}
