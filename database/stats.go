package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"photosorter/types"
)

// Stats aggregates catalog counts, the pending group count and the year range
// of known capture timestamps.
func (s *Store) Stats(ctx context.Context) (*types.LibraryStats, error) {
	var stats types.LibraryStats

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(is_favorite), 0),
			COALESCE(SUM(is_organized), 0)
		FROM media_files WHERE is_deleted = 0`).Scan(
		&stats.TotalFiles, &stats.TotalFavorites, &stats.OrganizedFiles)
	if err != nil {
		return nil, fmt.Errorf("count files: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM duplicate_groups WHERE status = ?",
		string(types.GroupPending)).Scan(&stats.PendingGroups)
	if err != nil {
		return nil, fmt.Errorf("count pending groups: %w", err)
	}

	var minYear, maxYear sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		"SELECT MIN(year), MAX(year) FROM media_files WHERE is_deleted = 0 AND year IS NOT NULL").Scan(&minYear, &maxYear)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("year range: %w", err)
	}
	if minYear.Valid {
		stats.MinYear = int(minYear.Int64)
		stats.MaxYear = int(maxYear.Int64)
		stats.HasDates = true
	}

	return &stats, nil
}

// ListByDate returns active files filtered by capture date parts, newest
// capture first.
func (s *Store) ListByDate(ctx context.Context, year, month, day *int) ([]*types.FileRecord, error) {
	query := "SELECT " + fileColumns + " FROM media_files WHERE is_deleted = 0"
	var args []interface{}
	if year != nil {
		query += " AND year = ?"
		args = append(args, *year)
	}
	if month != nil {
		query += " AND month = ?"
		args = append(args, *month)
	}
	if day != nil {
		query += " AND day = ?"
		args = append(args, *day)
	}
	query += " ORDER BY capture_time DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list by date: %w", err)
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
