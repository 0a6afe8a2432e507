package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"photosorter/types"
)

// ReplaceGroups records the result of a clustering run: all still-pending
// groups from earlier runs are dropped and the new groups inserted, together
// with a cluster_runs row used for cache validity checks. Reviewed groups are
// kept as an audit trail.
func (s *Store) ReplaceGroups(ctx context.Context, threshold int, groups []*types.DuplicateGroup) error {
	now := time.Now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM duplicate_groups WHERE status = ?", string(types.GroupPending)); err != nil {
			return fmt.Errorf("drop pending groups: %w", err)
		}

		for _, group := range groups {
			group.CreatedAt = now
			group.UpdatedAt = now
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO duplicate_groups (id, threshold, similarity, status, action, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				group.ID, group.Threshold, group.SimilarityScore, string(group.Status),
				group.Action.String(), formatTime(now), formatTime(now)); err != nil {
				return fmt.Errorf("insert group %s: %w", group.ID, err)
			}
			for pos, fileID := range group.MemberIDs {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO duplicate_group_members (group_id, file_id, position)
					VALUES (?, ?, ?)`,
					group.ID, fileID, pos); err != nil {
					return fmt.Errorf("insert member %d of group %s: %w", fileID, group.ID, err)
				}
			}
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO cluster_runs (threshold, ran_at) VALUES (?, ?)",
			threshold, formatTime(now)); err != nil {
			return fmt.Errorf("record cluster run: %w", err)
		}
		return nil
	})
}

// GetGroup loads a group and its ordered member ids.
func (s *Store) GetGroup(ctx context.Context, id string) (*types.DuplicateGroup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, threshold, similarity, status, action, created_at, updated_at
		FROM duplicate_groups WHERE id = ?`, id)
	group, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.WrapError(types.ErrNotFound, nil, "group", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadMembers(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// ListGroups returns groups filtered by status ("" for all), newest first,
// ties broken by id for deterministic output.
func (s *Store) ListGroups(ctx context.Context, status types.GroupStatus) ([]*types.DuplicateGroup, error) {
	query := "SELECT id, threshold, similarity, status, action, created_at, updated_at FROM duplicate_groups"
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []*types.DuplicateGroup
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, group := range groups {
		if err := s.loadMembers(ctx, group); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// UpdateGroupReview records a review decision on a group.
func (s *Store) UpdateGroupReview(ctx context.Context, id string, status types.GroupStatus, action types.Action) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE duplicate_groups SET status = ?, action = ?, updated_at = ? WHERE id = ?",
		string(status), action.String(), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update group review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return types.WrapError(types.ErrNotFound, nil, "group", id)
	}
	return nil
}

// ClusterCacheValid reports whether the most recent clustering run used the
// same threshold and no catalog record changed since it ran.
func (s *Store) ClusterCacheValid(ctx context.Context, threshold int) (bool, error) {
	var runThreshold int
	var ranAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT threshold, ran_at FROM cluster_runs ORDER BY id DESC LIMIT 1").Scan(&runThreshold, &ranAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cluster run: %w", err)
	}
	if runThreshold != threshold {
		return false, nil
	}

	var changed int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM media_files WHERE updated_at > ?", ranAt).Scan(&changed)
	if err != nil {
		return false, fmt.Errorf("count changed files: %w", err)
	}
	return changed == 0, nil
}

func (s *Store) loadMembers(ctx context.Context, group *types.DuplicateGroup) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT file_id FROM duplicate_group_members WHERE group_id = ? ORDER BY position",
		group.ID)
	if err != nil {
		return fmt.Errorf("load members of %s: %w", group.ID, err)
	}
	defer rows.Close()

	group.MemberIDs = group.MemberIDs[:0]
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan member row: %w", err)
		}
		group.MemberIDs = append(group.MemberIDs, id)
	}
	return rows.Err()
}

func scanGroup(row rowScanner) (*types.DuplicateGroup, error) {
	var group types.DuplicateGroup
	var status, action, createdAt, updatedAt string

	err := row.Scan(&group.ID, &group.Threshold, &group.SimilarityScore,
		&status, &action, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan group row: %w", err)
	}

	group.Status = types.GroupStatus(status)
	parsed, err := types.ParseAction(action)
	if err != nil {
		return nil, err
	}
	group.Action = parsed
	group.CreatedAt = parseTime(createdAt)
	group.UpdatedAt = parseTime(updatedAt)
	return &group, nil
}
