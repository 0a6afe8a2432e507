package duplicates

import (
	"context"
	"fmt"
	"path/filepath"

	"photosorter/logging"
	"photosorter/types"
)

// ActionResult summarizes an ApplyAction call.
type ActionResult struct {
	Affected int      `json:"affected"`
	Errors   []string `json:"errors,omitempty"`
}

// ApplyAction applies a review decision to a duplicate group.
//
//   - keep: mark reviewed, no file mutation.
//   - delete: move every listed file except keepFileID to trash and
//     soft-delete its record; keepFileID stays untouched.
//   - favorite: create a non-destructive reference for each listed file in
//     the favorites location and flag the records.
//   - decide_later: no mutation, the group stays pending.
//
// Per-file I/O failures are recorded in the result and do not abort the
// remaining files.
func (c *Clusterer) ApplyAction(ctx context.Context, groupID string, action types.Action, fileIDs []int64, keepFileID int64) (*ActionResult, error) {
	group, err := c.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	for _, id := range fileIDs {
		if !group.Contains(id) {
			return nil, types.WrapError(types.ErrInvalidArgument, nil,
				fmt.Sprintf("file %d is not a member of group %s", id, groupID))
		}
	}

	result := &ActionResult{}

	switch action {
	case types.ActionKeep:
		result.Affected = len(fileIDs)
		if err := c.store.UpdateGroupReview(ctx, groupID, types.GroupReviewed, action); err != nil {
			return nil, err
		}

	case types.ActionDelete:
		if keepFileID == 0 {
			return nil, types.WrapError(types.ErrInvalidArgument, nil, "keep_file_id is required for delete")
		}
		if !group.Contains(keepFileID) {
			return nil, types.WrapError(types.ErrInvalidArgument, nil,
				fmt.Sprintf("keep_file_id %d is not a member of group %s", keepFileID, groupID))
		}
		for _, id := range fileIDs {
			if id == keepFileID {
				continue
			}
			if err := c.deleteFile(ctx, id); err != nil {
				result.Errors = append(result.Errors, err.Error())
				logging.LogError("delete duplicate %d: %v", id, err)
				continue
			}
			result.Affected++
		}
		if err := c.store.UpdateGroupReview(ctx, groupID, types.GroupReviewed, action); err != nil {
			return nil, err
		}

	case types.ActionFavorite:
		for _, id := range fileIDs {
			if err := c.favoriteFile(ctx, id); err != nil {
				result.Errors = append(result.Errors, err.Error())
				logging.LogError("favorite duplicate %d: %v", id, err)
				continue
			}
			result.Affected++
		}
		if err := c.store.UpdateGroupReview(ctx, groupID, types.GroupReviewed, action); err != nil {
			return nil, err
		}

	case types.ActionDecideLater:
		// Group stays pending for a later pass.
		result.Affected = len(fileIDs)

	default:
		return nil, types.WrapError(types.ErrInvalidArgument, nil,
			fmt.Sprintf("action %s cannot be applied", action))
	}

	return result, nil
}

func (c *Clusterer) deleteFile(ctx context.Context, id int64) error {
	rec, err := c.store.GetFileByID(ctx, id)
	if err != nil {
		return err
	}
	trashPath, err := c.fops.MoveToTrash(rec.Path)
	if err != nil {
		return err
	}
	return c.store.SoftDeleteFile(ctx, id, trashPath)
}

func (c *Clusterer) favoriteFile(ctx context.Context, id int64) error {
	rec, err := c.store.GetFileByID(ctx, id)
	if err != nil {
		return err
	}
	linkPath := filepath.Join(favoritesDir(rec.FolderPath, c.cfg.FavoritesDirName), rec.Filename)
	if _, err := c.fops.CreateReference(rec.Path, linkPath); err != nil {
		return err
	}
	return c.store.MarkFavorite(ctx, id)
}

// favoritesDir resolves the favorites location beside the file's parent
// folder, falling back to the folder itself at filesystem roots.
func favoritesDir(folder, name string) string {
	parent := filepath.Dir(folder)
	if parent == "" || parent == folder {
		parent = folder
	}
	return filepath.Join(parent, name)
}
