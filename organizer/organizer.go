// Package organizer computes and applies a date-based folder layout
// (root/YEAR/MM-MonthName/filename) for cataloged files.
package organizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photosorter/config"
	"photosorter/database"
	"photosorter/fileops"
	"photosorter/logging"
	"photosorter/types"
)

var monthNames = [13]string{
	"",
	"01-January", "02-February", "03-March", "04-April",
	"05-May", "06-June", "07-July", "08-August",
	"09-September", "10-October", "11-November", "12-December",
}

// Organizer plans and applies moves into the date layout.
type Organizer struct {
	store *database.Store
	fops  fileops.FileOps
	cfg   config.Config

	// exists probes whether a destination path is already occupied on disk.
	// Overridable in tests.
	exists func(path string) bool
}

// New builds an organizer over the given store and file operations.
func New(store *database.Store, fops fileops.FileOps, cfg config.Config) *Organizer {
	return &Organizer{store: store, fops: fops, cfg: cfg, exists: pathExists}
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Preview computes the move plan for root without touching the filesystem.
// Files without a capture timestamp are reported in Unresolved, not planned.
func (o *Organizer) Preview(ctx context.Context, root string) (*types.OrganizeResult, error) {
	root, files, err := o.pendingFiles(ctx, root)
	if err != nil {
		return nil, err
	}

	result := &types.OrganizeResult{}
	taken := make(map[string]bool)

	for _, file := range files {
		if file.CaptureTime == nil {
			result.Unresolved = append(result.Unresolved, file.Path)
			continue
		}
		inPlace := filepath.Join(targetFolder(root, *file.CaptureTime), file.Filename)
		if inPlace == file.Path {
			result.Skipped++
			continue
		}
		dest := o.destinationPath(root, *file.CaptureTime, file.Filename, taken)
		taken[dest] = true
		result.Plan = append(result.Plan, types.PlannedMove{
			FileID:      file.ID,
			Source:      file.Path,
			Destination: dest,
			CaptureTime: file.CaptureTime,
		})
	}
	return result, nil
}

// Organize applies the plan for root. With dryRun the plan is returned
// unapplied. A single move failure is recorded and does not abort the rest.
func (o *Organizer) Organize(ctx context.Context, root string, dryRun bool) (*types.OrganizeResult, error) {
	result, err := o.Preview(ctx, root)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return result, nil
	}

	absRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return nil, types.WrapError(types.ErrInvalidArgument, err, "root", root)
	}

	for _, move := range result.Plan {
		if err := o.applyMove(ctx, absRoot, move); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("move %s: %v", move.Source, err))
			logging.LogError("organize move %s -> %s: %v", move.Source, move.Destination, err)
			continue
		}
		result.Moved++
	}

	// Files already in place count as organized so re-runs report nothing
	// pending for them.
	if err := o.markInPlace(ctx, absRoot); err != nil {
		return nil, err
	}

	result.Plan = nil
	return result, nil
}

func (o *Organizer) applyMove(ctx context.Context, root string, move types.PlannedMove) error {
	if err := o.fops.Move(move.Source, move.Destination); err != nil {
		return err
	}
	if err := o.store.MarkOrganized(ctx, move.FileID, move.Destination, filepath.Dir(move.Destination)); err != nil {
		return err
	}

	// A favorite that moved needs its reference to follow it.
	rec, err := o.store.GetFileByID(ctx, move.FileID)
	if err != nil {
		return err
	}
	if rec.IsFavorite {
		linkPath := filepath.Join(root, o.cfg.FavoritesDirName, rec.Filename)
		if _, err := o.fops.CreateReference(rec.Path, linkPath); err != nil {
			logging.LogWarning("refresh favorite reference for %s: %v", rec.Path, err)
		}
	}
	return nil
}

// markInPlace flags files that already sit at their target path, so repeat
// previews converge on an empty plan.
func (o *Organizer) markInPlace(ctx context.Context, root string) error {
	files, err := o.store.ListActiveFiles(ctx, database.ListFilter{FolderPrefix: root, Unorganized: true})
	if err != nil {
		return err
	}
	for _, file := range files {
		if file.CaptureTime == nil {
			continue
		}
		dest := filepath.Join(targetFolder(root, *file.CaptureTime), file.Filename)
		if dest == file.Path {
			if err := o.store.MarkOrganized(ctx, file.ID, file.Path, file.FolderPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Organizer) pendingFiles(ctx context.Context, root string) (string, []*types.FileRecord, error) {
	absRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", nil, types.WrapError(types.ErrInvalidArgument, err, "root", root)
	}
	files, err := o.store.ListActiveFiles(ctx, database.ListFilter{FolderPrefix: absRoot, Unorganized: true})
	if err != nil {
		return "", nil, err
	}
	return absRoot, files, nil
}

func targetFolder(root string, taken time.Time) string {
	return filepath.Join(root, fmt.Sprintf("%d", taken.Year()), monthNames[taken.Month()])
}

// destinationPath resolves the target for one file, suffixing the name with a
// counter when the target is claimed by an earlier plan entry or already
// occupied on disk. An existing file is never silently overwritten.
func (o *Organizer) destinationPath(root string, taken time.Time, filename string, takenPaths map[string]bool) string {
	folder := targetFolder(root, taken)
	dest := filepath.Join(folder, filename)
	if !takenPaths[dest] && !o.exists(dest) {
		return dest
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for counter := 1; ; counter++ {
		candidate := filepath.Join(folder, fmt.Sprintf("%s_%d%s", stem, counter, ext))
		if !takenPaths[candidate] && !o.exists(candidate) {
			return candidate
		}
	}
}
