// Package fileops abstracts the destructive and reference-creating filesystem
// operations so engines can be tested against fakes and callers decide the
// retry/skip policy on I/O errors.
package fileops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"photosorter/types"
)

// FileOps is the capability consumed by the duplicate clusterer and the
// organizer.
type FileOps interface {
	// Move relocates a file, creating target directories as needed.
	Move(src, dst string) error
	// CreateReference creates a non-destructive reference (symlink) to
	// target at linkPath, leaving the original in place. It returns the
	// path actually used, which may carry a collision suffix.
	CreateReference(target, linkPath string) (string, error)
	// MoveToTrash moves a file to a trash directory beside its folder and
	// returns the trash path.
	MoveToTrash(path string) (string, error)
}

// OSFileOps implements FileOps against the real filesystem.
type OSFileOps struct {
	// TrashDirName is the per-folder trash directory name, ".trash" by
	// default.
	TrashDirName string
}

// NewOS returns an OSFileOps using the given trash directory name.
func NewOS(trashDirName string) *OSFileOps {
	if trashDirName == "" {
		trashDirName = ".trash"
	}
	return &OSFileOps{TrashDirName: trashDirName}
}

// Move relocates src to dst, falling back to copy+remove across filesystems.
func (o *OSFileOps) Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return types.WrapError(types.ErrIOFailure, err, "create target directory")
	}
	if err := os.Rename(src, dst); err != nil {
		if isCrossDevice(err) {
			return copyAndRemove(src, dst)
		}
		return types.WrapError(types.ErrIOFailure, err, "move", src)
	}
	return nil
}

// CreateReference symlinks target into linkPath, suffixing the name on
// collision so an existing reference is never overwritten.
func (o *OSFileOps) CreateReference(target, linkPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return "", types.WrapError(types.ErrIOFailure, err, "create favorites directory")
	}
	linkPath = disambiguate(linkPath)
	if err := os.Symlink(target, linkPath); err != nil {
		return "", types.WrapError(types.ErrIOFailure, err, "create reference", target)
	}
	return linkPath, nil
}

// MoveToTrash moves path into a trash directory next to its parent folder and
// returns the destination.
func (o *OSFileOps) MoveToTrash(path string) (string, error) {
	trashDir := filepath.Join(filepath.Dir(path), o.TrashDirName)
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return "", types.WrapError(types.ErrIOFailure, err, "create trash directory")
	}
	dst := disambiguate(filepath.Join(trashDir, filepath.Base(path)))
	if err := os.Rename(path, dst); err != nil {
		if isCrossDevice(err) {
			if cpErr := copyAndRemove(path, dst); cpErr != nil {
				return "", cpErr
			}
			return dst, nil
		}
		return "", types.WrapError(types.ErrIOFailure, err, "move to trash", path)
	}
	return dst, nil
}

// disambiguate returns path unchanged when free, otherwise the first
// name_N.ext variant that does not exist yet.
func disambiguate(path string) string {
	if _, err := os.Lstat(path); err != nil {
		return path
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for counter := 1; ; counter++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, counter, ext))
		if _, err := os.Lstat(candidate); err != nil {
			return candidate
		}
	}
}

func copyAndRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return types.WrapError(types.ErrIOFailure, err, "open source", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return types.WrapError(types.ErrIOFailure, err, "create target", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return types.WrapError(types.ErrIOFailure, err, "copy", src)
	}
	if err := out.Close(); err != nil {
		return types.WrapError(types.ErrIOFailure, err, "close target", dst)
	}
	if err := os.Remove(src); err != nil {
		return types.WrapError(types.ErrIOFailure, err, "remove source", src)
	}
	return nil
}
