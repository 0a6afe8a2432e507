package scanner

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// fingerprintChunk is how much leading content goes into the cheap
// fingerprint digest.
const fingerprintChunk = 64 * 1024

// IsImageFile checks whether a path carries a supported image extension.
// The allow-list is fixed; videos, RAW files and documents are ignored.
func IsImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp", ".heic", ".heif":
		return true
	default:
		return false
	}
}

// GetFileFormat returns the lowercase file extension without the dot
func GetFileFormat(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// DiscoverFiles enumerates the image files under root in lexicographic path
// order. The ordering is what makes the resume cursor meaningful: rebuilding
// the same sorted sequence lets a resumed scan skip everything at or before
// the cursor. Hidden directories (including the trash folder) are skipped.
func DiscoverFiles(root string, recursive bool) ([]string, error) {
	var paths []string

	if recursive {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				// Unreadable subtree: skip it, the scan records nothing for it.
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && IsImageFile(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() && IsImageFile(entry.Name()) {
				paths = append(paths, filepath.Join(root, entry.Name()))
			}
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// Fingerprint computes the cheap change-detection signature for a file:
// size, mtime and an MD5 digest of the first 64 KiB. Matching fingerprints
// let a rescan skip perceptual hash recomputation.
func Fingerprint(path string, info os.FileInfo) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %v", path, err)
	}
	defer f.Close()

	hasher := md5.New()
	if _, err := io.CopyN(hasher, f, fingerprintChunk); err != nil && err != io.EOF {
		return "", fmt.Errorf("cannot read %s: %v", path, err)
	}

	return fmt.Sprintf("%d:%d:%x", info.Size(), info.ModTime().UnixNano(), hasher.Sum(nil)), nil
}
