package scanner

import (
	"time"

	"photosorter/types"
)

// Hasher computes the perceptual hash set of an image file. The production
// implementation is imageprocessor.GocvHasher; tests substitute fakes to
// count or fail hash computations.
type Hasher interface {
	HashFile(path string) (types.HashSet, error)
}

// ExifFunc resolves the capture timestamp of an image file, returning false
// when none exists. It matches exifdate.Provider.CaptureTime.
type ExifFunc func(path string) (time.Time, bool)

// fileResult is the outcome of processing one file of a batch.
type fileResult struct {
	path   string
	record *types.FileRecord // nil when skipped or failed
	failed bool
	err    error
}
