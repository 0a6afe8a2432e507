// Package imageprocessor computes perceptual hashes (aHash, dHash, pHash) for
// image files and provides the distance functions the duplicate clusterer
// builds on.
package imageprocessor
