package imageprocessor

import (
	"fmt"
	"math/bits"
	"strconv"

	"photosorter/types"
)

// HashBits is the size of every hash produced by this package.
const HashBits = 64

// Relative weights of the hash kinds when combining distances. pHash is the
// most robust against resizes and recompression, so it counts double.
const (
	weightPHash = 2
	weightDHash = 1
	weightAHash = 1
	weightTotal = weightPHash + weightDHash + weightAHash
)

// HammingDistance counts differing bits between two 64-bit hex-encoded hashes.
func HammingDistance(hexA, hexB string) (int, error) {
	a, err := strconv.ParseUint(hexA, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hash %q: %v", hexA, err)
	}
	b, err := strconv.ParseUint(hexB, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hash %q: %v", hexB, err)
	}
	return bits.OnesCount64(a ^ b), nil
}

// CombinedDistance returns the weighted Hamming distance between two hash
// sets as a rational num/den, so callers can compare against an integer
// threshold t with num <= t*den without rounding. When the secondary hashes
// are missing on either side the comparison falls back to pHash alone.
func CombinedDistance(a, b types.HashSet) (num, den int, err error) {
	dp, err := HammingDistance(a.PHash, b.PHash)
	if err != nil {
		return 0, 0, err
	}

	if a.DHash == "" || b.DHash == "" || a.AHash == "" || b.AHash == "" {
		return dp, 1, nil
	}

	dd, err := HammingDistance(a.DHash, b.DHash)
	if err != nil {
		return 0, 0, err
	}
	da, err := HammingDistance(a.AHash, b.AHash)
	if err != nil {
		return 0, 0, err
	}

	return weightPHash*dp + weightDHash*dd + weightAHash*da, weightTotal, nil
}

// NormalizedDistance converts a num/den weighted distance to a float in
// [0, HashBits].
func NormalizedDistance(num, den int) float64 {
	if den <= 0 {
		return float64(HashBits)
	}
	return float64(num) / float64(den)
}

// PrefixKey extracts the top `width` bits of a hex-encoded pHash, used to
// bucket candidates before pairwise comparison.
func PrefixKey(phash string, width int) (uint64, error) {
	if width < 1 || width > HashBits {
		return 0, fmt.Errorf("prefix width %d out of range", width)
	}
	v, err := strconv.ParseUint(phash, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hash %q: %v", phash, err)
	}
	return v >> (HashBits - width), nil
}

// PrefixDistance counts differing bits between two bucket keys.
func PrefixDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// MaxPHashDistance bounds the pHash Hamming distance of any pair whose
// weighted distance is within threshold. Because pHash carries weight 2 of 4,
// a pair at weighted distance t can hide a pHash distance of at most 2t.
// Buckets whose prefixes differ by more than min(2t, width) bits therefore
// cannot contain a matching pair, which is the completeness argument for the
// prefix bucketing.
func MaxPHashDistance(threshold int) int {
	return threshold * weightTotal / weightPHash
}
