package imageprocessor

import (
	"fmt"

	"gocv.io/x/gocv"

	"photosorter/types"
)

// LoadImage loads an image as a single grayscale channel for hashing.
func LoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		return img, fmt.Errorf("failed to load image: %s", path)
	}
	return img, nil
}

// GocvHasher computes the perceptual hash set of an image file using OpenCV.
type GocvHasher struct{}

// HashFile loads the image at path and computes its aHash, dHash and pHash.
func (GocvHasher) HashFile(path string) (types.HashSet, error) {
	var hashes types.HashSet

	img, err := LoadImage(path)
	if err != nil {
		return hashes, err
	}
	defer img.Close()

	hashes.PHash, err = ComputePerceptualHash(img)
	if err != nil {
		return hashes, fmt.Errorf("cannot compute perceptual hash for %s: %v", path, err)
	}
	hashes.DHash, err = ComputeDifferenceHash(img)
	if err != nil {
		return hashes, fmt.Errorf("cannot compute difference hash for %s: %v", path, err)
	}
	hashes.AHash, err = ComputeAverageHash(img)
	if err != nil {
		return hashes, fmt.Errorf("cannot compute average hash for %s: %v", path, err)
	}

	return hashes, nil
}
