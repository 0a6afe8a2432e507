package imageprocessor

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// ComputeAverageHash calculates a simple average hash for the image.
// Always returns a 16-character hexadecimal string (64 bits).
func ComputeAverageHash(img gocv.Mat) (string, error) {
	if img.Empty() {
		return "", fmt.Errorf("cannot compute hash for empty image")
	}

	gray, err := resizeGray(img, 8, 8)
	if err != nil {
		return "", err
	}
	defer gray.Close()

	// Mean pixel value is the threshold for each bit
	var sum uint64
	var count int
	for y := 0; y < gray.Rows(); y++ {
		for x := 0; x < gray.Cols(); x++ {
			sum += uint64(gray.GetUCharAt(y, x))
			count++
		}
	}

	var threshold float64
	if count > 0 {
		threshold = float64(sum) / float64(count)
	}

	bits := make([]bool, 0, 64)
	for y := 0; y < gray.Rows(); y++ {
		for x := 0; x < gray.Cols(); x++ {
			bits = append(bits, float64(gray.GetUCharAt(y, x)) >= threshold)
		}
	}

	return packBits(bits), nil
}

// ComputePerceptualHash computes a DCT-based perceptual hash for the image.
// Always returns a 16-character hexadecimal string (64 bits).
func ComputePerceptualHash(img gocv.Mat) (string, error) {
	if img.Empty() {
		return "", fmt.Errorf("cannot compute hash for empty image")
	}

	gray, err := resizeGray(img, 32, 32)
	if err != nil {
		return "", err
	}
	defer gray.Close()

	// Convert to float for DCT
	floatImg := gocv.NewMat()
	defer floatImg.Close()
	gray.ConvertTo(&floatImg, gocv.MatTypeCV32F)

	dct := gocv.NewMat()
	defer dct.Close()
	gocv.DCT(floatImg, &dct, 0)
	if dct.Empty() {
		return "", fmt.Errorf("DCT produced empty result")
	}

	// Keep the 8x8 low frequency block and compare against its median
	lowFreq := dct.Region(image.Rect(0, 0, 8, 8))
	defer lowFreq.Close()

	values := make([]float32, 0, 64)
	for y := 0; y < lowFreq.Rows(); y++ {
		for x := 0; x < lowFreq.Cols(); x++ {
			values = append(values, lowFreq.GetFloatAt(y, x))
		}
	}
	median := calculateMedian(values)

	bits := make([]bool, 0, 64)
	for y := 0; y < lowFreq.Rows(); y++ {
		for x := 0; x < lowFreq.Cols(); x++ {
			bits = append(bits, lowFreq.GetFloatAt(y, x) >= median)
		}
	}

	return packBits(bits), nil
}

// ComputeDifferenceHash computes a horizontal-gradient difference hash.
// The image is resized to 9x8 and each bit compares a pixel with its right
// neighbor. Always returns a 16-character hexadecimal string (64 bits).
func ComputeDifferenceHash(img gocv.Mat) (string, error) {
	if img.Empty() {
		return "", fmt.Errorf("cannot compute hash for empty image")
	}

	gray, err := resizeGray(img, 9, 8)
	if err != nil {
		return "", err
	}
	defer gray.Close()

	bits := make([]bool, 0, 64)
	for y := 0; y < gray.Rows(); y++ {
		for x := 0; x < gray.Cols()-1; x++ {
			bits = append(bits, gray.GetUCharAt(y, x) < gray.GetUCharAt(y, x+1))
		}
	}

	return packBits(bits), nil
}

// resizeGray resizes img to width x height and converts it to a single
// grayscale channel. The caller must Close the returned Mat.
func resizeGray(img gocv.Mat, width, height int) (gocv.Mat, error) {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationLinear)

	gray := gocv.NewMat()
	if resized.Channels() != 1 {
		gocv.CvtColor(resized, &gray, gocv.ColorBGRToGray)
	} else {
		resized.CopyTo(&gray)
	}

	if gray.Empty() {
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("resize to %dx%d produced empty image", width, height)
	}
	return gray, nil
}

// packBits packs a bit sequence MSB-first into a hex string, padding the last
// byte with zeros on the right.
func packBits(bits []bool) string {
	var hashBytes []byte
	var currentByte byte
	var bitCount uint

	for _, bit := range bits {
		currentByte = currentByte << 1
		if bit {
			currentByte |= 1
		}
		bitCount++
		if bitCount == 8 {
			hashBytes = append(hashBytes, currentByte)
			currentByte = 0
			bitCount = 0
		}
	}
	if bitCount > 0 {
		currentByte = currentByte << (8 - bitCount)
		hashBytes = append(hashBytes, currentByte)
	}

	hexString := ""
	for _, b := range hashBytes {
		hexString += fmt.Sprintf("%02x", b)
	}
	return hexString
}

// calculateMedian calculates the median value of a float32 array
func calculateMedian(values []float32) float32 {
	valuesCopy := make([]float32, len(values))
	copy(valuesCopy, values)

	sort.Slice(valuesCopy, func(i, j int) bool {
		return valuesCopy[i] < valuesCopy[j]
	})

	length := len(valuesCopy)
	if length == 0 {
		return 0
	} else if length%2 == 0 {
		return (valuesCopy[length/2-1] + valuesCopy[length/2]) / 2
	}
	return valuesCopy[length/2]
}
