package quality

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"

	"github.com/kozaktomas/photo-quality/internal/fingerprint"
)

// ErrDecode marks an image buffer that cannot be interpreted as an image.
var ErrDecode = errors.New("image decode failed")

// sharpnessNorm is the Laplacian variance that maps to sharpness 1.0.
const sharpnessNorm = 500.0

// Metrics holds the per-image measurements produced by Compute.
// All score fields are in [0,1].
type Metrics struct {
	Sharpness  float64
	Brightness float64
	Contrast   float64
	RedAvg     float64
	GreenAvg   float64
	BlueAvg    float64
	PHash      fingerprint.Hash
}

// Compute decodes an image buffer and measures its quality metrics:
// Laplacian-variance sharpness, mean brightness, standard-deviation
// contrast, per-channel averages, and a 64-bit perceptual hash.
func Compute(imageData []byte) (*Metrics, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	gray, redSum, greenSum, blueSum := intensities(img)
	pixels := float64(width * height)

	mean := meanOf(gray)
	stddev := stddevOf(gray, mean)

	m := &Metrics{
		Sharpness:  clamp01(laplacianVariance(gray, width, height) / sharpnessNorm),
		Brightness: clamp01(mean / 255),
		Contrast:   clamp01(stddev / 127.5),
		RedAvg:     clamp01(redSum / pixels / 255),
		GreenAvg:   clamp01(greenSum / pixels / 255),
		BlueAvg:    clamp01(blueSum / pixels / 255),
		PHash:      fingerprint.ComputePHash(img),
	}
	return m, nil
}

// intensities converts an image into a flat row-major grayscale intensity
// slice (0-255) and accumulates per-channel sums. Single-channel images
// report the gray value on all three channels.
func intensities(img image.Image) (gray []float64, redSum, greenSum, blueSum float64) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray = make([]float64, 0, width*height)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			rf := float64(r >> 8)
			gf := float64(g >> 8)
			bf := float64(b >> 8)
			// ITU-R BT.601 luma formula.
			luma := 0.299*rf + 0.587*gf + 0.114*bf
			gray = append(gray, luma)
			redSum += rf
			greenSum += gf
			blueSum += bf
		}
	}
	return gray, redSum, greenSum, blueSum
}

// laplacianVariance applies the 4-neighbor discrete Laplacian to the
// grayscale image and returns the variance of the response, a classic
// sharpness proxy. Images smaller than 3x3 have no interior and score 0.
func laplacianVariance(gray []float64, width, height int) float64 {
	if width < 3 || height < 3 {
		return 0
	}

	response := make([]float64, 0, (width-2)*(height-2))
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			center := gray[y*width+x]
			lap := gray[(y-1)*width+x] +
				gray[(y+1)*width+x] +
				gray[y*width+x-1] +
				gray[y*width+x+1] -
				4*center
			response = append(response, lap)
		}
	}

	mean := meanOf(response)
	var variance float64
	for _, v := range response {
		d := v - mean
		variance += d * d
	}
	return variance / float64(len(response))
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddevOf(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
