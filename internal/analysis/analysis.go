// Package analysis provides the built-in frame analyzer used by the CLI.
//
// It measures brightness and contrast on a downscaled grayscale copy of
// each frame and flags dark or flat frames. Library callers normally
// supply their own analyzer.
package analysis

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// DefaultThumbWidth is the width frames are reduced to before measuring.
const DefaultThumbWidth = 160

// Default thresholds on the 0-255 luma scale.
const (
	DefaultDarkThreshold = 16.0
	DefaultFlatThreshold = 6.0
)

// Luma holds the measurements for one frame.
type Luma struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Mean     float64 `json:"mean"`
	Contrast float64 `json:"contrast"`
	Min      uint8   `json:"min"`
	Max      uint8   `json:"max"`
	Dark     bool    `json:"dark"`
	Flat     bool    `json:"flat"`
}

// LumaAnalyzer measures frame brightness. The zero value uses the defaults.
type LumaAnalyzer struct {
	ThumbWidth    int
	DarkThreshold float64
	FlatThreshold float64
}

// NewLumaAnalyzer returns an analyzer with the default settings.
func NewLumaAnalyzer() *LumaAnalyzer {
	return &LumaAnalyzer{
		ThumbWidth:    DefaultThumbWidth,
		DarkThreshold: DefaultDarkThreshold,
		FlatThreshold: DefaultFlatThreshold,
	}
}

// Analyze measures img. It does not retain img.
func (a *LumaAnalyzer) Analyze(img image.Image) (Luma, error) {
	if img == nil {
		return Luma{}, errors.New("nil frame")
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return Luma{}, errors.New("empty frame")
	}

	width := a.ThumbWidth
	if width <= 0 {
		width = DefaultThumbWidth
	}
	thumb := img
	if bounds.Dx() > width {
		thumb = imaging.Resize(img, width, 0, imaging.Box)
	}
	gray := imaging.Grayscale(thumb)

	var (
		sum, sumSq float64
		lo, hi     uint8 = 255, 0
	)
	pix := gray.Pix
	n := 0
	for i := 0; i+3 < len(pix); i += 4 {
		v := pix[i]
		f := float64(v)
		sum += f
		sumSq += f * f
		lo = min(lo, v)
		hi = max(hi, v)
		n++
	}

	mean := sum / float64(n)
	variance := math.Max(sumSq/float64(n)-mean*mean, 0)
	contrast := math.Sqrt(variance)

	dark := a.DarkThreshold
	if dark == 0 {
		dark = DefaultDarkThreshold
	}
	flat := a.FlatThreshold
	if flat == 0 {
		flat = DefaultFlatThreshold
	}

	return Luma{
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Mean:     mean,
		Contrast: contrast,
		Min:      lo,
		Max:      hi,
		Dark:     mean < dark,
		Flat:     contrast < flat,
	}, nil
}
