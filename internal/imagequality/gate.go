// Package imagequality decides whether a leaf photo is good enough to classify.
package imagequality

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gonum.org/v1/gonum/stat"
)

// Verdict reasons, in the order the rules are applied.
const (
	ReasonUnreadable = "cannot read image"
	ReasonBlurry     = "too blurry"
	ReasonDark       = "too dark"
	ReasonBright     = "too bright"
	ReasonGood       = "good quality"
)

// Verdict is the gate outcome. Reason is always one of the Reason constants.
type Verdict struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// Thresholds tune the gate. Brightness is the mean gray level on a 0..255 scale,
// sharpness the variance of the Laplacian of that gray image.
type Thresholds struct {
	MinSharpness  float64
	MinBrightness float64
	MaxBrightness float64
	// MaxDimension bounds the long edge measured; larger images are downscaled first.
	MaxDimension int
}

// DefaultThresholds are the values the gate ships with.
var DefaultThresholds = Thresholds{
	MinSharpness:  100,
	MinBrightness: 40,
	MaxBrightness: 220,
	MaxDimension:  1024,
}

// Metrics are the raw measurements behind a verdict.
type Metrics struct {
	Sharpness  float64 `json:"sharpness"`
	Brightness float64 `json:"brightness"`
}

type Gate struct {
	t Thresholds
}

func NewGate(t Thresholds) *Gate {
	if t.MaxDimension <= 0 {
		t.MaxDimension = DefaultThresholds.MaxDimension
	}
	return &Gate{t: t}
}

var defaultGate = NewGate(DefaultThresholds)

// Check applies the default thresholds.
func Check(img image.Image) Verdict { return defaultGate.Check(img) }

// CheckBytes decodes data and applies the default thresholds.
func CheckBytes(data []byte) Verdict { return defaultGate.CheckBytes(data) }

// CheckBytes decodes data and checks it; undecodable input fails with ReasonUnreadable.
func (g *Gate) CheckBytes(data []byte) Verdict {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Verdict{Reason: ReasonUnreadable}
	}
	return g.Check(img)
}

// Check returns the first failing rule's verdict, or a pass.
func (g *Gate) Check(img image.Image) Verdict {
	v, _ := g.Measure(img)
	return v
}

// Measure returns the verdict together with the measurements it was based on.
func (g *Gate) Measure(img image.Image) (Verdict, Metrics) {
	if img == nil || img.Bounds().Empty() {
		return Verdict{Reason: ReasonUnreadable}, Metrics{}
	}
	gray, w, h := g.grayLevels(img)
	m := Metrics{
		Sharpness:  laplacianVariance(gray, w, h),
		Brightness: stat.Mean(gray, nil),
	}
	switch {
	case m.Sharpness < g.t.MinSharpness:
		return Verdict{Reason: ReasonBlurry}, m
	case m.Brightness < g.t.MinBrightness:
		return Verdict{Reason: ReasonDark}, m
	case m.Brightness > g.t.MaxBrightness:
		return Verdict{Reason: ReasonBright}, m
	default:
		return Verdict{Passed: true, Reason: ReasonGood}, m
	}
}

// grayLevels returns row-major luma values in 0..255.
func (g *Gate) grayLevels(img image.Image) ([]float64, int, int) {
	b := img.Bounds()
	if b.Dx() > g.t.MaxDimension || b.Dy() > g.t.MaxDimension {
		img = imaging.Fit(img, g.t.MaxDimension, g.t.MaxDimension, imaging.Box)
	}
	gray := imaging.Grayscale(img)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			out[y*w+x] = float64(row[x*4])
		}
	}
	return out, w, h
}

// laplacianVariance convolves with the 4-neighbour Laplacian kernel, mirroring
// at the borders without repeating the edge pixel, and returns the population variance.
func laplacianVariance(gray []float64, w, h int) float64 {
	lap := make([]float64, len(gray))
	at := func(x, y int) float64 { return gray[reflect101(y, h)*w+reflect101(x, w)] }
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lap[y*w+x] = at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
		}
	}
	_, variance := stat.PopMeanVariance(lap, nil)
	return variance
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
