package utils

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

// EnhanceContrast blends every channel away from the image's mean gray level.
// A factor of 1 returns the image unchanged.
func EnhanceContrast(img image.Image, factor float64) *image.NRGBA {
	src := imaging.Clone(img)
	gray := imaging.Grayscale(src)
	levels := make([]float64, 0, len(gray.Pix)/4)
	for i := 0; i < len(gray.Pix); i += 4 {
		levels = append(levels, float64(gray.Pix[i]))
	}
	mean := math.Floor(stat.Mean(levels, nil) + 0.5)
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: Blend(mean, float64(c.R), factor),
			G: Blend(mean, float64(c.G), factor),
			B: Blend(mean, float64(c.B), factor),
			A: c.A,
		}
	})
}

// smoothKernel is the 3x3 smoothing filter sharpness is measured against.
var smoothKernel = [9]float64{1, 1, 1, 1, 5, 1, 1, 1, 1}

// EnhanceSharpness extrapolates away from a smoothed copy. Border pixels are kept as-is.
func EnhanceSharpness(img image.Image, factor float64) *image.NRGBA {
	src := imaging.Clone(img)
	smooth := imaging.Convolve3x3(src, smoothKernel, &imaging.ConvolveOptions{Normalize: true})
	out := imaging.Clone(src)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*out.Stride + x*4
			for c := 0; c < 3; c++ {
				out.Pix[i+c] = Blend(float64(smooth.Pix[i+c]), float64(src.Pix[i+c]), factor)
			}
		}
	}
	return out
}

// Blend returns base + factor*(v-base) clamped to a byte.
func Blend(base, v, factor float64) uint8 {
	r := base + factor*(v-base)
	switch {
	case r <= 0:
		return 0
	case r >= 255:
		return 255
	default:
		return uint8(r + 0.5)
	}
}
