package ocr

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/joseph-ayodele/farm-advisor/internal/utils"
)

const (
	ocrContrast  = 2.0
	ocrSharpness = 2.0
)

// Preprocess prepares a report photo for tesseract: grayscale, contrast doubled
// around the mean level, then sharpness doubled.
func Preprocess(img image.Image) *image.NRGBA {
	gray := imaging.Grayscale(img)
	return utils.EnhanceSharpness(utils.EnhanceContrast(gray, ocrContrast), ocrSharpness)
}
