package ocr

import (
	"context"
	"image"
)

// Recognizer is implemented by Extractor (tesseract CLI) and, with -tags gosseract, Engine.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (Result, error)
}
