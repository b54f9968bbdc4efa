//go:build !gosseract

package ocr

import "log/slog"

// NewRecognizer returns the tesseract CLI extractor. The close func is a no-op.
func NewRecognizer(cfg Config, logger *slog.Logger) (Recognizer, func() error, error) {
	return NewExtractor(cfg, logger), func() error { return nil }, nil
}
