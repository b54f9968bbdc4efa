package soil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/ocr"
)

// Result messages shown to the farmer.
const (
	MsgExtracted  = "Values extracted successfully"
	MsgNoValues   = "No values found. Try clearer image."
	MsgUnreadable = "Could not read the image. Please upload a valid JPG or PNG file."
	MsgOCRFailed  = "Text recognition failed. Please try again."
)

// TextRecognizer turns a report image into text.
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) (ocr.Result, error)
}

// ScanResult is the outcome of scanning a report image. Success=false with a nil
// error means the image was read but no value could be found.
type ScanResult struct {
	Reading
	Success bool   `json:"success"`
	Message string `json:"message"`

	Text       string        `json:"-"`
	Confidence float32       `json:"-"`
	Duration   time.Duration `json:"-"`
}

type Scanner struct {
	ocr    TextRecognizer
	logger *slog.Logger
}

func NewScanner(rec TextRecognizer, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{ocr: rec, logger: logger}
}

// Scan decodes the image bytes, runs OCR and extracts soil values.
func (s *Scanner) Scan(ctx context.Context, data []byte) (ScanResult, error) {
	start := time.Now()
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("soil.scan.decode_failed", "bytes", len(data), "error", err)
		return ScanResult{Message: MsgUnreadable}, common.InputError(MsgUnreadable, fmt.Errorf("decode image: %w", err))
	}

	res, err := s.ocr.Recognize(ctx, img)
	if err != nil {
		s.logger.Error("soil.scan.ocr_failed", "format", format, "error", err)
		return ScanResult{Message: MsgOCRFailed}, common.UpstreamError(MsgOCRFailed, err)
	}

	reading, ok := ExtractReading(res.Text)
	out := ScanResult{
		Reading:    reading,
		Success:    ok,
		Text:       res.Text,
		Confidence: res.Confidence,
		Duration:   time.Since(start),
	}
	if ok {
		out.Message = MsgExtracted
	} else {
		out.Message = MsgNoValues
	}
	s.logger.Info("soil.scan.done",
		"format", format,
		"found", reading.Found(),
		"ocr_confidence", res.Confidence,
		"elapsed_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}
