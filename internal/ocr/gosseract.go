//go:build gosseract

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Engine recognizes text in-process through libtesseract instead of shelling out.
// Build with -tags gosseract; requires the tesseract and leptonica headers.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	client *gosseract.Client
}

func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if len(cfg.PageSegModes) == 0 {
		cfg.PageSegModes = []int{6, 4}
	}
	client := gosseract.NewClient()
	if cfg.TessdataDir != "" {
		client.SetTessdataPrefix(cfg.TessdataDir)
	}
	if err := client.SetLanguage(cfg.TesseractLang); err != nil {
		client.Close()
		return nil, fmt.Errorf("set OCR language: %w", err)
	}
	return &Engine{cfg: cfg, logger: logger, client: client}, nil
}

// Close releases OCR resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Recognize mirrors Extractor.Recognize. The client is not safe for concurrent use.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (Result, error) {
	start := time.Now()
	res := Result{Method: "libtesseract", Language: e.cfg.TesseractLang}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Preprocess(img), imaging.PNG); err != nil {
		return res, fmt.Errorf("encode image: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return res, fmt.Errorf("set image: %w", err)
	}

	var parts []string
	for _, psm := range e.cfg.PageSegModes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := e.client.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
			res.Warnings = append(res.Warnings, err.Error())
			continue
		}
		txt, err := e.client.Text()
		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
			continue
		}
		res.Modes = append(res.Modes, psm)
		parts = append(parts, txt)
	}
	res.Duration = time.Since(start)
	if len(parts) == 0 {
		return res, fmt.Errorf("libtesseract produced no output: %s", strings.Join(res.Warnings, "; "))
	}
	res.Text = Normalize(strings.Join(parts, " "))
	res.Confidence = heuristicConfidence(res.Text)
	e.logger.Debug("ocr.libtesseract.ok", "modes", res.Modes, "chars", len(res.Text), "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// NewRecognizer returns the in-process engine.
func NewRecognizer(cfg Config, logger *slog.Logger) (Recognizer, func() error, error) {
	e, err := NewEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return e, e.Close, nil
}
