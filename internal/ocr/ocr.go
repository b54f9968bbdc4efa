// Package ocr recognizes text in soil report images with tesseract.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string

	// PageSegModes are run in order and their outputs concatenated.
	// Mode 6 reads a uniform block, mode 4 a single column of varying sizes.
	PageSegModes []int

	EnableTSVConfidence bool

	ArtifactCacheDir string
}

type Result struct {
	Text       string
	Method     string
	Language   string
	Modes      []int
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type Option func(*Extractor)

// WithRunner swaps the command runner, used by tests.
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if len(cfg.PageSegModes) == 0 {
		cfg.PageSegModes = []int{6, 4}
	}
	if cfg.ArtifactCacheDir == "" {
		cfg.ArtifactCacheDir = os.TempDir()
	}
	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Recognize preprocesses img, writes it to a temporary PNG and runs tesseract once per page segmentation mode.
func (e *Extractor) Recognize(ctx context.Context, img image.Image) (Result, error) {
	start := time.Now()
	res := Result{Method: "tesseract-cli", Language: e.cfg.TesseractLang}

	path, cleanup, err := e.writeArtifact(Preprocess(img))
	if err != nil {
		return res, err
	}
	defer cleanup()

	var parts []string
	var errs []error
	for _, psm := range e.cfg.PageSegModes {
		txt, warn, err := e.tesseractOCR(ctx, path, psm)
		res.Warnings = append(res.Warnings, warn...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res.Modes = append(res.Modes, psm)
		parts = append(parts, txt)
	}
	res.Duration = time.Since(start)
	if len(parts) == 0 {
		e.logger.Error("ocr.tesseract.failed", "modes", e.cfg.PageSegModes, "error", errors.Join(errs...))
		return res, fmt.Errorf("tesseract produced no output: %w", errors.Join(errs...))
	}

	res.Text = Normalize(strings.Join(parts, " "))
	res.Confidence = e.confidence(ctx, path, res.Text, &res.Warnings)
	e.logger.Debug("ocr.tesseract.ok",
		"modes", res.Modes,
		"chars", len(res.Text),
		"confidence", res.Confidence,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// RecognizeFile opens an image from disk and recognizes it.
func (e *Extractor) RecognizeFile(ctx context.Context, path string) (Result, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open image: %w", err)
	}
	return e.Recognize(ctx, img)
}

func (e *Extractor) writeArtifact(img image.Image) (string, func(), error) {
	if err := os.MkdirAll(e.cfg.ArtifactCacheDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("artifact dir: %w", err)
	}
	f, err := os.CreateTemp(e.cfg.ArtifactCacheDir, "soil-ocr-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("artifact file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("encode artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close artifact: %w", err)
	}
	return f.Name(), cleanup, nil
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string, psm int) (string, []string, error) {
	// tesseract <file> stdout -l <lang> --psm <n>
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang, "--psm", strconv.Itoa(psm)}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract psm %d: %w", psm, err)
	}
	return string(out), nil, nil
}

func (e *Extractor) confidence(ctx context.Context, path, txt string, warnings *[]string) float32 {
	heurConf := heuristicConfidence(txt)
	if !e.cfg.EnableTSVConfidence {
		return heurConf
	}
	ocrConf, err := e.tesseractTSVConfidence(ctx, path)
	if err != nil {
		*warnings = append(*warnings, err.Error())
		return heurConf
	}
	if ocrConf <= 0 {
		return heurConf
	}
	// weight OCR higher when present
	conf := 0.7*ocrConf + 0.3*heurConf
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (e *Extractor) tesseractTSVConfidence(ctx context.Context, path string) (float32, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang, "--psm", strconv.Itoa(e.cfg.PageSegModes[0])}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, _, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return 0, fmt.Errorf("tesseract TSV: %w", err)
	}
	return meanTSVConfidence(string(out)), nil
}

// meanTSVConfidence averages the conf column (11th, before text) of tesseract TSV output, skipping the header.
func meanTSVConfidence(tsv string) float32 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || len(ln) == 0 {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := strings.TrimSpace(cols[10])
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float32(sum / n / 100.0)
}
