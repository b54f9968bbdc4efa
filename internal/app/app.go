// Package app assembles the advisor's services from configuration. Both the
// daemon and the CLI build on it.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/disease"
	"github.com/joseph-ayodele/farm-advisor/internal/export"
	"github.com/joseph-ayodele/farm-advisor/internal/imagequality"
	"github.com/joseph-ayodele/farm-advisor/internal/llm"
	"github.com/joseph-ayodele/farm-advisor/internal/llm/gemini"
	"github.com/joseph-ayodele/farm-advisor/internal/ocr"
	processor "github.com/joseph-ayodele/farm-advisor/internal/pipeline"
	"github.com/joseph-ayodele/farm-advisor/internal/predictor"
	repo "github.com/joseph-ayodele/farm-advisor/internal/repository"
	"github.com/joseph-ayodele/farm-advisor/internal/server"
	"github.com/joseph-ayodele/farm-advisor/internal/soil"
	"github.com/joseph-ayodele/farm-advisor/internal/weather"
	"github.com/joseph-ayodele/farm-advisor/internal/yield"
)

// Options toggles the optional parts of the assembly.
type Options struct {
	// Journal opens the database and records every inference.
	Journal bool
	// StrictQuality rejects disease photos that fail the quality gate.
	StrictQuality bool
}

type App struct {
	Config *common.Config
	Logger *slog.Logger

	DB         *repo.DB
	Jobs       repo.InferenceJobRepository
	Regressor  *predictor.YieldRegressor
	Classifier *predictor.DiseaseClassifier
	Weather    *weather.Client
	Advisor    *weather.Advisor
	Exporter   *export.Service
	Metrics    *server.Metrics
	Processor  *processor.Processor

	closers []func() error
}

// New loads both models once, connects the journal when asked and wires the processor.
// Model load failures are not errors: the capability stays unavailable.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: server.NewMetrics()}

	if opts.Journal {
		db, err := server.ConnectDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		a.Jobs = repo.NewInferenceJobRepository(db, logger)
		a.Exporter = export.NewService(a.Jobs, logger)
	}

	recognizer, closeOCR, err := ocr.NewRecognizer(ocr.Config{
		Tesseract:        cfg.OCR.Tesseract,
		TesseractLang:    cfg.OCR.Language,
		TessdataDir:      cfg.OCR.TessdataDir,
		PageSegModes:     cfg.OCR.PageSegModes,
		ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
	}, logger)
	if err != nil {
		a.Close()
		return nil, common.NewAppError(common.CodeConfig, "cannot start OCR", err)
	}
	a.closers = append(a.closers, closeOCR)

	a.Regressor = predictor.OpenYieldRegressor(cfg.Models.YieldModelPath, logger)
	a.Classifier = predictor.OpenDiseaseClassifier(ctx, predictor.ClassifierConfig{
		ClassesPath: cfg.Models.DiseaseClassesPath,
		ServingURL:  cfg.Models.DiseaseServingURL,
		ModelName:   cfg.Models.DiseaseModelName,
		Timeout:     cfg.Models.DiseaseTimeout,
	}, logger)
	for _, c := range a.Capabilities() {
		a.Metrics.SetCapability(c.Name(), c.Available())
	}

	gate := imagequality.NewGate(imagequality.DefaultThresholds)
	a.Processor = processor.NewProcessor(logger,
		a.Jobs,
		soil.NewScanner(recognizer, logger),
		yield.NewService(a.Regressor, logger),
		disease.NewService(a.Classifier, logger, disease.WithQualityGate(gate), disease.WithStrictQuality(opts.StrictQuality)),
		gate,
	)
	a.Processor.Observer = a.Metrics

	a.wireWeather(ctx)
	return a, nil
}

func (a *App) wireWeather(ctx context.Context) {
	cfg := a.Config
	if cfg.Weather.APIKey == "" {
		a.Logger.Warn("weather.disabled", "reason", "OPENWEATHER_API_KEY not set")
		return
	}
	a.Weather = weather.NewClient(weather.ClientConfig{
		APIKey:          cfg.Weather.APIKey,
		BaseURL:         cfg.Weather.BaseURL,
		Timeout:         cfg.Weather.Timeout,
		BreakerFailures: cfg.Weather.BreakerFailures,
		BreakerOpen:     cfg.Weather.BreakerOpen,
		MaxRetries:      cfg.Weather.MaxRetries,
	}, a.Logger)

	var gen llm.Generator
	g, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, a.Logger)
	switch {
	case errors.Is(err, gemini.ErrNoAPIKey):
		a.Logger.Warn("llm.disabled", "reason", "GEMINI_API_KEY not set; serving fallback advice")
	case err != nil:
		a.Logger.Error("llm.init_failed", "error", err)
	default:
		gen = g
	}
	a.Advisor = weather.NewAdvisor(a.Weather, gen, cfg.Weather.CacheTTL, a.Logger)
}

func (a *App) Capabilities() []*predictor.Capability {
	return []*predictor.Capability{a.Regressor.Capability(), a.Classifier.Capability()}
}

// Health builds the readiness reporter for /healthz.
func (a *App) Health() *server.Health {
	h := &server.Health{Capabilities: a.Capabilities(), Metrics: a.Metrics}
	if a.DB != nil {
		h.DB = a.DB
	}
	if a.Weather != nil {
		h.Weather = a.Weather
	}
	return h
}

// HTTPDeps returns the JSON API wiring. Unconfigured optional parts stay nil.
func (a *App) HTTPDeps() server.HTTPDeps {
	d := server.HTTPDeps{
		Inference: a.Processor,
		Health:    a.Health(),
		Metrics:   a.Metrics,
		Logger:    a.Logger,
	}
	if a.Advisor != nil {
		d.Weather = a.Advisor
	}
	if a.Jobs != nil {
		d.History = a.Jobs
		d.Exporter = a.Exporter
	}
	return d
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("app.close_failed", "error", err)
		}
	}
	a.closers = nil
}
