package yield

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/farm-advisor/internal/predictor"
	"github.com/joseph-ayodele/farm-advisor/internal/recommend"
)

// Regressor is the raw yield model.
type Regressor interface {
	PredictRaw(ctx context.Context, f predictor.YieldFeatureVector) (float64, error)
	Available() bool
}

// Result keeps full precision; values are rounded to two decimals only when rendered.
type Result struct {
	YieldPerHectare float64
	TotalYield      float64
	Recommendations []string
	Features        predictor.YieldFeatureVector
	RawPrediction   float64
}

type resultJSON struct {
	YieldPerHectare float64      `json:"yield_per_hectare"`
	TotalYield      float64      `json:"total_yield"`
	Unit            string       `json:"unit"`
	Recommendations []string     `json:"recommendations"`
	Features        featuresJSON `json:"features"`
}

type featuresJSON struct {
	predictor.YieldFeatureVector
	PesticideProxyNote string `json:"pesticide_proxy_note"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		YieldPerHectare: recommend.Round2(r.YieldPerHectare),
		TotalYield:      recommend.Round2(r.TotalYield),
		Unit:            "quintals",
		Recommendations: r.Recommendations,
		Features:        featuresJSON{YieldFeatureVector: r.Features, PesticideProxyNote: PesticideProxyNote},
	})
}

type Service struct {
	model  Regressor
	logger *slog.Logger
}

func NewService(model Regressor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{model: model, logger: logger}
}

// Available reports whether the underlying model loaded.
func (s *Service) Available() bool { return s.model.Available() }

// Predict validates q, runs the regressor and attaches advice.
func (s *Service) Predict(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	fv := BuildFeatures(q)
	raw, err := s.model.PredictRaw(ctx, fv)
	if err != nil {
		s.logger.Error("yield.predict.failed", "crop", q.Crop, "region", q.Region, "error", err)
		return Result{}, err
	}
	perHa := ToQuintalsPerHectare(raw)
	total := perHa * q.AreaHectares
	res := Result{
		YieldPerHectare: perHa,
		TotalYield:      total,
		Recommendations: recommend.ForYield(q.conditions(), total),
		Features:        fv,
		RawPrediction:   raw,
	}
	s.logger.Info("yield.predict.ok",
		"crop", q.Crop,
		"item", fv.Crop,
		"region", q.Region,
		"yield_q_per_ha", recommend.Round2(perHa),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
