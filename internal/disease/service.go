package disease

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/imagequality"
	"github.com/joseph-ayodele/farm-advisor/internal/predictor"
	"github.com/joseph-ayodele/farm-advisor/internal/recommend"
)

const (
	msgUnreadable  = "Could not read the image. Please upload a valid JPG or PNG file."
	msgUnavailable = "The disease model is not available right now."
	msgFailed      = "Prediction failed. Please try again."
)

// TopAlternatives is how many ranked classes a result carries.
const TopAlternatives = 5

// Classifier is the disease model boundary.
type Classifier interface {
	PredictRaw(ctx context.Context, t predictor.Tensor) ([]float64, error)
	Labels() []string
	Available() bool
}

// QualityGate judges whether a photo is fit to classify.
type QualityGate interface {
	Check(img image.Image) imagequality.Verdict
}

// Alternative is one ranked class. Confidence is a percentage.
type Alternative struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// Result is a diagnosis. Confidence values are percentages in [0,100], rounded
// to two places only when rendered.
type Result struct {
	Disease         string
	Confidence      float64
	Plant           string
	Recommendations []string
	QualityCheck    string
	Alternatives    []Alternative

	Label    string
	Duration time.Duration
}

func (r Result) MarshalJSON() ([]byte, error) {
	alts := make([]Alternative, len(r.Alternatives))
	for i, a := range r.Alternatives {
		alts[i] = Alternative{Disease: a.Disease, Confidence: recommend.Round2(a.Confidence)}
	}
	return json.Marshal(struct {
		Disease         string        `json:"disease"`
		Confidence      float64       `json:"confidence"`
		Plant           string        `json:"plant"`
		Recommendations []string      `json:"recommendations"`
		QualityCheck    string        `json:"quality_check"`
		Alternatives    []Alternative `json:"alternatives"`
	}{r.Disease, recommend.Round2(r.Confidence), r.Plant, r.Recommendations, r.QualityCheck, alts})
}

type Service struct {
	model  Classifier
	gate   QualityGate
	strict bool
	logger *slog.Logger
}

type Option func(*Service)

// WithQualityGate replaces the default gate.
func WithQualityGate(g QualityGate) Option {
	return func(s *Service) { s.gate = g }
}

// WithStrictQuality rejects photos that fail the gate instead of annotating them.
func WithStrictQuality(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

func NewService(model Classifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		model:  model,
		gate:   imagequality.NewGate(imagequality.DefaultThresholds),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Available() bool { return s.model != nil && s.model.Available() }

// Predict classifies the photo in data.
func (s *Service) Predict(ctx context.Context, data []byte) (Result, error) {
	if !s.Available() {
		return Result{}, common.ModelUnavailableError(msgUnavailable, nil)
	}
	start := time.Now()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("disease.predict.decode_failed", "bytes", len(data), "error", err)
		return Result{}, common.InputError(msgUnreadable, fmt.Errorf("decode image: %w", err))
	}

	verdict := s.gate.Check(img)
	if !verdict.Passed && s.strict {
		s.logger.Info("disease.predict.rejected", "reason", verdict.Reason)
		return Result{}, common.InputError(fmt.Sprintf("The photo is %s. Please retake it.", verdict.Reason), nil)
	}

	probs, err := s.model.PredictRaw(ctx, predictor.PrepareImage(img))
	if err != nil {
		s.logger.Error("disease.predict.failed", "error", err)
		return Result{}, err
	}
	labels := s.model.Labels()
	if len(probs) != len(labels) || len(probs) == 0 {
		err := fmt.Errorf("got %d probabilities for %d labels", len(probs), len(labels))
		s.logger.Error("disease.predict.failed", "error", err)
		return Result{}, common.PredictionError(msgFailed, err)
	}

	ranked := rank(probs)
	best := ranked[0]
	plant, name := ParseLabel(labels[best])
	res := Result{
		Disease:         name,
		Confidence:      probs[best] * 100,
		Plant:           plant,
		Recommendations: recommend.ForDisease(name),
		QualityCheck:    verdict.Reason,
		Label:           labels[best],
	}
	for _, i := range ranked[:min(TopAlternatives, len(ranked))] {
		_, alt := ParseLabel(labels[i])
		res.Alternatives = append(res.Alternatives, Alternative{Disease: alt, Confidence: probs[i] * 100})
	}
	res.Duration = time.Since(start)

	s.logger.Info("disease.predict.ok",
		"label", res.Label,
		"confidence", math.Round(res.Confidence*100)/100,
		"quality", verdict.Reason,
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// rank orders class indices by descending probability; ties keep label order.
func rank(probs []float64) []int {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })
	return idx
}
