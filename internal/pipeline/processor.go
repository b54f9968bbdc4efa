package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/farm-advisor/constants"
	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/disease"
	"github.com/joseph-ayodele/farm-advisor/internal/imagequality"
	"github.com/joseph-ayodele/farm-advisor/internal/repository"
	"github.com/joseph-ayodele/farm-advisor/internal/soil"
	"github.com/joseph-ayodele/farm-advisor/internal/yield"
)

type SoilScanner interface {
	Scan(ctx context.Context, data []byte) (soil.ScanResult, error)
}

type YieldPredictor interface {
	Predict(ctx context.Context, q yield.Query) (yield.Result, error)
}

type DiseasePredictor interface {
	Predict(ctx context.Context, data []byte) (disease.Result, error)
}

type QualityChecker interface {
	CheckBytes(data []byte) imagequality.Verdict
}

// Observer receives one call per finished inference. outcome is the lower-cased job status.
type Observer interface {
	ObserveInference(kind constants.InferenceKind, outcome string, elapsed time.Duration)
}

// Processor runs every inference through the journal: a RUNNING row is written
// first and advanced to OK, NO_VALUES or FAILED once the service returns.
type Processor struct {
	Logger   *slog.Logger
	Jobs     repository.InferenceJobRepository
	Soil     SoilScanner
	Yield    YieldPredictor
	Disease  DiseasePredictor
	Quality  QualityChecker
	Observer Observer
}

func NewProcessor(logger *slog.Logger, jobs repository.InferenceJobRepository, soil SoilScanner, yield YieldPredictor, disease DiseasePredictor, quality QualityChecker) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if quality == nil {
		quality = imagequality.NewGate(imagequality.DefaultThresholds)
	}
	return &Processor{Logger: logger, Jobs: jobs, Soil: soil, Yield: yield, Disease: disease, Quality: quality}
}

// imageInput is what the journal keeps about an uploaded image.
type imageInput struct {
	Name   string `json:"name,omitempty"`
	Bytes  int    `json:"bytes"`
	SHA256 string `json:"sha256"`
}

func describeImage(name string, data []byte) imageInput {
	sum := sha256.Sum256(data)
	return imageInput{Name: name, Bytes: len(data), SHA256: hex.EncodeToString(sum[:])}
}

// ScanSoil reads soil values from a report image. name is only journaled.
func (p *Processor) ScanSoil(ctx context.Context, name string, data []byte) (soil.ScanResult, uuid.UUID, error) {
	if p.Soil == nil {
		return soil.ScanResult{}, uuid.Nil, common.ModelUnavailableError("Soil report scanning is not configured.", common.ErrUnavailable)
	}
	return run(ctx, p, constants.KindSoilScan, describeImage(name, data),
		func(ctx context.Context) (soil.ScanResult, error) { return p.Soil.Scan(ctx, data) },
		func(r soil.ScanResult) constants.JobStatus {
			if !r.Success {
				return constants.JobStatusNoValues
			}
			return constants.JobStatusOK
		})
}

// ScanSoilFile is ScanSoil for a file on disk, as used by the watch folder.
func (p *Processor) ScanSoilFile(ctx context.Context, path string) (soil.ScanResult, uuid.UUID, error) {
	if !constants.IsImageExt(filepath.Ext(path)) {
		return soil.ScanResult{}, uuid.Nil, common.InputError("Unsupported file type.", fmt.Errorf("%s: %w", path, common.ErrInvalidInput))
	}
	data, err := readLimited(path, constants.MaxUploadBytes)
	if err != nil {
		return soil.ScanResult{}, uuid.Nil, err
	}
	return p.ScanSoil(common.WithSource(ctx, "watch"), path, data)
}

func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > limit {
		return nil, common.InputError("The image is too large.", fmt.Errorf("%s exceeds %d bytes", path, limit))
	}
	return data, nil
}

// PredictYield runs the yield model for q.
func (p *Processor) PredictYield(ctx context.Context, q yield.Query) (yield.Result, uuid.UUID, error) {
	if p.Yield == nil {
		return yield.Result{}, uuid.Nil, common.ModelUnavailableError("The yield model is not available right now.", common.ErrUnavailable)
	}
	return run(ctx, p, constants.KindYield, q,
		func(ctx context.Context) (yield.Result, error) { return p.Yield.Predict(ctx, q) },
		okStatus[yield.Result])
}

// PredictDisease classifies a leaf photo.
func (p *Processor) PredictDisease(ctx context.Context, name string, data []byte) (disease.Result, uuid.UUID, error) {
	if p.Disease == nil {
		return disease.Result{}, uuid.Nil, common.ModelUnavailableError("The disease model is not available right now.", common.ErrUnavailable)
	}
	return run(ctx, p, constants.KindDisease, describeImage(name, data),
		func(ctx context.Context) (disease.Result, error) { return p.Disease.Predict(ctx, data) },
		okStatus[disease.Result])
}

// CheckQuality runs the image quality gate. A failing verdict is still an OK job.
func (p *Processor) CheckQuality(ctx context.Context, name string, data []byte) (imagequality.Verdict, uuid.UUID, error) {
	return run(ctx, p, constants.KindQuality, describeImage(name, data),
		func(context.Context) (imagequality.Verdict, error) { return p.Quality.CheckBytes(data), nil },
		okStatus[imagequality.Verdict])
}

func okStatus[T any](T) constants.JobStatus { return constants.JobStatusOK }

func run[T any](
	ctx context.Context,
	p *Processor,
	kind constants.InferenceKind,
	input any,
	fn func(context.Context) (T, error),
	status func(T) constants.JobStatus,
) (T, uuid.UUID, error) {
	start := time.Now()
	source := common.SourceFromContext(ctx)
	jobID := p.startJob(ctx, kind, source, input)

	out, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		p.Logger.Error("processor."+strings.ToLower(string(kind))+".failed",
			"job_id", jobID, "source", source, "err", err, "elapsed_ms", elapsed.Milliseconds())
		p.finishFailure(ctx, jobID, err)
		p.observe(kind, constants.JobStatusFailed, elapsed)
		return out, jobID, err
	}

	st := status(out)
	p.finish(ctx, jobID, st, out)
	p.observe(kind, st, elapsed)
	p.Logger.Info("processor."+strings.ToLower(string(kind))+".ok",
		"job_id", jobID, "source", source, "status", st, "elapsed_ms", elapsed.Milliseconds())
	return out, jobID, nil
}

// startJob journals the request. A journal outage is logged and the inference still runs.
func (p *Processor) startJob(ctx context.Context, kind constants.InferenceKind, source string, input any) uuid.UUID {
	if p.Jobs == nil {
		return uuid.Nil
	}
	job, err := p.Jobs.Start(ctx, kind, source, input)
	if err != nil {
		p.Logger.Warn("processor.journal.start_failed", "kind", kind, "err", err)
		return uuid.Nil
	}
	return job.ID
}

func (p *Processor) finish(ctx context.Context, jobID uuid.UUID, st constants.JobStatus, out any) {
	if p.Jobs == nil || jobID == uuid.Nil {
		return
	}
	var err error
	switch st {
	case constants.JobStatusNoValues:
		err = p.Jobs.FinishNoValues(ctx, jobID, out)
	default:
		err = p.Jobs.FinishSuccess(ctx, jobID, out)
	}
	if err != nil {
		p.Logger.Warn("processor.journal.finish_failed", "job_id", jobID, "err", err)
	}
}

func (p *Processor) finishFailure(ctx context.Context, jobID uuid.UUID, cause error) {
	if p.Jobs == nil || jobID == uuid.Nil {
		return
	}
	msg := cause.Error()
	if ae, ok := common.AsAppError(cause); ok {
		msg = ae.Code + ": " + ae.Message
	}
	if err := p.Jobs.FinishFailure(context.WithoutCancel(ctx), jobID, msg); err != nil {
		p.Logger.Warn("processor.journal.finish_failed", "job_id", jobID, "err", err)
	}
}

func (p *Processor) observe(kind constants.InferenceKind, st constants.JobStatus, elapsed time.Duration) {
	if p.Observer != nil {
		p.Observer.ObserveInference(kind, strings.ToLower(string(st)), elapsed)
	}
}
