package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joseph-ayodele/farm-advisor/internal/common"
)

// ClassifierConfig locates the class-label list and the model server.
type ClassifierConfig struct {
	ClassesPath string
	// ServingURL is the base URL of a TensorFlow Serving compatible REST endpoint.
	ServingURL string
	ModelName  string
	Timeout    time.Duration
	// ProbeRetries bounds the readiness probe attempts at startup.
	ProbeRetries int
	HTTPClient   *http.Client
}

// DiseaseClassifier returns per-class probabilities for a prepared image.
type DiseaseClassifier struct {
	cap     *Capability
	cfg     ClassifierConfig
	labels  []string
	http    *http.Client
	predict string
	logger  *slog.Logger
}

// OpenDiseaseClassifier loads the labels and probes the model server once.
// Any failure leaves the classifier unavailable for the life of the process.
func OpenDiseaseClassifier(ctx context.Context, cfg ClassifierConfig, logger *slog.Logger) *DiseaseClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "plant_disease"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	c := &DiseaseClassifier{cap: NewCapability("disease"), cfg: cfg, http: hc, logger: logger}

	err := c.cap.Load(func() error {
		labels, err := LoadLabels(cfg.ClassesPath)
		if err != nil {
			return err
		}
		if cfg.ServingURL == "" {
			return errors.New("no model serving URL configured")
		}
		base := strings.TrimRight(cfg.ServingURL, "/") + "/v1/models/" + url.PathEscape(cfg.ModelName)
		if err := c.probe(ctx, base); err != nil {
			return err
		}
		c.labels = labels
		c.predict = base + ":predict"
		return nil
	})
	if err != nil {
		logger.Error("predictor.disease.load_failed", "classes", cfg.ClassesPath, "url", cfg.ServingURL, "error", c.cap.LoadError())
	} else {
		logger.Info("predictor.disease.ready", "classes", len(c.labels), "model", cfg.ModelName)
	}
	return c
}

// LoadLabels reads a JSON array of "Plant___Disease" class names.
func LoadLabels(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classes: %w", err)
	}
	var labels []string
	if err := json.Unmarshal(b, &labels); err != nil {
		return nil, fmt.Errorf("decode classes: %w", err)
	}
	if len(labels) == 0 {
		return nil, errors.New("class list is empty")
	}
	return labels, nil
}

type modelStatus struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

// probe waits for the model server to report an AVAILABLE version.
func (c *DiseaseClassifier) probe(ctx context.Context, base string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.cfg.Timeout
	retries := c.cfg.ProbeRetries
	if retries <= 0 {
		retries = 3
	}
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Warn("predictor.disease.probe_failed", "url", base, "error", err)
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("model %q not found on server", c.cfg.ModelName))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("model status: http %d", resp.StatusCode)
		}
		var st modelStatus
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return backoff.Permanent(fmt.Errorf("decode model status: %w", err))
		}
		for _, v := range st.ModelVersionStatus {
			if v.State == "AVAILABLE" {
				return nil
			}
		}
		return errors.New("no model version available yet")
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
}

func (c *DiseaseClassifier) Capability() *Capability { return c.cap }

func (c *DiseaseClassifier) Available() bool { return c.cap.Available() }

// Labels returns the class names in output order.
func (c *DiseaseClassifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

type predictRequest struct {
	Instances []Tensor `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

const predictionFailedMsg = "Prediction failed. Please try again."

// PredictRaw returns one probability per label.
func (c *DiseaseClassifier) PredictRaw(ctx context.Context, t Tensor) ([]float64, error) {
	if err := c.cap.Err(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(predictRequest{Instances: []Tensor{t}})
	if err != nil {
		return nil, common.PredictionError(predictionFailedMsg, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.predict, bytes.NewReader(body))
	if err != nil {
		return nil, common.PredictionError(predictionFailedMsg, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("predictor.disease.request_failed", "error", err)
		return nil, common.PredictionError(predictionFailedMsg, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, common.PredictionError(predictionFailedMsg, err)
	}
	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, common.PredictionError(predictionFailedMsg, fmt.Errorf("decode response (http %d): %w", resp.StatusCode, err))
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return nil, common.PredictionError(predictionFailedMsg, fmt.Errorf("model server http %d: %s", resp.StatusCode, out.Error))
	}
	if len(out.Predictions) != 1 || len(out.Predictions[0]) != len(c.labels) {
		return nil, common.PredictionError(predictionFailedMsg, fmt.Errorf("expected 1x%d predictions", len(c.labels)))
	}
	for i, p := range out.Predictions[0] {
		if math.IsNaN(p) || p < 0 || p > 1 {
			c.logger.Error("predictor.disease.bad_probability", "index", i, "value", p)
			return nil, common.PredictionError(predictionFailedMsg, fmt.Errorf("prediction %d is %v, want a probability in [0,1]", i, p))
		}
	}
	c.logger.Debug("predictor.disease.ok", "elapsed_ms", time.Since(start).Milliseconds())
	return out.Predictions[0], nil
}
