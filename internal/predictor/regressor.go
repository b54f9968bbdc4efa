package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/farm-advisor/internal/common"
)

// YieldFeatureVector is the exact input of the yield regressor, in column order
// [Year, rainfall, pesticides, temperature, Area, Item].
type YieldFeatureVector struct {
	Year           int     `json:"year"`
	RainfallMM     float64 `json:"rainfall_mm"`
	PesticideProxy float64 `json:"pesticide_proxy"`
	TemperatureC   float64 `json:"temperature_c"`
	Region         string  `json:"region"`
	Crop           string  `json:"crop"`
}

func (f YieldFeatureVector) numeric() []float64 {
	return []float64{float64(f.Year), f.RainfallMM, f.PesticideProxy, f.TemperatureC}
}

func (f YieldFeatureVector) categorical() []string {
	return []string{f.Region, f.Crop}
}

// ErrUnknownCategory is returned for a region or crop the model was not fitted on.
var ErrUnknownCategory = errors.New("unknown category")

// RegressorArtifact is the JSON export of the fitted preprocessing transformer
// (standard scaling of the numeric columns, one-hot encoding of the categorical
// ones) and the decision tree regressor arrays. scripts/export_yield_model.py
// writes it from the trained pickles.
type RegressorArtifact struct {
	Format      string          `json:"format"`
	TargetUnit  string          `json:"target_unit"`
	Numeric     NumericScaler   `json:"numeric"`
	Categorical []OneHotColumn  `json:"categorical"`
	Tree        DecisionTree    `json:"tree"`
	Meta        json.RawMessage `json:"meta,omitempty"`
}

type NumericScaler struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

type OneHotColumn struct {
	Column     string   `json:"column"`
	Categories []string `json:"categories"`
	DropFirst  bool     `json:"drop_first"`
}

func (c OneHotColumn) width() int {
	if c.DropFirst {
		return len(c.Categories) - 1
	}
	return len(c.Categories)
}

// DecisionTree mirrors the node arrays of a fitted tree. A node is a leaf when
// ChildrenLeft is -1; otherwise samples with x[Feature] <= Threshold go left.
type DecisionTree struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	Value         []float64 `json:"value"`
}

const regressorFormat = "yield-dtr/v1"

var regressorSchema = map[string]any{
	"type":     "object",
	"required": []string{"format", "numeric", "categorical", "tree"},
	"properties": map[string]any{
		"format":      map[string]any{"const": regressorFormat},
		"target_unit": map[string]any{"type": "string"},
		"numeric": map[string]any{
			"type":     "object",
			"required": []string{"mean", "scale"},
			"properties": map[string]any{
				"mean":  map[string]any{"type": "array", "items": map[string]any{"type": "number"}, "minItems": 4, "maxItems": 4},
				"scale": map[string]any{"type": "array", "items": map[string]any{"type": "number"}, "minItems": 4, "maxItems": 4},
			},
		},
		"categorical": map[string]any{
			"type":     "array",
			"minItems": 2,
			"maxItems": 2,
			"items": map[string]any{
				"type":     "object",
				"required": []string{"categories"},
				"properties": map[string]any{
					"categories": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
					"drop_first": map[string]any{"type": "boolean"},
				},
			},
		},
		"tree": map[string]any{
			"type":     "object",
			"required": []string{"children_left", "children_right", "feature", "threshold", "value"},
		},
	},
}

var compiledRegressorSchema *jsonschema.Schema

func init() {
	s, err := common.CompileSchema("yield-dtr.json", regressorSchema)
	if err != nil {
		panic(err)
	}
	compiledRegressorSchema = s
}

// ParseRegressorArtifact validates and decodes an artifact.
func ParseRegressorArtifact(data []byte) (*RegressorArtifact, error) {
	if err := common.ValidateJSON(compiledRegressorSchema, data); err != nil {
		return nil, err
	}
	var a RegressorArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *RegressorArtifact) width() int {
	w := len(a.Numeric.Mean)
	for _, c := range a.Categorical {
		w += c.width()
	}
	return w
}

// check verifies what the schema cannot: array lengths agree and every node index is in range.
func (a *RegressorArtifact) check() error {
	t := a.Tree
	n := len(t.ChildrenLeft)
	if n == 0 {
		return errors.New("tree has no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("tree arrays disagree in length (%d nodes)", n)
	}
	width := a.width()
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == -1 {
			if r != -1 {
				return fmt.Errorf("node %d: half leaf", i)
			}
			continue
		}
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d: child out of range", i)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= width {
			return fmt.Errorf("node %d: feature %d outside %d columns", i, t.Feature[i], width)
		}
	}
	return nil
}

// Transform applies the scaler and encoder, producing the tree's input row.
func (a *RegressorArtifact) Transform(f YieldFeatureVector) ([]float64, error) {
	out := make([]float64, 0, a.width())
	for i, v := range f.numeric() {
		scale := a.Numeric.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out = append(out, (v-a.Numeric.Mean[i])/scale)
	}
	for i, v := range f.categorical() {
		col := a.Categorical[i]
		idx := -1
		for j, c := range col.Categories {
			if c == v {
				idx = j
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s %q", ErrUnknownCategory, col.Column, v)
		}
		onehot := make([]float64, col.width())
		if col.DropFirst {
			idx--
		}
		if idx >= 0 {
			onehot[idx] = 1
		}
		out = append(out, onehot...)
	}
	return out, nil
}

// Predict walks the tree for one transformed row. Inputs are compared at
// float32 precision, the precision the tree was fitted and thresholded at.
func (t DecisionTree) Predict(x []float64) float64 {
	node := 0
	for t.ChildrenLeft[node] != -1 {
		if float64(float32(x[t.Feature[node]])) <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// Categories lists the known values of a categorical column ("Area" or "Item").
func (a *RegressorArtifact) Categories(column string) []string {
	for _, c := range a.Categorical {
		if c.Column == column {
			return append([]string(nil), c.Categories...)
		}
	}
	return nil
}

// YieldRegressor serves raw predictions in the model's native unit (hg/ha).
type YieldRegressor struct {
	cap      *Capability
	path     string
	artifact *RegressorArtifact
	logger   *slog.Logger
}

// OpenYieldRegressor loads the artifact at path once. A failed load leaves the
// regressor unavailable for the life of the process; it never returns an error.
func OpenYieldRegressor(path string, logger *slog.Logger) *YieldRegressor {
	if logger == nil {
		logger = slog.Default()
	}
	r := &YieldRegressor{cap: NewCapability("yield"), path: path, logger: logger}
	err := r.cap.Load(func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		a, err := ParseRegressorArtifact(data)
		if err != nil {
			return err
		}
		r.artifact = a
		return nil
	})
	if err != nil {
		logger.Error("predictor.yield.load_failed", "path", path, "error", r.cap.LoadError())
	} else {
		logger.Info("predictor.yield.ready", "path", path, "nodes", len(r.artifact.Tree.Value), "unit", r.artifact.TargetUnit)
	}
	return r
}

// NewYieldRegressor wraps an already parsed artifact.
func NewYieldRegressor(a *RegressorArtifact, logger *slog.Logger) *YieldRegressor {
	if logger == nil {
		logger = slog.Default()
	}
	r := &YieldRegressor{cap: NewCapability("yield"), artifact: a, logger: logger}
	_ = r.cap.Load(func() error {
		if a == nil {
			return errors.New("nil artifact")
		}
		return a.check()
	})
	return r
}

func (r *YieldRegressor) Capability() *Capability { return r.cap }

func (r *YieldRegressor) Available() bool { return r.cap.Available() }

// Artifact returns the loaded artifact, nil when unavailable.
func (r *YieldRegressor) Artifact() *RegressorArtifact {
	if !r.cap.Available() {
		return nil
	}
	return r.artifact
}

// PredictRaw returns the model output for one feature vector.
func (r *YieldRegressor) PredictRaw(ctx context.Context, f YieldFeatureVector) (float64, error) {
	if err := r.cap.Err(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	x, err := r.artifact.Transform(f)
	if err != nil {
		r.logger.Warn("predictor.yield.transform_failed", "region", f.Region, "crop", f.Crop, "error", err)
		return 0, common.PredictionError("The model does not know this crop or region.", err)
	}
	return r.artifact.Tree.Predict(x), nil
}
