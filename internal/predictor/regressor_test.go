package predictor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/farm-advisor/internal/common"
)

func openFixture(t *testing.T) *YieldRegressor {
	t.Helper()
	r := OpenYieldRegressor(filepath.Join("testdata", "yield_model.json"), nil)
	require.True(t, r.Available(), "fixture loads: %v", r.Capability().LoadError())
	return r
}

func TestYieldRegressorPredict(t *testing.T) {
	r := openFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		fv   YieldFeatureVector
		want float64
	}{
		{"dry rice", YieldFeatureVector{Year: 2020, RainfallMM: 554.9, PesticideProxy: 14.5, TemperatureC: 20, Region: "India", Crop: "Rice, paddy"}, 40000},
		{"dry maize (dropped category)", YieldFeatureVector{Year: 2020, RainfallMM: 400, TemperatureC: 30, Region: "Albania", Crop: "Maize"}, 30000},
		{"wet anything", YieldFeatureVector{Year: 2020, RainfallMM: 1500, TemperatureC: 25, Region: "Kenya", Crop: "Wheat"}, 55000},
		{"threshold goes left", YieldFeatureVector{Year: 2020, RainfallMM: 1000, Region: "Kenya", Crop: "Wheat"}, 30000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.PredictRaw(ctx, tc.fv)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestYieldRegressorDeterministic(t *testing.T) {
	r := openFixture(t)
	fv := YieldFeatureVector{Year: 2020, RainfallMM: 554.9, PesticideProxy: 14.5, TemperatureC: 20, Region: "India", Crop: "Rice, paddy"}
	a, err := r.PredictRaw(context.Background(), fv)
	require.NoError(t, err)
	b, err := r.PredictRaw(context.Background(), fv)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestYieldRegressorUnknownCategory(t *testing.T) {
	r := openFixture(t)
	_, err := r.PredictRaw(context.Background(), YieldFeatureVector{Year: 2020, Region: "Atlantis", Crop: "Wheat"})
	require.ErrorIs(t, err, ErrUnknownCategory)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodePredictionFailed, ae.Code)
}

func TestYieldRegressorMissingArtifact(t *testing.T) {
	r := OpenYieldRegressor(filepath.Join(t.TempDir(), "missing.json"), nil)
	require.False(t, r.Available())
	require.Equal(t, Failed, r.Capability().State())
	require.Nil(t, r.Artifact())

	_, err := r.PredictRaw(context.Background(), YieldFeatureVector{})
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeModelUnavailable, ae.Code)
}

func TestParseRegressorArtifactRejectsBadInput(t *testing.T) {
	good, err := os.ReadFile(filepath.Join("testdata", "yield_model.json"))
	require.NoError(t, err)
	_, err = ParseRegressorArtifact(good)
	require.NoError(t, err)

	bad := map[string]string{
		"wrong format":  `{"format":"pickle","numeric":{"mean":[0,0,0,0],"scale":[1,1,1,1]},"categorical":[{"categories":["a"]},{"categories":["b"]}],"tree":{"children_left":[-1],"children_right":[-1],"feature":[-2],"threshold":[-2],"value":[1]}}`,
		"short scaler":  `{"format":"yield-dtr/v1","numeric":{"mean":[0],"scale":[1]},"categorical":[{"categories":["a"]},{"categories":["b"]}],"tree":{"children_left":[-1],"children_right":[-1],"feature":[-2],"threshold":[-2],"value":[1]}}`,
		"ragged tree":   `{"format":"yield-dtr/v1","numeric":{"mean":[0,0,0,0],"scale":[1,1,1,1]},"categorical":[{"categories":["a"]},{"categories":["b"]}],"tree":{"children_left":[-1],"children_right":[-1],"feature":[-2],"threshold":[-2],"value":[]}}`,
		"child loops":   `{"format":"yield-dtr/v1","numeric":{"mean":[0,0,0,0],"scale":[1,1,1,1]},"categorical":[{"categories":["a"]},{"categories":["b"]}],"tree":{"children_left":[0,-1],"children_right":[1,-1],"feature":[0,-2],"threshold":[0,-2],"value":[1,2]}}`,
		"feature range": `{"format":"yield-dtr/v1","numeric":{"mean":[0,0,0,0],"scale":[1,1,1,1]},"categorical":[{"categories":["a"]},{"categories":["b"]}],"tree":{"children_left":[1,-1,-1],"children_right":[2,-1,-1],"feature":[9,-2,-2],"threshold":[0,-2,-2],"value":[1,2,3]}}`,
		"not json":      `{`,
	}
	for name, raw := range bad {
		_, err := ParseRegressorArtifact([]byte(raw))
		require.Error(t, err, name)
	}
}

func TestTransformLayout(t *testing.T) {
	r := openFixture(t)
	x, err := r.Artifact().Transform(YieldFeatureVector{Year: 2010, RainfallMM: 1500, PesticideProxy: 30, TemperatureC: 25, Region: "Kenya", Crop: "Potatoes"})
	require.NoError(t, err)
	require.Equal(t, []float64{1, 1, 1, 1, 0, 1, 1, 0, 0}, x)
	require.Equal(t, []string{"Albania", "India", "Kenya"}, r.Artifact().Categories("Area"))
	require.Nil(t, r.Artifact().Categories("Nope"))
}

func TestYieldRegressorHonoursContext(t *testing.T) {
	r := openFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.PredictRaw(ctx, YieldFeatureVector{Region: "India", Crop: "Wheat"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseRegressorArtifactExporterMeta(t *testing.T) {
	raw := `{"format":"yield-dtr/v1","target_unit":"hg/ha",
		"numeric":{"columns":["Year","average_rain_fall_mm_per_year","pesticides_tonnes","avg_temp"],"mean":[0,0,0,0],"scale":[1,1,1,1]},
		"categorical":[{"column":"Area","categories":["India"],"drop_first":true},{"column":"Item","categories":["Wheat"],"drop_first":true}],
		"tree":{"children_left":[1,-1,-1],"children_right":[2,-1,-1],"feature":[1,-2,-2],"threshold":[0.1,-2,-2],"value":[[0],[10],[20]]},
		"meta":{"sklearn_version":"1.5.2","nodes":3,"max_depth":1}}`
	_, err := ParseRegressorArtifact([]byte(raw))
	require.Error(t, err, "tree values must be flattened to one number per node")

	raw = strings.Replace(raw, `"value":[[0],[10],[20]]`, `"value":[0,10,20]`, 1)
	a, err := ParseRegressorArtifact([]byte(raw))
	require.NoError(t, err)
	require.JSONEq(t, `{"sklearn_version":"1.5.2","nodes":3,"max_depth":1}`, string(a.Meta))
}

func TestDecisionTreeComparesAtFloat32(t *testing.T) {
	tree := DecisionTree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{0, -2, -2},
		Threshold:     []float64{0.1, -2, -2},
		Value:         []float64{0, 10, 20},
	}
	require.Equal(t, 20.0, tree.Predict([]float64{0.1}), "float32(0.1) is above the float64 threshold")
	require.Equal(t, 10.0, tree.Predict([]float64{0.09}))
}
