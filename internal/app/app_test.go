package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/farm-advisor/constants"
	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/entity"
	"github.com/joseph-ayodele/farm-advisor/internal/server"
	"github.com/joseph-ayodele/farm-advisor/internal/yield"
)

func testConfig(t *testing.T) *common.Config {
	cfg := common.DefaultConfig()
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "advisor.db")
	cfg.Models.YieldModelPath = filepath.Join("..", "predictor", "testdata", "yield_model.json")
	cfg.Models.DiseaseClassesPath = filepath.Join(t.TempDir(), "missing.json")
	cfg.OCR.ArtifactCacheDir = t.TempDir()
	cfg.Weather.APIKey = ""
	return cfg
}

func TestNewWiresJournaledProcessor(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(ctx, testConfig(t), logger, Options{Journal: true})
	require.NoError(t, err)
	defer a.Close()

	require.True(t, a.Regressor.Available())
	require.False(t, a.Classifier.Available())
	require.Nil(t, a.Advisor)

	q := yield.Query{
		Crop: "Rice", Region: "India", RainfallMM: 554.9, TemperatureC: 20, HumidityPct: 60,
		PH: 6, Nitrogen: 70, Phosphorus: 35, Potassium: 40, AreaHectares: 2,
	}
	res, jobID, err := a.Processor.PredictYield(common.WithSource(ctx, "cli"), q)
	require.NoError(t, err)
	require.Equal(t, 4000.0, res.YieldPerHectare)

	job, err := a.Jobs.Get(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusOK, job.Status)
	require.Equal(t, "cli", job.Source)

	_, _, err = a.Processor.PredictDisease(ctx, "leaf.jpg", []byte("not an image"))
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeModelUnavailable, ae.Code)

	jobs, err := a.Jobs.List(ctx, entity.InferenceFilter{Kind: constants.KindDisease})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, constants.JobStatusFailed, jobs[0].Status)

	rep := a.Health().Report(ctx)
	require.Equal(t, server.StatusDegraded, rep.Status)
	require.Equal(t, "up", rep.Database)
	require.Equal(t, "ready", rep.Capabilities["yield"])
	require.Equal(t, "failed", rep.Capabilities["disease"])

	d := a.HTTPDeps()
	require.NotNil(t, d.History)
	require.NotNil(t, d.Exporter)
	require.Nil(t, d.Weather)
}

func TestNewWithoutJournal(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	require.NoError(t, err)
	defer a.Close()

	require.Nil(t, a.DB)
	require.Nil(t, a.Jobs)
	d := a.HTTPDeps()
	require.Nil(t, d.History)
	require.Nil(t, d.Exporter)
	require.Equal(t, "disabled", a.Health().Report(context.Background()).Database)
}
