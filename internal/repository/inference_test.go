package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/farm-advisor/constants"
	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/entity"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{DSN: "file:" + filepath.Join(t.TempDir(), "journal.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.Migrate(context.Background()), "migrate is idempotent")
	return db
}

func TestOpenSelectsDialect(t *testing.T) {
	db := openTestDB(t)
	require.Equal(t, "sqlite3", db.Dialect())
	require.NoError(t, db.HealthCheck(context.Background(), time.Second))
	require.True(t, isPostgres("postgres://u@localhost/db"))
	require.True(t, isPostgres("postgresql://u@localhost/db"))
	require.False(t, isPostgres("file:advisor.db"))
}

func TestInferenceJobLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewInferenceJobRepository(openTestDB(t), nil).(*inferenceJobRepo)
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	job, err := repo.Start(ctx, constants.KindYield, "http", map[string]any{"crop": "Rice"})
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusRunning, job.Status)

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusRunning, got.Status)
	require.JSONEq(t, `{"crop":"Rice"}`, string(got.Input))
	require.Nil(t, got.FinishedAt)
	require.Equal(t, now, got.StartedAt)

	now = now.Add(1500 * time.Millisecond)
	require.NoError(t, repo.FinishSuccess(ctx, job.ID, map[string]any{"yield_per_hectare": 40.5}))

	got, err = repo.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusOK, got.Status)
	require.JSONEq(t, `{"yield_per_hectare":40.5}`, string(got.Output))
	require.NotNil(t, got.FinishedAt)
	require.Equal(t, 1500*time.Millisecond, got.Duration())
	require.Nil(t, got.ErrorMessage)
}

func TestInferenceJobFailureAndNoValues(t *testing.T) {
	ctx := context.Background()
	repo := NewInferenceJobRepository(openTestDB(t), nil)

	failed, err := repo.Start(ctx, constants.KindDisease, "grpc", nil)
	require.NoError(t, err)
	require.NoError(t, repo.FinishFailure(ctx, failed.ID, "model unavailable"))
	got, err := repo.Get(ctx, failed.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusFailed, got.Status)
	require.Equal(t, "model unavailable", *got.ErrorMessage)
	require.Empty(t, got.Input)

	empty, err := repo.Start(ctx, constants.KindSoilScan, "watch", map[string]string{"path": "/in/a.png"})
	require.NoError(t, err)
	require.NoError(t, repo.FinishNoValues(ctx, empty.ID, map[string]any{"success": false}))
	got, err = repo.Get(ctx, empty.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusNoValues, got.Status)
}

func TestInferenceJobNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewInferenceJobRepository(openTestDB(t), nil)

	_, err := repo.Get(ctx, uuid.New())
	require.ErrorIs(t, err, common.ErrNotFound)
	require.ErrorIs(t, repo.FinishSuccess(ctx, uuid.New(), nil), common.ErrNotFound)
}

func TestInferenceJobList(t *testing.T) {
	ctx := context.Background()
	repo := NewInferenceJobRepository(openTestDB(t), nil).(*inferenceJobRepo)
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	kinds := []constants.InferenceKind{constants.KindYield, constants.KindSoilScan, constants.KindYield, constants.KindDisease}
	for i, k := range kinds {
		at := base.Add(time.Duration(i) * time.Hour)
		repo.now = func() time.Time { return at }
		_, err := repo.Start(ctx, k, "test", nil)
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, entity.InferenceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, constants.KindDisease, all[0].Kind, "newest first")

	yields, err := repo.List(ctx, entity.InferenceFilter{Kind: constants.KindYield})
	require.NoError(t, err)
	require.Len(t, yields, 2)

	window, err := repo.List(ctx, entity.InferenceFilter{From: base.Add(time.Hour), To: base.Add(3 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 2)
	require.Equal(t, constants.KindYield, window[0].Kind)
	require.Equal(t, constants.KindSoilScan, window[1].Kind)

	limited, err := repo.List(ctx, entity.InferenceFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}
