package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/farm-advisor/constants"
	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/entity"
)

const inferenceTable = "inference_job"

// DefaultListLimit bounds List when the filter sets no limit.
const DefaultListLimit = 500

var inferenceColumns = []string{
	"id", "kind", "source", "status", "input_json", "output_json",
	"error_message", "started_at", "finished_at",
}

type InferenceJobRepository interface {
	Start(ctx context.Context, kind constants.InferenceKind, source string, input any) (*entity.InferenceJob, error)
	FinishSuccess(ctx context.Context, jobID uuid.UUID, output any) error
	FinishNoValues(ctx context.Context, jobID uuid.UUID, output any) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.InferenceJob, error)
	List(ctx context.Context, f entity.InferenceFilter) ([]entity.InferenceJob, error)
}

type inferenceJobRepo struct {
	drv *entsql.Driver
	log *slog.Logger
	now func() time.Time
}

func NewInferenceJobRepository(db *DB, log *slog.Logger) InferenceJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &inferenceJobRepo{drv: db.Driver, log: log, now: time.Now}
}

func dbError(op string, err error) error {
	return common.NewAppError(common.CodeDatabase, "The result history is unavailable right now.", fmt.Errorf("%s: %w", op, err))
}

func (r *inferenceJobRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *inferenceJobRepo) exec(ctx context.Context, query string, args []any) (int64, error) {
	var res sql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *inferenceJobRepo) Start(ctx context.Context, kind constants.InferenceKind, source string, input any) (*entity.InferenceJob, error) {
	in, err := encodeJSON(input)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	job := &entity.InferenceJob{
		ID:        uuid.New(),
		Kind:      kind,
		Source:    source,
		Status:    constants.JobStatusRunning,
		StartedAt: r.now().UTC().Truncate(time.Millisecond),
	}
	if s, ok := in.(string); ok {
		job.Input = json.RawMessage(s)
	}
	query, args := r.builder().Insert(inferenceTable).
		Columns("id", "kind", "source", "status", "input_json", "started_at").
		Values(job.ID.String(), string(kind), source, string(job.Status), in, job.StartedAt.UnixMilli()).
		Query()
	if _, err := r.exec(ctx, query, args); err != nil {
		r.log.Error("inference_job start failed", "kind", kind, "source", source, "err", err)
		return nil, dbError("start inference job", err)
	}
	r.log.Debug("inference_job started", "job_id", job.ID, "kind", kind, "source", source)
	return job, nil
}

func (r *inferenceJobRepo) finish(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, output any, message string) error {
	upd := r.builder().Update(inferenceTable).
		Set("status", string(status)).
		Set("finished_at", r.now().UTC().UnixMilli())
	if output != nil {
		out, err := encodeJSON(output)
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		upd.Set("output_json", out)
	}
	if message != "" {
		upd.Set("error_message", message)
	}
	query, args := upd.Where(entsql.EQ("id", jobID.String())).Query()
	n, err := r.exec(ctx, query, args)
	if err != nil {
		r.log.Error("inference_job finish failed", "job_id", jobID, "status", status, "err", err)
		return dbError("finish inference job", err)
	}
	if n == 0 {
		return fmt.Errorf("inference job %s: %w", jobID, common.ErrNotFound)
	}
	return nil
}

func (r *inferenceJobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, output any) error {
	if err := r.finish(ctx, jobID, constants.JobStatusOK, output, ""); err != nil {
		return err
	}
	r.log.Info("inference_job finished (OK)", "job_id", jobID)
	return nil
}

func (r *inferenceJobRepo) FinishNoValues(ctx context.Context, jobID uuid.UUID, output any) error {
	if err := r.finish(ctx, jobID, constants.JobStatusNoValues, output, ""); err != nil {
		return err
	}
	r.log.Info("inference_job finished (NO_VALUES)", "job_id", jobID)
	return nil
}

func (r *inferenceJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	if message == "" {
		message = "unknown error"
	}
	if err := r.finish(ctx, jobID, constants.JobStatusFailed, nil, message); err != nil {
		return err
	}
	r.log.Warn("inference_job finished (FAILED)", "job_id", jobID, "error", message)
	return nil
}

func (r *inferenceJobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.InferenceJob, error) {
	query, args := r.builder().Select(inferenceColumns...).
		From(entsql.Table(inferenceTable)).
		Where(entsql.EQ("id", jobID.String())).
		Query()
	jobs, err := r.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("inference job %s: %w", jobID, common.ErrNotFound)
	}
	return &jobs[0], nil
}

// List returns jobs newest first. From is inclusive, To exclusive.
func (r *inferenceJobRepo) List(ctx context.Context, f entity.InferenceFilter) ([]entity.InferenceJob, error) {
	var preds []*entsql.Predicate
	if f.Kind != "" {
		preds = append(preds, entsql.EQ("kind", string(f.Kind)))
	}
	if !f.From.IsZero() {
		preds = append(preds, entsql.GTE("started_at", f.From.UnixMilli()))
	}
	if !f.To.IsZero() {
		preds = append(preds, entsql.LT("started_at", f.To.UnixMilli()))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	sel := r.builder().Select(inferenceColumns...).From(entsql.Table(inferenceTable))
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	query, args := sel.OrderBy(entsql.Desc("started_at"), entsql.Desc("id")).Limit(limit).Query()
	return r.query(ctx, query, args)
}

func (r *inferenceJobRepo) query(ctx context.Context, query string, args []any) ([]entity.InferenceJob, error) {
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		r.log.Error("inference_job query failed", "err", err)
		return nil, dbError("query inference jobs", err)
	}
	defer rows.Close()

	var out []entity.InferenceJob
	for rows.Next() {
		var (
			id, kind, source, status string
			input, output, errMsg    sql.NullString
			started                  int64
			finished                 sql.NullInt64
		)
		if err := rows.Scan(&id, &kind, &source, &status, &input, &output, &errMsg, &started, &finished); err != nil {
			return nil, dbError("scan inference job", err)
		}
		jobID, err := uuid.Parse(id)
		if err != nil {
			return nil, dbError("parse inference job id", err)
		}
		job := entity.InferenceJob{
			ID:        jobID,
			Kind:      constants.InferenceKind(kind),
			Source:    source,
			Status:    constants.JobStatus(status),
			StartedAt: time.UnixMilli(started).UTC(),
		}
		if input.Valid {
			job.Input = json.RawMessage(input.String)
		}
		if output.Valid {
			job.Output = json.RawMessage(output.String)
		}
		if errMsg.Valid {
			msg := errMsg.String
			job.ErrorMessage = &msg
		}
		if finished.Valid {
			t := time.UnixMilli(finished.Int64).UTC()
			job.FinishedAt = &t
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, dbError("iterate inference jobs", err)
	}
	return out, nil
}
