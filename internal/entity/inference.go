package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/farm-advisor/constants"
)

// InferenceJob is one journaled inference, for data transfer between layers.
type InferenceJob struct {
	ID           uuid.UUID               `json:"id"`
	Kind         constants.InferenceKind `json:"kind"`
	Source       string                  `json:"source"`
	Status       constants.JobStatus     `json:"status"`
	Input        json.RawMessage         `json:"input,omitempty"`
	Output       json.RawMessage         `json:"output,omitempty"`
	ErrorMessage *string                 `json:"error_message,omitempty"`
	StartedAt    time.Time               `json:"started_at"`
	FinishedAt   *time.Time              `json:"finished_at,omitempty"`
}

// Duration is zero while the job is running.
func (j InferenceJob) Duration() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// InferenceFilter narrows a journal listing. Zero values mean "any".
type InferenceFilter struct {
	Kind  constants.InferenceKind
	From  time.Time
	To    time.Time
	Limit int
}
