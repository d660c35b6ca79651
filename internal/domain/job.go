package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents a state in the batch-job lifecycle.
//
// Workflow: pending → processing → completed/failed. Terminal states are
// immutable; completed_at is set exactly once, on the first terminal
// transition.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsValidJobStatus reports whether s is a known job status.
func IsValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// DocumentDetail is the per-document outcome inside a job result.
type DocumentDetail struct {
	DocumentID int64  `json:"document_id"`
	Status     string `json:"status"` // "success" or "failed"
	NewStatus  string `json:"new_status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// JobResult aggregates the per-document outcomes of one batch execution.
type JobResult struct {
	Total     int              `json:"total"`
	Processed int              `json:"processed"`
	Failed    int              `json:"failed"`
	Details   []DocumentDetail `json:"details"`
}

// Job is one batch-processing request over a fixed list of document ids.
// Exactly one execution owns a job at a time; document_ids never change after
// creation.
type Job struct {
	ID           uuid.UUID  `json:"id" reindex:"id,,pk"`
	DocumentIDs  []int64    `json:"document_ids" reindex:"-"`
	Status       JobStatus  `json:"status" reindex:"status"`
	CreatedAt    time.Time  `json:"created_at" reindex:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" reindex:"-"`
	Result       *JobResult `json:"result,omitempty" reindex:"-"`
	ErrorMessage string     `json:"error_message,omitempty" reindex:"error_message"`
}

// NewJob creates a pending job for the given document ids.
func NewJob(documentIDs []int64) (*Job, error) {
	if len(documentIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	ids := make([]int64, len(documentIDs))
	copy(ids, documentIDs)
	return &Job{
		ID:          uuid.New(),
		DocumentIDs: ids,
		Status:      JobStatusPending,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// StartProcessing transitions the job from pending to processing.
func (j *Job) StartProcessing() error {
	return j.transition(JobStatusProcessing)
}

// Complete marks the job as finished successfully with the given result.
func (j *Job) Complete(result *JobResult) error {
	if err := j.transition(JobStatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.CompletedAt = &now
	j.Result = result
	j.ErrorMessage = ""
	return nil
}

// Fail marks the job as failed with an error message.
func (j *Job) Fail(errorMessage string, result *JobResult) error {
	if err := j.transition(JobStatusFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.CompletedAt = &now
	j.Result = result
	j.ErrorMessage = errorMessage
	return nil
}

// IsTerminal reports whether the job has reached completed or failed.
func (j *Job) IsTerminal() bool {
	return IsTerminalJobStatus(j.Status)
}

func (j *Job) transition(target JobStatus) error {
	if !ValidateJobTransition(j.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, target)
	}
	j.Status = target
	return nil
}
