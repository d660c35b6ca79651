package notify

import "github.com/abyssorcdev/duppla/internal/domain"

// Payload is the JSON-serializable event sent to every channel when a batch
// job reaches a terminal state.
type Payload struct {
	JobID        string            `json:"job_id"`
	Status       string            `json:"status"` // "completed" or "failed"
	DocumentIDs  []int64           `json:"document_ids"`
	Result       *domain.JobResult `json:"result"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// NewPayload builds the notification payload for a finished job.
func NewPayload(job *domain.Job) *Payload {
	return &Payload{
		JobID:        job.ID.String(),
		Status:       string(job.Status),
		DocumentIDs:  job.DocumentIDs,
		Result:       job.Result,
		ErrorMessage: job.ErrorMessage,
	}
}
