package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDocumentTransitions covers every allowed edge of the document workflow
func TestDocumentTransitions(t *testing.T) {
	allowed := []struct {
		from, to DocumentStatus
	}{
		{DocumentStatusDraft, DocumentStatusPending},
		{DocumentStatusDraft, DocumentStatusRejected},
		{DocumentStatusPending, DocumentStatusApproved},
		{DocumentStatusPending, DocumentStatusRejected},
		{DocumentStatusRejected, DocumentStatusDraft},
	}
	for _, tc := range allowed {
		assert.True(t, ValidateDocumentTransition(tc.from, tc.to),
			"%s -> %s should be allowed", tc.from, tc.to)
	}
}

// TestDocumentTransitionsRejected checks that everything outside the allowed
// edges is refused, including self-transitions and unknown states
func TestDocumentTransitionsRejected(t *testing.T) {
	statuses := []DocumentStatus{
		DocumentStatusDraft, DocumentStatusPending,
		DocumentStatusApproved, DocumentStatusRejected,
	}

	allowed := map[DocumentStatus]map[DocumentStatus]bool{
		DocumentStatusDraft:    {DocumentStatusPending: true, DocumentStatusRejected: true},
		DocumentStatusPending:  {DocumentStatusApproved: true, DocumentStatusRejected: true},
		DocumentStatusRejected: {DocumentStatusDraft: true},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[from][to]
			assert.Equal(t, want, ValidateDocumentTransition(from, to),
				"%s -> %s", from, to)
		}
	}

	assert.False(t, ValidateDocumentTransition(DocumentStatusApproved, DocumentStatusDraft))
	assert.False(t, ValidateDocumentTransition("archived", DocumentStatusDraft))
	assert.False(t, ValidateDocumentTransition(DocumentStatusDraft, "archived"))
	assert.False(t, ValidateDocumentTransition("", DocumentStatusDraft))
}

// TestTerminalDocumentStatuses verifies that only approved is terminal:
// rejected re-opens into draft
func TestTerminalDocumentStatuses(t *testing.T) {
	assert.True(t, IsTerminalDocumentStatus(DocumentStatusApproved))
	assert.False(t, IsTerminalDocumentStatus(DocumentStatusRejected))
	assert.False(t, IsTerminalDocumentStatus(DocumentStatusDraft))
	assert.False(t, IsTerminalDocumentStatus(DocumentStatusPending))

	// Unknown states are not terminal, they are invalid.
	assert.False(t, IsTerminalDocumentStatus("archived"))
	assert.False(t, IsTerminalDocumentStatus(""))
}

// TestNextDocumentStates verifies the advertised successor sets
func TestNextDocumentStates(t *testing.T) {
	assert.ElementsMatch(t,
		[]DocumentStatus{DocumentStatusPending, DocumentStatusRejected},
		NextDocumentStates(DocumentStatusDraft))
	assert.ElementsMatch(t,
		[]DocumentStatus{DocumentStatusApproved, DocumentStatusRejected},
		NextDocumentStates(DocumentStatusPending))
	assert.Empty(t, NextDocumentStates(DocumentStatusApproved))
	assert.ElementsMatch(t,
		[]DocumentStatus{DocumentStatusDraft},
		NextDocumentStates(DocumentStatusRejected))
	assert.Empty(t, NextDocumentStates("archived"))
}

// TestJobTransitions covers the linear job chain
func TestJobTransitions(t *testing.T) {
	assert.True(t, ValidateJobTransition(JobStatusPending, JobStatusProcessing))
	assert.True(t, ValidateJobTransition(JobStatusProcessing, JobStatusCompleted))
	assert.True(t, ValidateJobTransition(JobStatusProcessing, JobStatusFailed))

	// No skipping, no reversing, no leaving terminal states.
	assert.False(t, ValidateJobTransition(JobStatusPending, JobStatusCompleted))
	assert.False(t, ValidateJobTransition(JobStatusPending, JobStatusFailed))
	assert.False(t, ValidateJobTransition(JobStatusProcessing, JobStatusPending))
	assert.False(t, ValidateJobTransition(JobStatusCompleted, JobStatusFailed))
	assert.False(t, ValidateJobTransition(JobStatusFailed, JobStatusPending))
	assert.False(t, ValidateJobTransition(JobStatusPending, JobStatusPending))
}

// TestTerminalJobStatuses verifies completed and failed are both terminal
func TestTerminalJobStatuses(t *testing.T) {
	assert.True(t, IsTerminalJobStatus(JobStatusCompleted))
	assert.True(t, IsTerminalJobStatus(JobStatusFailed))
	assert.False(t, IsTerminalJobStatus(JobStatusPending))
	assert.False(t, IsTerminalJobStatus(JobStatusProcessing))
	assert.False(t, IsTerminalJobStatus("cancelled"))
}
