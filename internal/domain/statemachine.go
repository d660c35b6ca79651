package domain

// Transition tables for the two workflow entities. The maps are fixed at
// compile time; adding a status means adding a table entry, nothing else.
//
// Document transitions:
//
//	draft    → pending, rejected   (rejected reachable by automated processing)
//	pending  → approved, rejected
//	approved → (terminal)
//	rejected → draft               (re-openable for correction)
//
// Job transitions are a linear chain:
//
//	pending → processing → completed | failed
var (
	documentTransitions = map[DocumentStatus][]DocumentStatus{
		DocumentStatusDraft:    {DocumentStatusPending, DocumentStatusRejected},
		DocumentStatusPending:  {DocumentStatusApproved, DocumentStatusRejected},
		DocumentStatusApproved: {},
		DocumentStatusRejected: {DocumentStatusDraft},
	}

	jobTransitions = map[JobStatus][]JobStatus{
		JobStatusPending:    {JobStatusProcessing},
		JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
		JobStatusCompleted:  {},
		JobStatusFailed:     {},
	}
)

// ValidateDocumentTransition reports whether current → target is an allowed
// document transition. Unknown states and self-transitions are invalid; the
// function is pure and never panics.
func ValidateDocumentTransition(current, target DocumentStatus) bool {
	for _, allowed := range documentTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// NextDocumentStates returns the allowed next states from current. Unknown
// states yield an empty slice.
func NextDocumentStates(current DocumentStatus) []DocumentStatus {
	next := documentTransitions[current]
	out := make([]DocumentStatus, len(next))
	copy(out, next)
	return out
}

// IsTerminalDocumentStatus reports whether s has no outgoing transitions.
// Note that rejected is not terminal: it re-opens into draft.
func IsTerminalDocumentStatus(s DocumentStatus) bool {
	next, known := documentTransitions[s]
	return known && len(next) == 0
}

// ValidateJobTransition reports whether current → target is an allowed job
// transition.
func ValidateJobTransition(current, target JobStatus) bool {
	for _, allowed := range jobTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// NextJobStates returns the allowed next states from current.
func NextJobStates(current JobStatus) []JobStatus {
	next := jobTransitions[current]
	out := make([]JobStatus, len(next))
	copy(out, next)
	return out
}

// IsTerminalJobStatus reports whether s has no outgoing transitions.
func IsTerminalJobStatus(s JobStatus) bool {
	next, known := jobTransitions[s]
	return known && len(next) == 0
}
