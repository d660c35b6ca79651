package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain rule violations. Callers match with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrInvalidAmount       = errors.New("amount must be greater than 0")
	ErrInvalidDocumentType = errors.New("invalid document type")
	ErrMetadataTooLarge    = errors.New("metadata exceeds maximum size")
	ErrNotEditable         = errors.New("only draft documents can be edited")
	ErrEmptyBatch          = errors.New("batch requires at least one document id")
)

// InfraError wraps a store/connection failure so the batch processor can tell
// infrastructure faults (job-fatal, retried by the queue) apart from business
// failures (recorded per document, never retried).
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("infrastructure failure in %s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error { return e.Err }

// NewInfraError wraps err as an infrastructure failure. Returns nil for a nil
// err so call sites can pass results through unconditionally.
func NewInfraError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InfraError{Op: op, Err: err}
}

// IsInfraError reports whether err is (or wraps) an infrastructure failure.
func IsInfraError(err error) bool {
	var infra *InfraError
	return errors.As(err, &infra)
}
