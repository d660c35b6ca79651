package domain

import (
	"context"

	"github.com/google/uuid"
)

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	Status DocumentStatus // empty matches all
	Type   DocumentType   // empty matches all
}

// PaginationParams represents pagination parameters.
type PaginationParams struct {
	Limit  int
	Offset int
}

// PaginatedDocuments represents a page of documents.
type PaginatedDocuments struct {
	Items   []*Document
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// PaginatedJobs represents a page of jobs.
type PaginatedJobs struct {
	Items   []*Job
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// DocumentRepository defines the interface for document persistence.
type DocumentRepository interface {
	// Create persists a new document and assigns its id.
	Create(ctx context.Context, doc *Document) error

	// GetByID retrieves a document by id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*Document, error)

	// Update persists the current state of an existing document.
	Update(ctx context.Context, doc *Document) error

	// List retrieves documents matching the filter, with pagination.
	List(ctx context.Context, filter DocumentFilter, params PaginationParams) (*PaginatedDocuments, error)
}

// JobRepository defines the interface for batch-job persistence.
type JobRepository interface {
	// Create persists a new job.
	Create(ctx context.Context, job *Job) error

	// GetByID retrieves a job by id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// Update persists the current state of an existing job.
	Update(ctx context.Context, job *Job) error

	// List retrieves jobs ordered by creation time descending. An empty
	// status matches all jobs.
	List(ctx context.Context, status JobStatus, params PaginationParams) (*PaginatedJobs, error)
}

// AuditRepository defines the interface for the append-only audit trail store.
type AuditRepository interface {
	// Append stores one audit entry. Failures must propagate to the caller;
	// the trail is never written best-effort.
	Append(ctx context.Context, entry *AuditLogEntry) error

	// ListByRecord retrieves all entries for (tableName, recordID), oldest first.
	ListByRecord(ctx context.Context, tableName, recordID string) ([]*AuditLogEntry, error)
}

// HealthChecker defines the interface for store health checks.
type HealthChecker interface {
	// CheckConnection checks if the store connection is healthy.
	CheckConnection(ctx context.Context) error

	// EnsureCollections ensures that required collections/namespaces exist.
	EnsureCollections(ctx context.Context) error
}
