package repositories

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/abyssorcdev/duppla/internal/domain"
)

// MemoryDocumentRepository is a thread-safe in-memory document store. Used in
// tests and in single-node deployments without an external database.
type MemoryDocumentRepository struct {
	mu     sync.RWMutex
	docs   map[int64]*domain.Document
	nextID int64
}

// NewMemoryDocumentRepository creates an empty in-memory document store.
func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{
		docs:   make(map[int64]*domain.Document),
		nextID: 1,
	}
}

// Create implements domain.DocumentRepository.
func (r *MemoryDocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc.ID == 0 {
		doc.ID = r.nextID
		r.nextID++
	} else if doc.ID >= r.nextID {
		r.nextID = doc.ID + 1
	}
	r.docs[doc.ID] = cloneDocument(doc)
	return nil
}

// GetByID implements domain.DocumentRepository.
func (r *MemoryDocumentRepository) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneDocument(doc), nil
}

// Update implements domain.DocumentRepository.
func (r *MemoryDocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[doc.ID]; !ok {
		return domain.ErrNotFound
	}
	r.docs[doc.ID] = cloneDocument(doc)
	return nil
}

// List implements domain.DocumentRepository.
func (r *MemoryDocumentRepository) List(ctx context.Context, filter domain.DocumentFilter, params domain.PaginationParams) (*domain.PaginatedDocuments, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*domain.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.Type != "" && doc.Type != filter.Type {
			continue
		}
		matched = append(matched, doc)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	page := paginate(len(matched), params)
	items := make([]*domain.Document, 0, page.size)
	for _, doc := range matched[page.start:page.end] {
		items = append(items, cloneDocument(doc))
	}

	return &domain.PaginatedDocuments{
		Items:   items,
		Total:   total,
		Limit:   page.limit,
		Offset:  params.Offset,
		HasMore: page.end < total,
	}, nil
}

// MemoryJobRepository is a thread-safe in-memory job store.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job
}

// NewMemoryJobRepository creates an empty in-memory job store.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[uuid.UUID]*domain.Job)}
}

// Create implements domain.JobRepository.
func (r *MemoryJobRepository) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetByID implements domain.JobRepository.
func (r *MemoryJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

// Update implements domain.JobRepository.
func (r *MemoryJobRepository) Update(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

// List implements domain.JobRepository.
func (r *MemoryJobRepository) List(ctx context.Context, status domain.JobStatus, params domain.PaginationParams) (*domain.PaginatedJobs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if status != "" && job.Status != status {
			continue
		}
		all = append(all, job)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	page := paginate(total, params)
	items := make([]*domain.Job, 0, page.size)
	for _, job := range all[page.start:page.end] {
		items = append(items, cloneJob(job))
	}

	return &domain.PaginatedJobs{
		Items:   items,
		Total:   total,
		Limit:   page.limit,
		Offset:  params.Offset,
		HasMore: page.end < total,
	}, nil
}

// MemoryAuditRepository is a thread-safe in-memory append-only audit store.
type MemoryAuditRepository struct {
	mu      sync.RWMutex
	entries []*domain.AuditLogEntry
	nextID  int64
}

// NewMemoryAuditRepository creates an empty in-memory audit store.
func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{nextID: 1}
}

// Append implements domain.AuditRepository.
func (r *MemoryAuditRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *entry
	stored.ID = r.nextID
	r.nextID++
	r.entries = append(r.entries, &stored)
	entry.ID = stored.ID
	return nil
}

// ListByRecord implements domain.AuditRepository.
func (r *MemoryAuditRepository) ListByRecord(ctx context.Context, tableName, recordID string) ([]*domain.AuditLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.AuditLogEntry, 0)
	for _, e := range r.entries {
		if e.TableName == tableName && e.RecordID == recordID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

// All returns every entry in append order. Test helper.
func (r *MemoryAuditRepository) All() []*domain.AuditLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.AuditLogEntry, len(r.entries))
	for i, e := range r.entries {
		copied := *e
		out[i] = &copied
	}
	return out
}

type pageBounds struct {
	start, end, size, limit int
}

func paginate(total int, params domain.PaginationParams) pageBounds {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	start := params.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return pageBounds{start: start, end: end, size: end - start, limit: limit}
}

func cloneDocument(doc *domain.Document) *domain.Document {
	copied := *doc
	copied.Metadata = make(map[string]any, len(doc.Metadata))
	for k, v := range doc.Metadata {
		copied.Metadata[k] = v
	}
	return &copied
}

func cloneJob(job *domain.Job) *domain.Job {
	copied := *job
	copied.DocumentIDs = make([]int64, len(job.DocumentIDs))
	copy(copied.DocumentIDs, job.DocumentIDs)
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		copied.CompletedAt = &t
	}
	if job.Result != nil {
		res := *job.Result
		res.Details = make([]domain.DocumentDetail, len(job.Result.Details))
		copy(res.Details, job.Result.Details)
		copied.Result = &res
	}
	return &copied
}

// Interface guards
var (
	_ domain.DocumentRepository = (*MemoryDocumentRepository)(nil)
	_ domain.JobRepository      = (*MemoryJobRepository)(nil)
	_ domain.AuditRepository    = (*MemoryAuditRepository)(nil)
)
