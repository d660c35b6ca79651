package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/restream/reindexer/v4"
	// cproto (RPC) binding: faster and lighter than the HTTP builtin.
	_ "github.com/restream/reindexer/v4/bindings/cproto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/abyssorcdev/duppla/internal/domain"
)

const (
	documentsNamespace = "documents"
	jobsNamespace      = "jobs"
	auditNamespace     = "audit_logs"

	defaultMaxRetries     = 3
	defaultRetryDelay     = 1 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultQueryTimeout   = 5 * time.Second
)

// HealthStatus holds the current state of the store connection, read by
// health checks without taking locks.
type HealthStatus struct {
	IsHealthy bool
	LastCheck time.Time
	LastError error
}

// documentRecord is the Reindexer representation of a document. Amount is
// kept as a string so decimals never round-trip through float64, and
// metadata is an opaque JSON blob.
type documentRecord struct {
	ID           int64  `reindex:"id,,pk" json:"id"`
	Type         string `reindex:"type" json:"type"`
	Amount       string `reindex:"amount" json:"amount"`
	Status       string `reindex:"status" json:"status"`
	MetadataJSON string `reindex:"metadata_json" json:"metadata_json"`
	CreatedAt    int64  `reindex:"created_at" json:"created_at"`
	UpdatedAt    int64  `reindex:"updated_at" json:"updated_at"`
	CreatedBy    string `reindex:"created_by" json:"created_by"`
}

// jobRecord is the Reindexer representation of a batch job. The UUID id and
// the result structure are stored as strings for the same reason as above.
type jobRecord struct {
	ID           string `reindex:"id,,pk" json:"id"`
	DocumentIDs  string `reindex:"document_ids" json:"document_ids"`
	Status       string `reindex:"status" json:"status"`
	CreatedAt    int64  `reindex:"created_at" json:"created_at"`
	CompletedAt  int64  `reindex:"completed_at" json:"completed_at"`
	ResultJSON   string `reindex:"result_json" json:"result_json"`
	ErrorMessage string `reindex:"error_message" json:"error_message"`
}

// auditRecord is the Reindexer representation of an audit entry.
type auditRecord struct {
	ID        int64  `reindex:"id,,pk" json:"id"`
	TableName string `reindex:"table_name" json:"table_name"`
	RecordID  string `reindex:"record_id" json:"record_id"`
	Action    string `reindex:"action" json:"action"`
	OldValue  string `reindex:"old_value" json:"old_value"`
	NewValue  string `reindex:"new_value" json:"new_value"`
	Timestamp int64  `reindex:"timestamp" json:"timestamp"`
	UserID    string `reindex:"user_id" json:"user_id"`
}

// ReindexerStore backs the document, job, and audit repositories with a
// Reindexer database. It manages the connection, its health status, and
// namespace initialization; the typed repository views below share it.
type ReindexerStore struct {
	dsn    string
	logger *zap.Logger

	mu sync.RWMutex
	db *reindexer.Reindexer

	healthStatus atomic.Value // holds *HealthStatus

	collectionsInitialized bool
	collectionsMu          sync.Mutex

	auditSeq atomic.Int64
}

// NewReindexerStore connects to Reindexer with retry and returns the store.
func NewReindexerStore(dsn string, logger *zap.Logger) (*ReindexerStore, error) {
	s := &ReindexerStore{
		dsn:    dsn,
		logger: logger,
	}
	s.healthStatus.Store(&HealthStatus{IsHealthy: false, LastCheck: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := s.connectWithRetry(ctx, defaultMaxRetries); err != nil {
		return nil, fmt.Errorf("failed to connect to reindexer: %w", err)
	}
	return s, nil
}

func (s *ReindexerStore) connectWithRetry(ctx context.Context, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if attempt > 0 {
			delay := defaultRetryDelay * time.Duration(attempt)
			s.logger.Info("retrying reindexer connection",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			time.Sleep(delay)
		}

		db := reindexer.NewReindex(s.dsn, reindexer.WithCreateDBIfMissing())
		if db.Status().Err != nil {
			lastErr = db.Status().Err
			db.Close()
			s.logger.Warn("reindexer connection test failed",
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
			continue
		}

		if s.db != nil {
			s.db.Close()
		}
		s.db = db
		s.updateHealthStatus(true, nil)
		s.logger.Info("connected to reindexer", zap.String("dsn", s.dsn))
		return nil
	}

	s.updateHealthStatus(false, lastErr)
	return fmt.Errorf("connection failed after %d attempts: %w", maxRetries, lastErr)
}

func (s *ReindexerStore) updateHealthStatus(healthy bool, err error) {
	s.healthStatus.Store(&HealthStatus{
		IsHealthy: healthy,
		LastCheck: time.Now(),
		LastError: err,
	})
}

func (s *ReindexerStore) conn() *reindexer.Reindexer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// EnsureCollections opens (creating if missing) the documents, jobs, and
// audit namespaces. Safe to call concurrently; initialization happens once.
func (s *ReindexerStore) EnsureCollections(ctx context.Context) error {
	if s.collectionsInitialized {
		return nil
	}

	s.collectionsMu.Lock()
	defer s.collectionsMu.Unlock()

	if s.collectionsInitialized {
		return nil
	}

	db := s.conn()
	if db == nil {
		return fmt.Errorf("reindexer connection not established")
	}

	opts := reindexer.DefaultNamespaceOptions()
	namespaces := []struct {
		name string
		item any
	}{
		{documentsNamespace, documentRecord{}},
		{jobsNamespace, jobRecord{}},
		{auditNamespace, auditRecord{}},
	}
	for _, ns := range namespaces {
		if err := db.OpenNamespace(ns.name, opts, ns.item); err != nil {
			return fmt.Errorf("failed to open namespace %s: %w", ns.name, err)
		}
	}

	// Seed the audit id sequence past any existing entries.
	iter := db.Query(auditNamespace).Sort("id", true).Limit(1).Exec()
	for iter.Next() {
		if rec, ok := iter.Object().(*auditRecord); ok {
			s.auditSeq.Store(rec.ID)
		}
	}
	iter.Close()

	s.collectionsInitialized = true
	s.logger.Info("reindexer namespaces initialized",
		zap.Strings("namespaces", []string{documentsNamespace, jobsNamespace, auditNamespace}),
	)
	return nil
}

// CheckConnection implements domain.HealthChecker.
func (s *ReindexerStore) CheckConnection(ctx context.Context) error {
	db := s.conn()
	if db == nil {
		return fmt.Errorf("reindexer connection not established")
	}
	if err := db.Status().Err; err != nil {
		s.updateHealthStatus(false, err)
		return fmt.Errorf("reindexer health check failed: %w", err)
	}
	s.updateHealthStatus(true, nil)
	return nil
}

// Health returns the last recorded health status.
func (s *ReindexerStore) Health() *HealthStatus {
	status := s.healthStatus.Load()
	if status == nil {
		return &HealthStatus{IsHealthy: false}
	}
	return status.(*HealthStatus)
}

// Close shuts down the store connection.
func (s *ReindexerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	s.updateHealthStatus(false, fmt.Errorf("connection closed"))
	return nil
}

// Documents returns the document repository view of the store.
func (s *ReindexerStore) Documents() domain.DocumentRepository {
	return &reindexerDocumentRepository{store: s}
}

// Jobs returns the job repository view of the store.
func (s *ReindexerStore) Jobs() domain.JobRepository {
	return &reindexerJobRepository{store: s}
}

// Audit returns the audit repository view of the store.
func (s *ReindexerStore) Audit() domain.AuditRepository {
	return &reindexerAuditRepository{store: s}
}

type reindexerDocumentRepository struct {
	store *ReindexerStore
}

func (r *reindexerDocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if err := r.store.EnsureCollections(ctx); err != nil {
		return err
	}
	db := r.store.conn()
	if db == nil {
		return fmt.Errorf("no reindexer connection available")
	}

	if doc.ID == 0 {
		id, err := nextDocumentID(db)
		if err != nil {
			r.store.updateHealthStatus(false, err)
			return fmt.Errorf("failed to allocate document id: %w", err)
		}
		doc.ID = id
	}

	rec, err := toDocumentRecord(doc)
	if err != nil {
		return err
	}
	if err := db.Upsert(documentsNamespace, rec); err != nil {
		r.store.updateHealthStatus(false, err)
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

func (r *reindexerDocumentRepository) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := r.store.conn()
	if db == nil {
		return nil, fmt.Errorf("no reindexer connection available")
	}

	iter := db.Query(documentsNamespace).Where("id", reindexer.EQ, id).ExecCtx(ctx)
	defer iter.Close()

	if iter.Error() != nil {
		r.store.updateHealthStatus(false, iter.Error())
		return nil, fmt.Errorf("document query failed: %w", iter.Error())
	}

	for iter.Next() {
		if rec, ok := iter.Object().(*documentRecord); ok {
			return fromDocumentRecord(rec)
		}
	}
	return nil, domain.ErrNotFound
}

func (r *reindexerDocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := r.store.conn()
	if db == nil {
		return fmt.Errorf("no reindexer connection available")
	}

	rec, err := toDocumentRecord(doc)
	if err != nil {
		return err
	}
	if err := db.Upsert(documentsNamespace, rec); err != nil {
		r.store.updateHealthStatus(false, err)
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (r *reindexerDocumentRepository) List(ctx context.Context, filter domain.DocumentFilter, params domain.PaginationParams) (*domain.PaginatedDocuments, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout*2)
	defer cancel()

	db := r.store.conn()
	if db == nil {
		return nil, fmt.Errorf("no reindexer connection available")
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	query := db.Query(documentsNamespace).ReqTotal()
	if filter.Status != "" {
		query = query.Where("status", reindexer.EQ, string(filter.Status))
	}
	if filter.Type != "" {
		query = query.Where("type", reindexer.EQ, string(filter.Type))
	}
	query = query.Sort("id", false).Limit(limit).Offset(params.Offset)

	iter := query.ExecCtx(ctx)
	defer iter.Close()

	if iter.Error() != nil {
		r.store.updateHealthStatus(false, iter.Error())
		return nil, fmt.Errorf("document list query failed: %w", iter.Error())
	}

	docs := make([]*domain.Document, 0, limit)
	for iter.Next() {
		rec, ok := iter.Object().(*documentRecord)
		if !ok {
			continue
		}
		doc, err := fromDocumentRecord(rec)
		if err != nil {
			r.store.logger.Error("failed to decode document record", zap.Int64("id", rec.ID), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}

	total := iter.TotalCount()
	return &domain.PaginatedDocuments{
		Items:   docs,
		Total:   total,
		Limit:   limit,
		Offset:  params.Offset,
		HasMore: params.Offset+len(docs) < total,
	}, nil
}

type reindexerJobRepository struct {
	store *ReindexerStore
}

func (r *reindexerJobRepository) Create(ctx context.Context, job *domain.Job) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if err := r.store.EnsureCollections(ctx); err != nil {
		return err
	}
	db := r.store.conn()
	if db == nil {
		return fmt.Errorf("no reindexer connection available")
	}

	rec, err := toJobRecord(job)
	if err != nil {
		return err
	}
	if err := db.Upsert(jobsNamespace, rec); err != nil {
		r.store.updateHealthStatus(false, err)
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

func (r *reindexerJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := r.store.conn()
	if db == nil {
		return nil, fmt.Errorf("no reindexer connection available")
	}

	iter := db.Query(jobsNamespace).Where("id", reindexer.EQ, id.String()).ExecCtx(ctx)
	defer iter.Close()

	if iter.Error() != nil {
		r.store.updateHealthStatus(false, iter.Error())
		return nil, fmt.Errorf("job query failed: %w", iter.Error())
	}

	for iter.Next() {
		if rec, ok := iter.Object().(*jobRecord); ok {
			return fromJobRecord(rec)
		}
	}
	return nil, domain.ErrNotFound
}

func (r *reindexerJobRepository) Update(ctx context.Context, job *domain.Job) error {
	return r.Create(ctx, job)
}

func (r *reindexerJobRepository) List(ctx context.Context, status domain.JobStatus, params domain.PaginationParams) (*domain.PaginatedJobs, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout*2)
	defer cancel()

	db := r.store.conn()
	if db == nil {
		return nil, fmt.Errorf("no reindexer connection available")
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	query := db.Query(jobsNamespace).ReqTotal()
	if status != "" {
		query = query.Where("status", reindexer.EQ, string(status))
	}
	iter := query.
		Sort("created_at", true).
		Limit(limit).
		Offset(params.Offset).
		ExecCtx(ctx)
	defer iter.Close()

	if iter.Error() != nil {
		r.store.updateHealthStatus(false, iter.Error())
		return nil, fmt.Errorf("job list query failed: %w", iter.Error())
	}

	jobs := make([]*domain.Job, 0, limit)
	for iter.Next() {
		rec, ok := iter.Object().(*jobRecord)
		if !ok {
			continue
		}
		job, err := fromJobRecord(rec)
		if err != nil {
			r.store.logger.Error("failed to decode job record", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}

	total := iter.TotalCount()
	return &domain.PaginatedJobs{
		Items:   jobs,
		Total:   total,
		Limit:   limit,
		Offset:  params.Offset,
		HasMore: params.Offset+len(jobs) < total,
	}, nil
}

type reindexerAuditRepository struct {
	store *ReindexerStore
}

func (r *reindexerAuditRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if err := r.store.EnsureCollections(ctx); err != nil {
		return err
	}
	db := r.store.conn()
	if db == nil {
		return fmt.Errorf("no reindexer connection available")
	}

	if entry.ID == 0 {
		entry.ID = r.store.auditSeq.Add(1)
	}
	rec := &auditRecord{
		ID:        entry.ID,
		TableName: entry.TableName,
		RecordID:  entry.RecordID,
		Action:    string(entry.Action),
		OldValue:  entry.OldValue,
		NewValue:  entry.NewValue,
		Timestamp: entry.Timestamp.UnixNano(),
		UserID:    entry.UserID,
	}
	// Insert, never upsert: the trail is append-only.
	inserted, err := db.Insert(auditNamespace, rec)
	if err != nil {
		r.store.updateHealthStatus(false, err)
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	if inserted == 0 {
		return fmt.Errorf("audit entry %d already exists", entry.ID)
	}
	return nil
}

func (r *reindexerAuditRepository) ListByRecord(ctx context.Context, tableName, recordID string) ([]*domain.AuditLogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := r.store.conn()
	if db == nil {
		return nil, fmt.Errorf("no reindexer connection available")
	}

	iter := db.Query(auditNamespace).
		Where("table_name", reindexer.EQ, tableName).
		Where("record_id", reindexer.EQ, recordID).
		Sort("timestamp", false).
		ExecCtx(ctx)
	defer iter.Close()

	if iter.Error() != nil {
		r.store.updateHealthStatus(false, iter.Error())
		return nil, fmt.Errorf("audit query failed: %w", iter.Error())
	}

	entries := make([]*domain.AuditLogEntry, 0)
	for iter.Next() {
		rec, ok := iter.Object().(*auditRecord)
		if !ok {
			continue
		}
		entries = append(entries, &domain.AuditLogEntry{
			ID:        rec.ID,
			TableName: rec.TableName,
			RecordID:  rec.RecordID,
			Action:    domain.AuditAction(rec.Action),
			OldValue:  rec.OldValue,
			NewValue:  rec.NewValue,
			Timestamp: time.Unix(0, rec.Timestamp).UTC(),
			UserID:    rec.UserID,
		})
	}
	return entries, nil
}

func nextDocumentID(db *reindexer.Reindexer) (int64, error) {
	iter := db.Query(documentsNamespace).Sort("id", true).Limit(1).Exec()
	defer iter.Close()

	if iter.Error() != nil {
		return 0, iter.Error()
	}
	for iter.Next() {
		if rec, ok := iter.Object().(*documentRecord); ok {
			return rec.ID + 1, nil
		}
	}
	return 1, nil
}

func toDocumentRecord(doc *domain.Document) (*documentRecord, error) {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document metadata: %w", err)
	}
	return &documentRecord{
		ID:           doc.ID,
		Type:         string(doc.Type),
		Amount:       doc.Amount.String(),
		Status:       string(doc.Status),
		MetadataJSON: string(meta),
		CreatedAt:    doc.CreatedAt.UnixNano(),
		UpdatedAt:    doc.UpdatedAt.UnixNano(),
		CreatedBy:    doc.CreatedBy,
	}, nil
}

func fromDocumentRecord(rec *documentRecord) (*domain.Document, error) {
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document amount: %w", err)
	}
	metadata := map[string]any{}
	if rec.MetadataJSON != "" {
		if err := json.Unmarshal([]byte(rec.MetadataJSON), &metadata); err != nil {
			return nil, fmt.Errorf("failed to decode document metadata: %w", err)
		}
	}
	return &domain.Document{
		ID:        rec.ID,
		Type:      domain.DocumentType(rec.Type),
		Amount:    amount,
		Status:    domain.DocumentStatus(rec.Status),
		Metadata:  metadata,
		CreatedAt: time.Unix(0, rec.CreatedAt).UTC(),
		UpdatedAt: time.Unix(0, rec.UpdatedAt).UTC(),
		CreatedBy: rec.CreatedBy,
	}, nil
}

func toJobRecord(job *domain.Job) (*jobRecord, error) {
	ids, err := json.Marshal(job.DocumentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job document ids: %w", err)
	}
	rec := &jobRecord{
		ID:           job.ID.String(),
		DocumentIDs:  string(ids),
		Status:       string(job.Status),
		CreatedAt:    job.CreatedAt.UnixNano(),
		ErrorMessage: job.ErrorMessage,
	}
	if job.CompletedAt != nil {
		rec.CompletedAt = job.CompletedAt.UnixNano()
	}
	if job.Result != nil {
		result, err := json.Marshal(job.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode job result: %w", err)
		}
		rec.ResultJSON = string(result)
	}
	return rec, nil
}

func fromJobRecord(rec *jobRecord) (*domain.Job, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to decode job id: %w", err)
	}
	var ids []int64
	if rec.DocumentIDs != "" {
		if err := json.Unmarshal([]byte(rec.DocumentIDs), &ids); err != nil {
			return nil, fmt.Errorf("failed to decode job document ids: %w", err)
		}
	}
	job := &domain.Job{
		ID:           id,
		DocumentIDs:  ids,
		Status:       domain.JobStatus(rec.Status),
		CreatedAt:    time.Unix(0, rec.CreatedAt).UTC(),
		ErrorMessage: rec.ErrorMessage,
	}
	if rec.CompletedAt != 0 {
		t := time.Unix(0, rec.CompletedAt).UTC()
		job.CompletedAt = &t
	}
	if rec.ResultJSON != "" {
		var result domain.JobResult
		if err := json.Unmarshal([]byte(rec.ResultJSON), &result); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
		job.Result = &result
	}
	return job, nil
}

// Compile-time interface checks.
var (
	_ domain.DocumentRepository = (*reindexerDocumentRepository)(nil)
	_ domain.JobRepository      = (*reindexerJobRepository)(nil)
	_ domain.AuditRepository    = (*reindexerAuditRepository)(nil)
	_ domain.HealthChecker      = (*ReindexerStore)(nil)
)
