// Package batch implements the asynchronous batch document-processing engine:
// job submission, the per-status processing pipeline, and aggregation of
// per-document outcomes into a job result.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abyssorcdev/duppla/internal/audit"
	"github.com/abyssorcdev/duppla/internal/domain"
	"github.com/abyssorcdev/duppla/internal/notify"
)

// systemUserID identifies the batch engine in audit entries.
const systemUserID = "system"

const (
	defaultWorkers       = 4
	defaultMaxLatency    = 30 * time.Millisecond
	documentIDNotFound   = "not_found"
	unhandledStatusError = "unhandled_status"
)

// Options tunes the processor. Zero values fall back to defaults.
type Options struct {
	// Workers bounds the per-document fan-out within one job execution.
	// 1 means sequential processing.
	Workers int

	// Latency simulates variable-latency downstream work per document.
	// Replaceable so tests run instantly; nil installs a small random sleep.
	Latency func(ctx context.Context)
}

// Processor orchestrates batch jobs over documents. One execution owns a job
// at a time; the task queue may deliver the same job more than once, so every
// step checks persisted state before transitioning.
type Processor struct {
	docs       domain.DocumentRepository
	jobs       domain.JobRepository
	trail      *audit.Trail
	dispatcher *notify.Dispatcher
	queue      domain.TaskQueue
	logger     *zap.Logger

	workers  int
	latency  func(ctx context.Context)
	handlers map[domain.DocumentStatus]handlerFunc
}

// NewProcessor creates a batch processor. The task queue is attached
// separately via SetQueue because the queue's executor is the processor
// itself.
func NewProcessor(
	docs domain.DocumentRepository,
	jobs domain.JobRepository,
	trail *audit.Trail,
	dispatcher *notify.Dispatcher,
	logger *zap.Logger,
	opts Options,
) *Processor {
	workers := opts.Workers
	if workers < 1 {
		workers = defaultWorkers
	}
	latency := opts.Latency
	if latency == nil {
		latency = randomLatency
	}

	p := &Processor{
		docs:       docs,
		jobs:       jobs,
		trail:      trail,
		dispatcher: dispatcher,
		logger:     logger,
		workers:    workers,
		latency:    latency,
	}
	p.handlers = p.buildHandlers()
	return p
}

// SetQueue attaches the task queue used by SubmitBatch.
func (p *Processor) SetQueue(queue domain.TaskQueue) {
	p.queue = queue
}

// randomLatency stands in for real downstream calls during processing.
func randomLatency(ctx context.Context) {
	delay := time.Duration(rand.Int63n(int64(defaultMaxLatency)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// SubmitBatch validates the document ids, creates a pending job, and enqueues
// it for asynchronous execution. Validation fails fast: if any id is
// unresolvable no job is created at all.
func (p *Processor) SubmitBatch(ctx context.Context, documentIDs []int64) (*domain.Job, error) {
	if len(documentIDs) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	for _, id := range documentIDs {
		if _, err := p.docs.GetByID(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: document %d", domain.ErrNotFound, id)
			}
			return nil, domain.NewInfraError("document lookup", err)
		}
	}

	job, err := domain.NewJob(documentIDs)
	if err != nil {
		return nil, err
	}
	if err := p.jobs.Create(ctx, job); err != nil {
		return nil, domain.NewInfraError("job create", err)
	}
	if err := p.trail.LogCreated(ctx, domain.AuditTableJobs, job.ID.String(), systemUserID); err != nil {
		return nil, domain.NewInfraError("audit append", err)
	}

	if p.queue != nil {
		if err := p.queue.Enqueue(ctx, job.ID, job.DocumentIDs); err != nil {
			return nil, domain.NewInfraError("enqueue", err)
		}
	}

	p.logger.Info("batch job submitted",
		zap.String("job_id", job.ID.String()),
		zap.Int("documents", len(documentIDs)),
	)
	return job, nil
}

// ExecuteBatch is the queue-invoked entry point. It processes every document
// independently, aggregates the outcomes, and finishes the job. An error
// return signals an infrastructure failure for the queue's retry policy;
// business failures never surface here.
func (p *Processor) ExecuteBatch(ctx context.Context, jobID uuid.UUID, documentIDs []int64) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return domain.NewInfraError("job lookup", err)
	}

	// At-least-once tolerance: the persisted status, not the in-memory view,
	// decides what this delivery should do.
	if job.IsTerminal() {
		p.logger.Info("job already finished, skipping redelivery",
			zap.String("job_id", jobID.String()),
			zap.String("status", string(job.Status)),
		)
		return nil
	}
	if job.Status == domain.JobStatusPending {
		if err := p.transitionJob(ctx, job, func() error { return job.StartProcessing() }); err != nil {
			return err
		}
	}

	p.logger.Info("started processing batch job",
		zap.String("job_id", jobID.String()),
		zap.Int("documents", len(documentIDs)),
	)

	details, infraErr := p.processDocuments(ctx, job, documentIDs)
	if infraErr != nil {
		return p.failJob(ctx, job, documentIDs, infraErr)
	}

	result := buildResult(details)
	if err := p.transitionJob(ctx, job, func() error { return job.Complete(result) }); err != nil {
		return err
	}

	p.logger.Info("completed batch job",
		zap.String("job_id", jobID.String()),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
	)

	p.notify(ctx, job)
	return nil
}

// processDocuments fans the documents out to a bounded worker pool. Each
// document's handler-persist-audit sequence is atomic per document; one
// document's failure never short-circuits the others. Only infrastructure
// failures abort the loop.
func (p *Processor) processDocuments(ctx context.Context, job *domain.Job, documentIDs []int64) ([]domain.DocumentDetail, error) {
	details := make([]domain.DocumentDetail, len(documentIDs))

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		infraMu  sync.Mutex
		infraErr error
	)
	sem := make(chan struct{}, p.workers)

	for i, id := range documentIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id int64) {
			defer wg.Done()
			defer func() { <-sem }()

			detail, err := p.processDocument(workCtx, job, id)
			if err != nil {
				infraMu.Lock()
				if infraErr == nil {
					infraErr = err
				}
				infraMu.Unlock()
				cancel()
				return
			}
			details[i] = detail
		}(i, id)
	}
	wg.Wait()

	if infraErr != nil {
		return nil, infraErr
	}
	return details, nil
}

// processDocument advances a single document through its status-keyed
// handler. Business failures come back inside the detail; only
// infrastructure failures return an error.
func (p *Processor) processDocument(ctx context.Context, job *domain.Job, id int64) (domain.DocumentDetail, error) {
	if err := ctx.Err(); err != nil {
		return domain.DocumentDetail{}, domain.NewInfraError("processing canceled", err)
	}

	p.latency(ctx)

	doc, err := p.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.DocumentDetail{
				DocumentID: id,
				Status:     detailStatusFailed,
				Error:      documentIDNotFound,
			}, nil
		}
		return domain.DocumentDetail{}, domain.NewInfraError("document lookup", err)
	}

	handler, ok := p.handlers[doc.Status]
	if !ok {
		return domain.DocumentDetail{
			DocumentID: id,
			Status:     detailStatusFailed,
			Error:      fmt.Sprintf("%s:%s", unhandledStatusError, doc.Status),
		}, nil
	}

	detail, err := handler(ctx, job, doc)
	if err != nil {
		return domain.DocumentDetail{}, err
	}

	p.logger.Debug("document processed",
		zap.String("job_id", job.ID.String()),
		zap.Int64("document_id", id),
		zap.String("outcome", detail.Status),
	)
	return detail, nil
}

// failJob moves the job to failed after an infrastructure fault, marking
// every document as failed, then returns the original error so the queue can
// retry the execution.
func (p *Processor) failJob(ctx context.Context, job *domain.Job, documentIDs []int64, cause error) error {
	p.logger.Error("critical failure in batch job",
		zap.String("job_id", job.ID.String()),
		zap.Error(cause),
	)

	details := make([]domain.DocumentDetail, len(documentIDs))
	for i, id := range documentIDs {
		details[i] = domain.DocumentDetail{
			DocumentID: id,
			Status:     detailStatusFailed,
			Error:      cause.Error(),
		}
	}
	result := buildResult(details)

	if err := p.transitionJob(ctx, job, func() error { return job.Fail(cause.Error(), result) }); err != nil {
		p.logger.Error("failed to mark job as failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return cause
	}

	p.notify(ctx, job)
	return cause
}

// transitionJob applies a job state change, persists it, and audits it,
// in that order. Job transitions are single-writer: only the orchestrating
// goroutine calls this.
func (p *Processor) transitionJob(ctx context.Context, job *domain.Job, apply func() error) error {
	oldStatus := job.Status
	if err := apply(); err != nil {
		return err
	}
	if err := p.jobs.Update(ctx, job); err != nil {
		return domain.NewInfraError("job update", err)
	}
	if err := p.trail.LogStateChange(ctx, domain.AuditTableJobs,
		job.ID.String(), string(oldStatus), string(job.Status), systemUserID); err != nil {
		return domain.NewInfraError("audit append", err)
	}
	return nil
}

// notify broadcasts the job outcome. Dispatch failures are logged per
// channel and never change the job's terminal status.
func (p *Processor) notify(ctx context.Context, job *domain.Job) {
	if p.dispatcher == nil {
		return
	}
	result := p.dispatcher.Dispatch(ctx, notify.NewPayload(job))
	if !result.AllSucceeded() {
		p.logger.Warn("job notification had channel failures",
			zap.String("job_id", job.ID.String()),
			zap.Strings("failed_channels", result.Failed),
		)
	}
}

func buildResult(details []domain.DocumentDetail) *domain.JobResult {
	result := &domain.JobResult{
		Total:   len(details),
		Details: details,
	}
	for _, d := range details {
		if d.Status == detailStatusSuccess {
			result.Processed++
		} else {
			result.Failed++
		}
	}
	return result
}
