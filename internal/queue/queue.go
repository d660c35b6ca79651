// Package queue is an in-process task queue for batch job executions. It
// gives the processor asynchronous, at-least-once delivery with bounded
// retries, without an external broker.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abyssorcdev/duppla/internal/domain"
)

const (
	defaultWorkers    = 2
	defaultBufferSize = 64
	defaultRetries    = 3
	defaultBaseDelay  = 2 * time.Second
)

// ErrQueueClosed is returned by Enqueue after Stop.
var ErrQueueClosed = errors.New("task queue is closed")

type task struct {
	jobID       uuid.UUID
	documentIDs []int64
	attempt     int
}

// Options tunes the queue. Zero values fall back to defaults.
type Options struct {
	// Workers is the number of concurrent task consumers.
	Workers int
	// BufferSize is the enqueue channel capacity.
	BufferSize int
	// MaxRetries caps the number of executions per task, including the
	// first. Executor errors below the cap re-enqueue with backoff.
	MaxRetries int
	// BaseDelay is the first retry delay; it doubles per attempt.
	BaseDelay time.Duration
}

// Queue fans enqueued batch tasks out to a fixed pool of workers, each
// invoking the executor. A failed execution is retried with exponential
// backoff until MaxRetries is exhausted; the executor owns idempotency.
type Queue struct {
	executor   domain.BatchExecutor
	logger     *zap.Logger
	tasks      chan task
	workers    int
	maxRetries int
	baseDelay  time.Duration

	wg       sync.WaitGroup
	retryWG  sync.WaitGroup
	stopOnce sync.Once
	// execCtx covers running executions; it survives until workers drain.
	execCtx    context.Context
	execCancel context.CancelFunc
	// retryCtx covers pending retry timers; Stop cancels it first so
	// shutdown does not wait out backoff delays.
	retryCtx    context.Context
	retryCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// New creates a queue bound to the executor. Call Start before Enqueue.
func New(executor domain.BatchExecutor, logger *zap.Logger, opts Options) *Queue {
	workers := opts.Workers
	if workers < 1 {
		workers = defaultWorkers
	}
	buffer := opts.BufferSize
	if buffer < 1 {
		buffer = defaultBufferSize
	}
	retries := opts.MaxRetries
	if retries < 1 {
		retries = defaultRetries
	}
	delay := opts.BaseDelay
	if delay <= 0 {
		delay = defaultBaseDelay
	}

	execCtx, execCancel := context.WithCancel(context.Background())
	retryCtx, retryCancel := context.WithCancel(context.Background())
	return &Queue{
		executor:    executor,
		logger:      logger,
		tasks:       make(chan task, buffer),
		workers:     workers,
		maxRetries:  retries,
		baseDelay:   delay,
		execCtx:     execCtx,
		execCancel:  execCancel,
		retryCtx:    retryCtx,
		retryCancel: retryCancel,
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("task queue started", zap.Int("workers", q.workers))
}

// Stop drains the queue: no new tasks are accepted, in-flight executions
// finish, pending retries are abandoned.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		q.retryCancel()
		q.retryWG.Wait()
		close(q.tasks)
		q.wg.Wait()
		q.execCancel()
		q.logger.Info("task queue stopped")
	})
}

// Enqueue schedules a batch execution. The ids slice is not copied; callers
// hand over ownership.
func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID, documentIDs []int64) error {
	return q.enqueue(ctx, task{jobID: jobID, documentIDs: documentIDs, attempt: 1})
}

func (q *Queue) enqueue(ctx context.Context, t task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}

	select {
	case q.tasks <- t:
		q.mu.Unlock()
		return nil
	default:
		q.mu.Unlock()
	}

	// Buffer full: block until there is room or a context ends.
	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.retryCtx.Done():
		return ErrQueueClosed
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log := q.logger.With(zap.Int("worker", id))
	for t := range q.tasks {
		q.execute(log, t)
	}
}

func (q *Queue) execute(log *zap.Logger, t task) {
	err := q.executor(q.execCtx, t.jobID, t.documentIDs)
	if err == nil {
		return
	}

	log.Error("batch execution failed",
		zap.String("job_id", t.jobID.String()),
		zap.Int("attempt", t.attempt),
		zap.Error(err),
	)

	if t.attempt >= q.maxRetries {
		log.Error("batch execution retries exhausted",
			zap.String("job_id", t.jobID.String()),
			zap.Int("attempts", t.attempt),
		)
		return
	}

	delay := q.baseDelay << (t.attempt - 1)
	next := task{jobID: t.jobID, documentIDs: t.documentIDs, attempt: t.attempt + 1}

	q.retryWG.Add(1)
	go func() {
		defer q.retryWG.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.retryCtx.Done():
			return
		case <-timer.C:
		}
		if err := q.enqueue(q.retryCtx, next); err != nil {
			log.Warn("retry dropped, queue closed",
				zap.String("job_id", next.jobID.String()),
			)
		}
	}()
}

var _ domain.TaskQueue = (*Queue)(nil)
