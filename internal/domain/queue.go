package domain

import (
	"context"

	"github.com/google/uuid"
)

// TaskQueue defines the interface for enqueueing batch jobs for asynchronous
// execution. The queue guarantees at-most-one active execution per job under
// normal operation but delivers at-least-once: a crashed execution may be
// retried, so the execution entry point must be idempotent.
type TaskQueue interface {
	// Enqueue schedules the job for asynchronous execution.
	Enqueue(ctx context.Context, jobID uuid.UUID, documentIDs []int64) error
}

// BatchExecutor is the function signature the queue calls back with. An error
// return signals an infrastructure failure that the queue may retry.
type BatchExecutor func(ctx context.Context, jobID uuid.UUID, documentIDs []int64) error
