// Package audit provides the application-level audit trail. It is the sole
// audit-writing path: there is no trigger-level duplication to coordinate
// with, and append failures always propagate to the caller.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abyssorcdev/duppla/internal/domain"
)

// Trail appends immutable change records. Every state transition performed by
// the batch processor goes through here exactly once; a failed append fails
// the surrounding operation rather than being swallowed.
type Trail struct {
	repo   domain.AuditRepository
	logger *zap.Logger
}

// NewTrail creates an audit trail over the given repository.
func NewTrail(repo domain.AuditRepository, logger *zap.Logger) *Trail {
	return &Trail{
		repo:   repo,
		logger: logger,
	}
}

// Append records one audit entry. oldValue and newValue may be empty for
// actions that have no before/after pair (e.g. created).
func (t *Trail) Append(ctx context.Context, tableName, recordID string, action domain.AuditAction, oldValue, newValue, userID string) error {
	entry := &domain.AuditLogEntry{
		TableName: tableName,
		RecordID:  recordID,
		Action:    action,
		OldValue:  oldValue,
		NewValue:  newValue,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
	}

	if err := t.repo.Append(ctx, entry); err != nil {
		t.logger.Error("audit append failed",
			zap.String("table", tableName),
			zap.String("record_id", recordID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return fmt.Errorf("audit append: %w", err)
	}

	t.logger.Debug("audit entry appended",
		zap.String("table", tableName),
		zap.String("record_id", recordID),
		zap.String("action", string(action)),
	)
	return nil
}

// LogCreated records the creation of a record.
func (t *Trail) LogCreated(ctx context.Context, tableName, recordID, userID string) error {
	return t.Append(ctx, tableName, recordID, domain.AuditActionCreated, "", "", userID)
}

// LogStateChange records a status transition with its before/after values.
func (t *Trail) LogStateChange(ctx context.Context, tableName, recordID, oldState, newState, userID string) error {
	return t.Append(ctx, tableName, recordID, domain.AuditActionStateChange, oldState, newState, userID)
}

// LogFieldUpdated records a field change with its before/after values.
func (t *Trail) LogFieldUpdated(ctx context.Context, tableName, recordID, oldValue, newValue, userID string) error {
	return t.Append(ctx, tableName, recordID, domain.AuditActionFieldUpdated, oldValue, newValue, userID)
}

// ListByRecord returns the audit history of one record, oldest first.
func (t *Trail) ListByRecord(ctx context.Context, tableName, recordID string) ([]*domain.AuditLogEntry, error) {
	entries, err := t.repo.ListByRecord(ctx, tableName, recordID)
	if err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	return entries, nil
}
