package domain

import "time"

// AuditAction identifies what happened to a record.
type AuditAction string

const (
	AuditActionCreated      AuditAction = "created"
	AuditActionStateChange  AuditAction = "state_change"
	AuditActionFieldUpdated AuditAction = "field_updated"
	AuditActionDeleted      AuditAction = "deleted"
)

// AuditLogEntry is one immutable entry in the audit trail. Entries are keyed
// by (TableName, RecordID) rather than a foreign key so the same table covers
// documents (integer ids) and jobs (UUIDs). Entries are append-only and never
// mutated after the fact.
type AuditLogEntry struct {
	ID        int64       `json:"id" reindex:"id,,pk"`
	TableName string      `json:"table_name" reindex:"table_name"`
	RecordID  string      `json:"record_id" reindex:"record_id"`
	Action    AuditAction `json:"action" reindex:"action"`
	OldValue  string      `json:"old_value,omitempty" reindex:"old_value"`
	NewValue  string      `json:"new_value,omitempty" reindex:"new_value"`
	Timestamp time.Time   `json:"timestamp" reindex:"timestamp"`
	UserID    string      `json:"user_id,omitempty" reindex:"user_id"`
}

// Audited table names.
const (
	AuditTableDocuments = "documents"
	AuditTableJobs      = "jobs"
)
