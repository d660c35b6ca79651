package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType classifies a financial document.
type DocumentType string

const (
	DocumentTypeInvoice    DocumentType = "invoice"
	DocumentTypeReceipt    DocumentType = "receipt"
	DocumentTypeVoucher    DocumentType = "voucher"
	DocumentTypeCreditNote DocumentType = "credit_note"
	DocumentTypeDebitNote  DocumentType = "debit_note"
)

// IsValidDocumentType checks whether t is a known document type.
func IsValidDocumentType(t DocumentType) bool {
	switch t {
	case DocumentTypeInvoice, DocumentTypeReceipt, DocumentTypeVoucher,
		DocumentTypeCreditNote, DocumentTypeDebitNote:
		return true
	}
	return false
}

// DocumentStatus represents a state in the document workflow.
//
// Workflow: draft → pending → approved/rejected, with rejected → draft
// re-opening the document for correction.
type DocumentStatus string

const (
	DocumentStatusDraft    DocumentStatus = "draft"
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusApproved DocumentStatus = "approved"
	DocumentStatusRejected DocumentStatus = "rejected"
)

const (
	// MaxMetadataKeys caps the number of metadata entries a document may carry.
	MaxMetadataKeys = 20

	// Metadata keys written by automated batch processing.
	MetadataKeyProcessedByJob  = "processed_by_job"
	MetadataKeyRejectionReason = "rejection_reason"
)

// Rejection reasons produced by automated processing.
const (
	RejectionReasonAmountExceedsLimit    = "amount_exceeds_limit"
	RejectionReasonMissingRequiredFields = "missing_required_fields"
)

// AutoProcessingAmountLimit is the largest amount eligible for automated
// approval routing; anything above it requires manual review.
var AutoProcessingAmountLimit = decimal.RequireFromString("10000000")

// AutoProcessingRequiredMetadata lists the metadata keys a document must carry
// to pass automated processing.
var AutoProcessingRequiredMetadata = []string{"client", "email"}

// Document is a financial document (invoice, receipt, voucher, ...) with its
// lifecycle state and flexible metadata.
type Document struct {
	ID        int64          `json:"id" reindex:"id,,pk"`
	Type      DocumentType   `json:"type" reindex:"type"`
	Amount    decimal.Decimal `json:"amount" reindex:"-"`
	Status    DocumentStatus `json:"status" reindex:"status"`
	Metadata  map[string]any `json:"metadata" reindex:"-"`
	CreatedAt time.Time      `json:"created_at" reindex:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" reindex:"updated_at"`
	CreatedBy string         `json:"created_by,omitempty" reindex:"created_by"`
}

// NewDocument builds a draft document after validating the business invariants.
func NewDocument(docType DocumentType, amount decimal.Decimal, metadata map[string]any, createdBy string) (*Document, error) {
	if !IsValidDocumentType(docType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDocumentType, docType)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if len(metadata) > MaxMetadataKeys {
		return nil, fmt.Errorf("%w: %d keys", ErrMetadataTooLarge, len(metadata))
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	now := time.Now().UTC()
	return &Document{
		Type:      docType,
		Amount:    amount,
		Status:    DocumentStatusDraft,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: createdBy,
	}, nil
}

// CanEdit reports whether field updates are allowed in the current state.
// Only draft documents are mutable.
func (d *Document) CanEdit() bool {
	return d.Status == DocumentStatusDraft
}

// ChangeStatus moves the document to newStatus after validating the
// transition against the document state machine.
func (d *Document) ChangeStatus(newStatus DocumentStatus) error {
	if !ValidateDocumentTransition(d.Status, newStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, newStatus)
	}
	d.Status = newStatus
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Update applies field changes to a draft document. Nil arguments leave the
// corresponding field untouched.
func (d *Document) Update(docType *DocumentType, amount *decimal.Decimal, metadata map[string]any) error {
	if !d.CanEdit() {
		return fmt.Errorf("%w: document %d is %s", ErrNotEditable, d.ID, d.Status)
	}
	if docType != nil {
		if !IsValidDocumentType(*docType) {
			return fmt.Errorf("%w: %q", ErrInvalidDocumentType, *docType)
		}
		d.Type = *docType
	}
	if amount != nil {
		if !amount.IsPositive() {
			return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
		}
		d.Amount = *amount
	}
	if metadata != nil {
		if len(metadata) > MaxMetadataKeys {
			return fmt.Errorf("%w: %d keys", ErrMetadataTooLarge, len(metadata))
		}
		d.Metadata = metadata
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// EvaluateForAutoProcessing decides the status a draft document should receive
// from automated batch processing.
//
// Rules, in order:
//  1. amount above AutoProcessingAmountLimit → rejected (manual review required)
//  2. any missing required metadata key → rejected (incomplete document)
//  3. otherwise → pending (ready for human review)
//
// Pure function over (Amount, Metadata); the same input always yields the same
// (status, reason) pair.
func (d *Document) EvaluateForAutoProcessing() (DocumentStatus, string) {
	if d.Amount.GreaterThan(AutoProcessingAmountLimit) {
		return DocumentStatusRejected, RejectionReasonAmountExceedsLimit
	}
	for _, field := range AutoProcessingRequiredMetadata {
		v, ok := d.Metadata[field]
		if !ok || v == nil || v == "" {
			return DocumentStatusRejected, RejectionReasonMissingRequiredFields
		}
	}
	return DocumentStatusPending, ""
}
