package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/abyssorcdev/duppla/internal/domain"
)

// Per-document outcome statuses inside a job result.
const (
	detailStatusSuccess = "success"
	detailStatusFailed  = "failed"

	// skippedReason marks documents that were already advanced or already
	// queued; re-submitting them is not an error.
	skippedReason = "skipped"
)

// handlerFunc advances one document according to its current status. The
// returned detail always describes the outcome; a non-nil error is an
// infrastructure failure that aborts the whole job (business failures are
// recorded in the detail and never returned as errors).
type handlerFunc func(ctx context.Context, job *domain.Job, doc *domain.Document) (domain.DocumentDetail, error)

// buildHandlers wires the fixed status → handler table. Adding a status means
// adding one handler and one entry here; there is no branching elsewhere.
func (p *Processor) buildHandlers() map[domain.DocumentStatus]handlerFunc {
	return map[domain.DocumentStatus]handlerFunc{
		domain.DocumentStatusDraft:    p.handleDraft,
		domain.DocumentStatusRejected: p.handleRejected,
		domain.DocumentStatusPending:  p.handleNoop,
		domain.DocumentStatusApproved: p.handleNoop,
	}
}

// handleDraft evaluates the automated business rules and advances a draft
// document to pending or rejected.
func (p *Processor) handleDraft(ctx context.Context, job *domain.Job, doc *domain.Document) (domain.DocumentDetail, error) {
	oldStatus := doc.Status
	target, reason := doc.EvaluateForAutoProcessing()

	doc.Metadata[domain.MetadataKeyProcessedByJob] = job.ID.String()
	if reason != "" {
		doc.Metadata[domain.MetadataKeyRejectionReason] = reason
	}

	// The table above guarantees draft → pending/rejected is legal, but an
	// illegal transition is a per-document failure, never a job failure.
	if err := doc.ChangeStatus(target); err != nil {
		p.logger.Warn("draft handler produced an invalid transition",
			zap.Int64("document_id", doc.ID),
			zap.String("from", string(oldStatus)),
			zap.String("to", string(target)),
		)
		return domain.DocumentDetail{
			DocumentID: doc.ID,
			Status:     detailStatusFailed,
			Error:      fmt.Sprintf("invalid transition: %s -> %s", oldStatus, target),
		}, nil
	}

	if err := p.persistTransition(ctx, doc, oldStatus); err != nil {
		return domain.DocumentDetail{}, err
	}

	return domain.DocumentDetail{
		DocumentID: doc.ID,
		Status:     detailStatusSuccess,
		NewStatus:  string(target),
		Reason:     reason,
	}, nil
}

// handleRejected resets a rejected document to draft so its owner can correct
// and resubmit it. Always succeeds.
func (p *Processor) handleRejected(ctx context.Context, job *domain.Job, doc *domain.Document) (domain.DocumentDetail, error) {
	oldStatus := doc.Status
	doc.Metadata[domain.MetadataKeyProcessedByJob] = job.ID.String()
	delete(doc.Metadata, domain.MetadataKeyRejectionReason)

	if err := doc.ChangeStatus(domain.DocumentStatusDraft); err != nil {
		return domain.DocumentDetail{
			DocumentID: doc.ID,
			Status:     detailStatusFailed,
			Error:      err.Error(),
		}, nil
	}

	if err := p.persistTransition(ctx, doc, oldStatus); err != nil {
		return domain.DocumentDetail{}, err
	}

	return domain.DocumentDetail{
		DocumentID: doc.ID,
		Status:     detailStatusSuccess,
		NewStatus:  string(domain.DocumentStatusDraft),
	}, nil
}

// handleNoop reports already-advanced or already-queued documents as
// skipped-success: re-submitting them is idempotent, not an error.
func (p *Processor) handleNoop(_ context.Context, _ *domain.Job, doc *domain.Document) (domain.DocumentDetail, error) {
	return domain.DocumentDetail{
		DocumentID: doc.ID,
		Status:     detailStatusSuccess,
		NewStatus:  string(doc.Status),
		Reason:     skippedReason,
	}, nil
}

// persistTransition writes the document and its audit entry. Both writes are
// part of the same logical transaction: a failure of either propagates as an
// infrastructure error and the document counts as not transitioned.
func (p *Processor) persistTransition(ctx context.Context, doc *domain.Document, oldStatus domain.DocumentStatus) error {
	if err := p.docs.Update(ctx, doc); err != nil {
		return domain.NewInfraError("document update", err)
	}
	if err := p.trail.LogStateChange(ctx, domain.AuditTableDocuments,
		fmt.Sprintf("%d", doc.ID), string(oldStatus), string(doc.Status), systemUserID); err != nil {
		return domain.NewInfraError("audit append", err)
	}
	return nil
}
