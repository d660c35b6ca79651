// Package usecases holds the application services between the HTTP handlers
// and the domain: document lifecycle operations with their audit side
// effects.
package usecases

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/abyssorcdev/duppla/internal/audit"
	"github.com/abyssorcdev/duppla/internal/domain"
)

// CreateDocumentInput carries the caller-provided fields for a new document.
type CreateDocumentInput struct {
	Type     domain.DocumentType
	Amount   decimal.Decimal
	Metadata map[string]any
	UserID   string
}

// UpdateDocumentInput carries a partial update. Nil fields are left as-is.
type UpdateDocumentInput struct {
	Type     *domain.DocumentType
	Amount   *decimal.Decimal
	Metadata map[string]any
	UserID   string
}

// DocumentUsecase implements document lifecycle operations. Every mutation
// writes a matching audit entry; a mutation whose audit write fails is
// reported as an error even though the document change was persisted.
type DocumentUsecase struct {
	docs   domain.DocumentRepository
	trail  *audit.Trail
	logger *zap.Logger
}

// NewDocumentUsecase creates a new document usecase
func NewDocumentUsecase(docs domain.DocumentRepository, trail *audit.Trail, logger *zap.Logger) *DocumentUsecase {
	return &DocumentUsecase{
		docs:   docs,
		trail:  trail,
		logger: logger,
	}
}

// CreateDocument creates a document in draft status.
func (u *DocumentUsecase) CreateDocument(ctx context.Context, in CreateDocumentInput) (*domain.Document, error) {
	doc, err := domain.NewDocument(in.Type, in.Amount, in.Metadata, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := u.docs.Create(ctx, doc); err != nil {
		return nil, domain.NewInfraError("document create", err)
	}
	if err := u.trail.LogCreated(ctx, domain.AuditTableDocuments, recordID(doc.ID), in.UserID); err != nil {
		return nil, err
	}

	u.logger.Info("document created",
		zap.Int64("document_id", doc.ID),
		zap.String("type", string(doc.Type)),
		zap.String("user_id", in.UserID),
	)
	return doc, nil
}

// GetDocument fetches a document by id.
func (u *DocumentUsecase) GetDocument(ctx context.Context, id int64) (*domain.Document, error) {
	return u.docs.GetByID(ctx, id)
}

// UpdateDocument applies a partial update to a draft document.
func (u *DocumentUsecase) UpdateDocument(ctx context.Context, id int64, in UpdateDocumentInput) (*domain.Document, error) {
	doc, err := u.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldSnapshot := documentSnapshot(doc)
	if err := doc.Update(in.Type, in.Amount, in.Metadata); err != nil {
		return nil, err
	}
	if err := u.docs.Update(ctx, doc); err != nil {
		return nil, domain.NewInfraError("document update", err)
	}
	if err := u.trail.LogFieldUpdated(ctx, domain.AuditTableDocuments,
		recordID(doc.ID), oldSnapshot, documentSnapshot(doc), in.UserID); err != nil {
		return nil, err
	}

	u.logger.Info("document updated",
		zap.Int64("document_id", doc.ID),
		zap.String("user_id", in.UserID),
	)
	return doc, nil
}

// ChangeDocumentStatus moves a document along its lifecycle. Invalid
// transitions return domain.ErrInvalidTransition.
func (u *DocumentUsecase) ChangeDocumentStatus(ctx context.Context, id int64, newStatus domain.DocumentStatus, userID string) (*domain.Document, error) {
	doc, err := u.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldStatus := doc.Status
	if err := doc.ChangeStatus(newStatus); err != nil {
		return nil, err
	}
	if err := u.docs.Update(ctx, doc); err != nil {
		return nil, domain.NewInfraError("document update", err)
	}
	if err := u.trail.LogStateChange(ctx, domain.AuditTableDocuments,
		recordID(doc.ID), string(oldStatus), string(doc.Status), userID); err != nil {
		return nil, err
	}

	u.logger.Info("document status changed",
		zap.Int64("document_id", doc.ID),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(doc.Status)),
		zap.String("user_id", userID),
	)
	return doc, nil
}

// ListDocuments returns a filtered page of documents.
func (u *DocumentUsecase) ListDocuments(ctx context.Context, filter domain.DocumentFilter, params domain.PaginationParams) (*domain.PaginatedDocuments, error) {
	return u.docs.List(ctx, filter, params)
}

// GetAuditTrail returns the audit history for one document.
func (u *DocumentUsecase) GetAuditTrail(ctx context.Context, id int64) ([]*domain.AuditLogEntry, error) {
	if _, err := u.docs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return u.trail.ListByRecord(ctx, domain.AuditTableDocuments, recordID(id))
}

func recordID(id int64) string {
	return fmt.Sprintf("%d", id)
}

// documentSnapshot summarizes the auditable fields of a document.
func documentSnapshot(doc *domain.Document) string {
	return fmt.Sprintf("type=%s amount=%s metadata_keys=%d", doc.Type, doc.Amount, len(doc.Metadata))
}
