package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/abyssorcdev/duppla/internal/domain"
	"github.com/abyssorcdev/duppla/internal/middleware"
	"github.com/abyssorcdev/duppla/internal/usecases"
)

const (
	defaultPage    = 1
	defaultPerPage = 20
	maxPerPage     = 100

	// anonymousUserID is recorded when the request carries no user header.
	anonymousUserID = "anonymous"
)

// HeaderUserID identifies the acting user for audit attribution.
const HeaderUserID = "X-User-ID"

// DocumentHandler handles HTTP requests for documents
type DocumentHandler struct {
	usecase *usecases.DocumentUsecase
	logger  *zap.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(usecase *usecases.DocumentUsecase, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		usecase: usecase,
		logger:  logger,
	}
}

type createDocumentRequest struct {
	Type     domain.DocumentType `json:"type"`
	Amount   decimal.Decimal     `json:"amount"`
	Metadata map[string]any      `json:"metadata"`
}

type updateDocumentRequest struct {
	Type     *domain.DocumentType `json:"type"`
	Amount   *decimal.Decimal     `json:"amount"`
	Metadata map[string]any       `json:"metadata"`
}

type changeStatusRequest struct {
	Status domain.DocumentStatus `json:"status"`
}

// CreateDocument handles POST /documents
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request body",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		respondError(w, h.logger, http.StatusBadRequest, "invalid request body", requestID)
		return
	}

	doc, err := h.usecase.CreateDocument(ctx, usecases.CreateDocumentInput{
		Type:     req.Type,
		Amount:   req.Amount,
		Metadata: req.Metadata,
		UserID:   userID(r),
	})
	if err != nil {
		h.respondDomainError(w, r, err, "failed to create document")
		return
	}

	respondJSON(w, h.logger, http.StatusCreated, doc, requestID)
}

// GetDocument handles GET /documents/{id}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.usecase.GetDocument(ctx, id)
	if err != nil {
		h.respondDomainError(w, r, err, "failed to get document")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, doc, requestID)
}

// UpdateDocument handles PATCH /documents/{id}. Only draft documents accept
// updates; absent fields keep their current values.
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	var req updateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request body",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		respondError(w, h.logger, http.StatusBadRequest, "invalid request body", requestID)
		return
	}

	doc, err := h.usecase.UpdateDocument(ctx, id, usecases.UpdateDocumentInput{
		Type:     req.Type,
		Amount:   req.Amount,
		Metadata: req.Metadata,
		UserID:   userID(r),
	})
	if err != nil {
		h.respondDomainError(w, r, err, "failed to update document")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, doc, requestID)
}

// ChangeStatus handles POST /documents/{id}/status
func (h *DocumentHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "invalid request body", requestID)
		return
	}
	if req.Status == "" {
		respondError(w, h.logger, http.StatusBadRequest, "status is required", requestID)
		return
	}

	doc, err := h.usecase.ChangeDocumentStatus(ctx, id, req.Status, userID(r))
	if err != nil {
		h.respondDomainError(w, r, err, "failed to change document status")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, doc, requestID)
}

// ListDocuments handles GET /documents with status/type filters and
// pagination.
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	page, perPage, err := parsePaginationParams(r)
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	filter := domain.DocumentFilter{
		Status: domain.DocumentStatus(r.URL.Query().Get("status")),
		Type:   domain.DocumentType(r.URL.Query().Get("type")),
	}

	params := domain.PaginationParams{
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}

	result, err := h.usecase.ListDocuments(ctx, filter, params)
	if err != nil {
		h.respondDomainError(w, r, err, "failed to list documents")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, paginatedResponse(result.Items, result.Total, page, perPage), requestID)
}

// GetAuditTrail handles GET /documents/{id}/audit
func (h *DocumentHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	entries, err := h.usecase.GetAuditTrail(ctx, id)
	if err != nil {
		h.respondDomainError(w, r, err, "failed to get audit trail")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]any{"data": entries}, requestID)
}

// documentID parses the {id} path parameter, writing a 400 on failure.
func (h *DocumentHandler) documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	requestID := middleware.GetRequestID(r.Context())
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		respondError(w, h.logger, http.StatusBadRequest, "id must be a positive integer", requestID)
		return 0, false
	}
	return id, true
}

// respondDomainError maps domain errors onto HTTP statuses.
func (h *DocumentHandler) respondDomainError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	requestID := middleware.GetRequestID(r.Context())

	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, h.logger, http.StatusNotFound, "document not found", requestID)
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotEditable):
		respondError(w, h.logger, http.StatusConflict, err.Error(), requestID)
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidDocumentType),
		errors.Is(err, domain.ErrMetadataTooLarge):
		respondError(w, h.logger, http.StatusBadRequest, err.Error(), requestID)
	default:
		h.logger.Error(logMsg,
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		respondError(w, h.logger, http.StatusInternalServerError, logMsg, requestID)
	}
}

// userID extracts the acting user from the request headers.
func userID(r *http.Request) string {
	if id := r.Header.Get(HeaderUserID); id != "" {
		return id
	}
	return anonymousUserID
}

// parsePaginationParams parses and validates pagination parameters
func parsePaginationParams(r *http.Request) (page, perPage int, err error) {
	pageStr := r.URL.Query().Get("page")
	if pageStr == "" {
		page = defaultPage
	} else {
		page, err = strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("invalid page parameter: must be a positive integer")
		}
	}

	perPageStr := r.URL.Query().Get("per_page")
	if perPageStr == "" {
		perPage = defaultPerPage
	} else {
		perPage, err = strconv.Atoi(perPageStr)
		if err != nil || perPage < 1 {
			return 0, 0, fmt.Errorf("invalid per_page parameter: must be a positive integer")
		}
		if perPage > maxPerPage {
			perPage = maxPerPage
		}
	}

	return page, perPage, nil
}

// paginatedResponse builds the list envelope shared by document and job
// listings.
func paginatedResponse(items any, total, page, perPage int) map[string]any {
	return map[string]any{
		"data": items,
		"pagination": map[string]any{
			"page":        page,
			"per_page":    perPage,
			"total":       total,
			"total_pages": (total + perPage - 1) / perPage,
		},
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, logger *zap.Logger, status int, message, requestID string) {
	respondJSON(w, logger, status, map[string]string{
		"error":      message,
		"request_id": requestID,
	}, requestID)
}
