package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abyssorcdev/duppla/internal/batch"
	"github.com/abyssorcdev/duppla/internal/domain"
	"github.com/abyssorcdev/duppla/internal/middleware"
)

// BatchHandler handles HTTP requests for batch jobs
type BatchHandler struct {
	processor *batch.Processor
	jobs      domain.JobRepository
	logger    *zap.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(processor *batch.Processor, jobs domain.JobRepository, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{
		processor: processor,
		jobs:      jobs,
		logger:    logger,
	}
}

type submitBatchRequest struct {
	DocumentIDs []int64 `json:"document_ids"`
}

// SubmitBatch handles POST /batches. The job is accepted for asynchronous
// processing; the response carries the job id to poll.
func (h *BatchHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req submitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request body",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		respondError(w, h.logger, http.StatusBadRequest, "invalid request body", requestID)
		return
	}

	job, err := h.processor.SubmitBatch(ctx, req.DocumentIDs)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyBatch):
			respondError(w, h.logger, http.StatusBadRequest, "document_ids must not be empty", requestID)
		case errors.Is(err, domain.ErrNotFound):
			respondError(w, h.logger, http.StatusUnprocessableEntity, err.Error(), requestID)
		default:
			h.logger.Error("failed to submit batch",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
			respondError(w, h.logger, http.StatusInternalServerError, "failed to submit batch", requestID)
		}
		return
	}

	respondJSON(w, h.logger, http.StatusAccepted, job, requestID)
}

// GetJob handles GET /batches/{id}
func (h *BatchHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "id must be a valid UUID", requestID)
		return
	}

	job, err := h.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, h.logger, http.StatusNotFound, "job not found", requestID)
			return
		}
		h.logger.Error("failed to get job",
			zap.String("request_id", requestID),
			zap.String("job_id", id.String()),
			zap.Error(err),
		)
		respondError(w, h.logger, http.StatusInternalServerError, "failed to get job", requestID)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, job, requestID)
}

// ListJobs handles GET /batches with an optional status filter.
func (h *BatchHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	page, perPage, err := parsePaginationParams(r)
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	var status domain.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = domain.JobStatus(raw)
		if !domain.IsValidJobStatus(status) {
			respondError(w, h.logger, http.StatusBadRequest,
				"status must be one of pending, processing, completed, failed", requestID)
			return
		}
	}

	params := domain.PaginationParams{
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}

	result, err := h.jobs.List(ctx, status, params)
	if err != nil {
		h.logger.Error("failed to list jobs",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		respondError(w, h.logger, http.StatusInternalServerError, "failed to list jobs", requestID)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, paginatedResponse(result.Items, result.Total, page, perPage), requestID)
}
