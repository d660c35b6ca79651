package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abyssorcdev/duppla/internal/audit"
	"github.com/abyssorcdev/duppla/internal/batch"
	"github.com/abyssorcdev/duppla/internal/domain"
	"github.com/abyssorcdev/duppla/internal/notify"
	"github.com/abyssorcdev/duppla/internal/repositories"
	"github.com/abyssorcdev/duppla/internal/usecases"
)

type apiFixture struct {
	docs   *repositories.MemoryDocumentRepository
	jobs   *repositories.MemoryJobRepository
	router chi.Router
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	docs := repositories.NewMemoryDocumentRepository()
	jobs := repositories.NewMemoryJobRepository()
	trail := audit.NewTrail(repositories.NewMemoryAuditRepository(), logger)
	dispatcher := notify.NewDispatcher(nil, logger)

	processor := batch.NewProcessor(docs, jobs, trail, dispatcher, logger, batch.Options{
		Workers: 2,
		Latency: func(context.Context) {},
	})
	usecase := usecases.NewDocumentUsecase(docs, trail, logger)

	docHandler := NewDocumentHandler(usecase, logger)
	batchHandler := NewBatchHandler(processor, jobs, logger)

	r := chi.NewRouter()
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", docHandler.ListDocuments)
		r.Post("/", docHandler.CreateDocument)
		r.Get("/{id}", docHandler.GetDocument)
		r.Patch("/{id}", docHandler.UpdateDocument)
		r.Post("/{id}/status", docHandler.ChangeStatus)
		r.Get("/{id}/audit", docHandler.GetAuditTrail)
	})
	r.Route("/batches", func(r chi.Router) {
		r.Get("/", batchHandler.ListJobs)
		r.Post("/", batchHandler.SubmitBatch)
		r.Get("/{id}", batchHandler.GetJob)
	})

	return &apiFixture{docs: docs, jobs: jobs, router: r}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) createDocument(t *testing.T) int64 {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/documents", map[string]any{
		"type":   "invoice",
		"amount": "1500.50",
		"metadata": map[string]any{
			"client": "acme",
			"email":  "billing@acme.test",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var doc domain.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	return doc.ID
}

// TestCreateDocumentEndpoint tests POST /documents
func TestCreateDocumentEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("creates draft", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/documents", map[string]any{
			"type":   "invoice",
			"amount": "250",
			"metadata": map[string]any{
				"client": "acme",
			},
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var doc domain.Document
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, domain.DocumentStatusDraft, doc.Status)
		assert.NotZero(t, doc.ID)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/documents", map[string]any{
			"type":   "contract",
			"amount": "250",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/documents", map[string]any{
			"type":   "invoice",
			"amount": "0",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// TestGetDocumentEndpoint tests GET /documents/{id}
func TestGetDocumentEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createDocument(t)

	t.Run("found", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, fmt.Sprintf("/documents/%d", id), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var doc domain.Document
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, id, doc.ID)
	})

	t.Run("missing", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/documents/999", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/documents/abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// TestUpdateDocumentEndpoint tests PATCH /documents/{id}
func TestUpdateDocumentEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createDocument(t)

	t.Run("partial update", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, fmt.Sprintf("/documents/%d", id), map[string]any{
			"amount": "999",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var doc domain.Document
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, "999", doc.Amount.String())
		assert.Equal(t, domain.DocumentTypeInvoice, doc.Type)
	})

	t.Run("non-draft conflicts", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, fmt.Sprintf("/documents/%d/status", id), map[string]any{
			"status": "pending",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodPatch, fmt.Sprintf("/documents/%d", id), map[string]any{
			"amount": "1",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

// TestChangeStatusEndpoint tests POST /documents/{id}/status
func TestChangeStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createDocument(t)

	t.Run("valid transition", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, fmt.Sprintf("/documents/%d/status", id), map[string]any{
			"status": "pending",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var doc domain.Document
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, domain.DocumentStatusPending, doc.Status)
	})

	t.Run("invalid transition conflicts", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, fmt.Sprintf("/documents/%d/status", id), map[string]any{
			"status": "draft",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing status", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, fmt.Sprintf("/documents/%d/status", id), map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// TestListDocumentsEndpoint tests GET /documents
func TestListDocumentsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	for i := 0; i < 3; i++ {
		f.createDocument(t)
	}

	t.Run("paginated envelope", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/documents?page=1&per_page=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data       []domain.Document `json:"data"`
			Pagination struct {
				Page       int `json:"page"`
				PerPage    int `json:"per_page"`
				Total      int `json:"total"`
				TotalPages int `json:"total_pages"`
			} `json:"pagination"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Data, 2)
		assert.Equal(t, 3, body.Pagination.Total)
		assert.Equal(t, 2, body.Pagination.TotalPages)
	})

	t.Run("status filter", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/documents?status=approved", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data []domain.Document `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Empty(t, body.Data)
	})

	t.Run("bad page parameter", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/documents?page=zero", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// TestAuditTrailEndpoint tests GET /documents/{id}/audit
func TestAuditTrailEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createDocument(t)
	rec := f.do(t, http.MethodPost, fmt.Sprintf("/documents/%d/status", id), map[string]any{
		"status": "pending",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("history", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, fmt.Sprintf("/documents/%d/audit", id), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data []domain.AuditLogEntry `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Data, 2)
		assert.Equal(t, domain.AuditActionCreated, body.Data[0].Action)
		assert.Equal(t, domain.AuditActionStateChange, body.Data[1].Action)
	})

	t.Run("missing document", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/documents/999/audit", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// TestSubmitBatchEndpoint tests POST /batches
func TestSubmitBatchEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createDocument(t)

	t.Run("accepted", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/batches", map[string]any{
			"document_ids": []int64{id},
		})
		require.Equal(t, http.StatusAccepted, rec.Code)

		var job domain.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, domain.JobStatusPending, job.Status)
		assert.Equal(t, []int64{id}, job.DocumentIDs)
	})

	t.Run("empty batch", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/batches", map[string]any{
			"document_ids": []int64{},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown document", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/batches", map[string]any{
			"document_ids": []int64{999},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

// TestGetJobEndpoint tests GET /batches/{id}
func TestGetJobEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createDocument(t)

	rec := f.do(t, http.MethodPost, "/batches", map[string]any{
		"document_ids": []int64{id},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created domain.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	t.Run("found", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/batches/"+created.ID.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var job domain.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, created.ID, job.ID)
	})

	t.Run("missing", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/batches/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/batches/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// TestListJobsEndpoint tests GET /batches
func TestListJobsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createDocument(t)

	rec := f.do(t, http.MethodPost, "/batches", map[string]any{
		"document_ids": []int64{id},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	t.Run("lists pending jobs", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/batches?status=pending", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data []domain.Job `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Data, 1)
	})

	t.Run("unknown status", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/batches?status=queued", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
