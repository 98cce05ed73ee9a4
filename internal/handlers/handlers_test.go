package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
	badgerstore "github.com/ternarybob/tracto/internal/storage/badger"
)

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	storage, err := badgerstore.NewManager(arbor.NewLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "handlers-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func seedJob(t *testing.T, storage interfaces.StorageManager, kind models.ProcessorKind) *models.Job {
	t.Helper()
	job := models.NewJob(kind, models.InputDescriptor{Path: "/tmp/input.pdf"}, true)
	require.NoError(t, storage.JobStorage().SaveJob(context.Background(), job))
	return job
}

func TestGetJobHandler(t *testing.T) {
	storage := newTestStorage(t)
	handler := NewJobHandler(nil, storage, arbor.NewLogger())
	job := seedJob(t, storage, models.KindPDF)

	req := httptest.NewRequest("GET", "/api/jobs/"+job.ID, nil)
	rec := httptest.NewRecorder()
	handler.GetJobHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.KindPDF, got.Kind)
	assert.Equal(t, models.JobStatusPending, got.Status)
}

func TestGetJobHandler_NotFound(t *testing.T) {
	storage := newTestStorage(t)
	handler := NewJobHandler(nil, storage, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/jobs/job_missing", nil)
	rec := httptest.NewRecorder()
	handler.GetJobHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobHandler_MethodNotAllowed(t *testing.T) {
	storage := newTestStorage(t)
	handler := NewJobHandler(nil, storage, arbor.NewLogger())

	req := httptest.NewRequest("DELETE", "/api/jobs/job_x", nil)
	rec := httptest.NewRecorder()
	handler.GetJobHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListJobsHandler_FilterByKind(t *testing.T) {
	storage := newTestStorage(t)
	handler := NewJobHandler(nil, storage, arbor.NewLogger())

	seedJob(t, storage, models.KindPDF)
	seedJob(t, storage, models.KindPDF)
	seedJob(t, storage, models.KindMetadata)

	req := httptest.NewRequest("GET", "/api/jobs?kind=pdf", nil)
	rec := httptest.NewRecorder()
	handler.ListJobsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []*models.Job `json:"jobs"`
		Total int           `json:"total"`
		Limit int           `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Jobs, 2)
	assert.Equal(t, 50, resp.Limit)
}

func TestListJobsHandler_Pagination(t *testing.T) {
	storage := newTestStorage(t)
	handler := NewJobHandler(nil, storage, arbor.NewLogger())

	for i := 0; i < 5; i++ {
		seedJob(t, storage, models.KindMetadata)
	}

	req := httptest.NewRequest("GET", "/api/jobs?limit=2&offset=4", nil)
	rec := httptest.NewRecorder()
	handler.ListJobsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []*models.Job `json:"jobs"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Total)
	assert.Len(t, resp.Jobs, 1)
}

func TestWriteDomainError_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"job not found", models.ErrJobNotFound, http.StatusNotFound},
		{"wrapped job not found", fmt.Errorf("%w: job_123", models.ErrJobNotFound), http.StatusNotFound},
		{"batch not found", models.ErrBatchNotFound, http.StatusNotFound},
		{"unknown kind", models.ErrUnknownProcessorKind, http.StatusBadRequest},
		{"already terminal", models.ErrJobAlreadyTerminal, http.StatusConflict},
		{"validation", models.NewValidationError("input path is required"), http.StatusBadRequest},
		{"resource limit", models.NewResourceLimitError("file exceeds 50 MiB"), http.StatusTooManyRequests},
		{"internal", fmt.Errorf("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteDomainError(rec, tt.err)
			assert.Equal(t, tt.expected, rec.Code)
		})
	}
}

func TestGetPaginationParams(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/jobs", nil)
	limit, offset := GetPaginationParams(req)
	assert.Equal(t, 50, limit)
	assert.Equal(t, 0, offset)

	req = httptest.NewRequest("GET", "/api/jobs?limit=25&offset=10", nil)
	limit, offset = GetPaginationParams(req)
	assert.Equal(t, 25, limit)
	assert.Equal(t, 10, offset)

	// Values above the ceiling fall back to the default
	req = httptest.NewRequest("GET", "/api/jobs?limit=9999&offset=-3", nil)
	limit, offset = GetPaginationParams(req)
	assert.Equal(t, 50, limit)
	assert.Equal(t, 0, offset)
}

func TestExtractIDs(t *testing.T) {
	assert.Equal(t, "job_abc", extractJobID("/api/jobs/job_abc"))
	assert.Equal(t, "job_abc", extractJobID("/api/jobs/job_abc/cancel"))
	assert.Equal(t, "", extractJobID("/api/jobs/"))
	assert.Equal(t, "batch_xyz", extractBatchID("/api/batches/batch_xyz"))
	assert.Equal(t, "batch_xyz", extractBatchID("/api/batches/batch_xyz/deliveries"))
}
