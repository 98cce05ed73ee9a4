// -----------------------------------------------------------------------
// Job Handler - Submission, inspection, cancellation and retry of jobs
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
	"github.com/ternarybob/tracto/internal/orchestrator"
)

// SubmitJobRequest is the POST /api/jobs request body
type SubmitJobRequest struct {
	Kind     string                 `json:"kind" validate:"required"`
	Input    models.InputDescriptor `json:"input"`
	UseCache *bool                  `json:"use_cache,omitempty"`
	BatchID  string                 `json:"batch_id,omitempty"`
}

type JobHandler struct {
	orchestrator *orchestrator.Service
	storage      interfaces.StorageManager
	validate     *validator.Validate
	logger       arbor.ILogger
}

func NewJobHandler(orch *orchestrator.Service, storage interfaces.StorageManager, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		orchestrator: orch,
		storage:      storage,
		validate:     validator.New(),
		logger:       logger,
	}
}

// SubmitHandler handles POST /api/jobs
func (h *JobHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req SubmitJobRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	job, err := h.orchestrator.Submit(r.Context(), orchestrator.JobRequest{
		Kind:     models.ProcessorKind(req.Kind),
		Input:    req.Input,
		UseCache: req.UseCache,
	}, req.BatchID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// ListJobsHandler handles GET /api/jobs with status/kind/batch_id filters
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit, offset := GetPaginationParams(r)
	opts := &interfaces.JobListOptions{
		Status:  r.URL.Query().Get("status"),
		Kind:    r.URL.Query().Get("kind"),
		BatchID: r.URL.Query().Get("batch_id"),
		Limit:   limit,
		Offset:  offset,
	}

	jobs, err := h.storage.JobStorage().ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	total, err := h.storage.JobStorage().CountJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count jobs")
		WriteError(w, http.StatusInternalServerError, "failed to count jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := extractJobID(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.storage.JobStorage().GetJob(r.Context(), jobID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// CancelJobHandler handles POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	jobID := extractJobID(r.URL.Path)
	if err := h.orchestrator.Cancel(r.Context(), jobID); err != nil {
		WriteDomainError(w, err)
		return
	}

	job, err := h.storage.JobStorage().GetJob(r.Context(), jobID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// RetryJobHandler handles POST /api/jobs/{id}/retry
func (h *JobHandler) RetryJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	jobID := extractJobID(r.URL.Path)
	clone, err := h.orchestrator.Retry(r.Context(), jobID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, clone)
}

// extractJobID pulls the job ID from /api/jobs/{id} or /api/jobs/{id}/action
func extractJobID(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/jobs/")
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}
