// -----------------------------------------------------------------------
// Batch Handler - Batch submission, status reporting and deletion
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
	"github.com/ternarybob/tracto/internal/registry"
)

// SubmitBatchRequest is the POST /api/batches request body
type SubmitBatchRequest struct {
	Jobs        []SubmitJobRequest `json:"jobs" validate:"required,min=1,dive"`
	CallbackURL string             `json:"callback_url,omitempty" validate:"omitempty,url"`
}

type BatchHandler struct {
	orchestrator *orchestrator.Service
	batches      *registry.Service
	storage      interfaces.StorageManager
	validate     *validator.Validate
	logger       arbor.ILogger
}

func NewBatchHandler(orch *orchestrator.Service, batches *registry.Service, storage interfaces.StorageManager, logger arbor.ILogger) *BatchHandler {
	return &BatchHandler{
		orchestrator: orch,
		batches:      batches,
		storage:      storage,
		validate:     validator.New(),
		logger:       logger,
	}
}

// SubmitHandler handles POST /api/batches
func (h *BatchHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req SubmitBatchRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	requests := make([]orchestrator.JobRequest, 0, len(req.Jobs))
	for _, jobReq := range req.Jobs {
		requests = append(requests, orchestrator.JobRequest{
			Kind:     models.ProcessorKind(jobReq.Kind),
			Input:    jobReq.Input,
			UseCache: jobReq.UseCache,
		})
	}

	batch, jobs, err := h.orchestrator.SubmitBatch(r.Context(), requests, req.CallbackURL)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"batch": batch,
		"jobs":  jobs,
	})
}

// GetBatchHandler handles GET /api/batches/{id}, returning the derived
// status report.
func (h *BatchHandler) GetBatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	batchID := extractBatchID(r.URL.Path)
	if batchID == "" {
		WriteError(w, http.StatusBadRequest, "batch ID is required")
		return
	}

	report, err := h.batches.Status(r.Context(), batchID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// DeleteBatchHandler handles DELETE /api/batches/{id}
func (h *BatchHandler) DeleteBatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	batchID := extractBatchID(r.URL.Path)
	if err := h.batches.Delete(r.Context(), batchID); err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":   "deleted",
		"batch_id": batchID,
	})
}

// DeliveriesHandler handles GET /api/batches/{id}/deliveries
func (h *BatchHandler) DeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	batchID := extractBatchID(r.URL.Path)
	deliveries, err := h.storage.WebhookStorage().GetDeliveriesByBatch(r.Context(), batchID)
	if err != nil {
		h.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to load deliveries")
		WriteError(w, http.StatusInternalServerError, "failed to load deliveries")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batch_id":   batchID,
		"deliveries": deliveries,
	})
}

// extractBatchID pulls the batch ID from /api/batches/{id} or a subpath
func extractBatchID(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/batches/")
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}
