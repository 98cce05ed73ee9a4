package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/processors"
)

type APIHandler struct {
	storage    interfaces.StorageManager
	processors *processors.Registry
	logger     arbor.ILogger
}

func NewAPIHandler(storage interfaces.StorageManager, procRegistry *processors.Registry, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		storage:    storage,
		processors: procRegistry,
		logger:     logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusHandler returns job counts by status for the dashboard
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	counts := make(map[string]int)
	for _, status := range []string{"pending", "running", "success", "error"} {
		count, err := h.storage.JobStorage().CountJobs(r.Context(), &interfaces.JobListOptions{Status: status})
		if err != nil {
			h.logger.Error().Err(err).Str("status", status).Msg("Failed to count jobs")
			WriteError(w, http.StatusInternalServerError, "failed to count jobs")
			return
		}
		counts[status] = count
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":       counts,
		"processors": h.processors.Describe(),
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
