package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ternarybob/tracto/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteDomainError maps a service error to the right HTTP status
func WriteDomainError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, models.ErrJobNotFound), errors.Is(err, models.ErrBatchNotFound):
		return WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrUnknownProcessorKind):
		return WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrJobAlreadyTerminal):
		return WriteError(w, http.StatusConflict, err.Error())
	}

	var procErr *models.ProcessorError
	if errors.As(err, &procErr) {
		switch procErr.Kind {
		case models.ErrorKindValidation:
			return WriteError(w, http.StatusBadRequest, procErr.Message)
		case models.ErrorKindResourceLimit:
			return WriteError(w, http.StatusTooManyRequests, procErr.Message)
		}
	}
	return WriteError(w, http.StatusInternalServerError, err.Error())
}

// GetPaginationParams extracts limit and offset from the query string.
// Limit defaults to 50 with a ceiling of 500.
func GetPaginationParams(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if v, err := strconv.Atoi(offsetStr); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

// DecodeJSONBody decodes a request body into dst, rejecting unknown fields
func DecodeJSONBody(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
