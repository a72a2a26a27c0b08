package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/listsync/internal/provider"
	"github.com/listsync/internal/storage"
	"github.com/listsync/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeSessionExpired = "SESSION_EXPIRED"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeUnavailable    = "SERVICE_UNAVAILABLE"
)

// mapServiceError maps provider and storage errors to HTTP status codes.
func mapServiceError(err error) (int, string, string) {
	switch {
	case errors.Is(err, storage.ErrOperationNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Operation not found"
	case errors.Is(err, storage.ErrNotCancellable):
		return http.StatusConflict, ErrCodeConflict, "Operation has already started or finished"
	case provider.IsSessionExpired(err):
		return http.StatusUnauthorized, ErrCodeSessionExpired, "Session expired, re-authentication required"
	case provider.IsNotFound(err):
		return http.StatusNotFound, ErrCodeNotFound, err.Error()
	case provider.IsDuplicateMovie(err):
		return http.StatusConflict, ErrCodeConflict, err.Error()
	}

	var serviceErr *types.ServiceError
	if errors.As(err, &serviceErr) {
		switch serviceErr.Code {
		case "FORBIDDEN":
			return http.StatusForbidden, ErrCodeForbidden, serviceErr.Message
		case "UNAUTHORIZED":
			return http.StatusUnauthorized, ErrCodeUnauthorized, serviceErr.Message
		}
	}

	var provErr *provider.Error
	if errors.As(err, &provErr) {
		switch provErr.Class {
		case provider.ClassPermanent:
			return http.StatusBadRequest, ErrCodeInvalidInput, provErr.Message
		case provider.ClassTransient:
			return http.StatusServiceUnavailable, ErrCodeUnavailable, provErr.Message
		}
	}

	return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
}
