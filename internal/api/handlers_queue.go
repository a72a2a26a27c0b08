package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleQueueStats handles GET /api/queue/stats
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	stats, err := s.listService.QueueStats(r.Context(), userID)
	if err != nil {
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// handleListOperations handles GET /api/queue/operations
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	ops, err := s.listService.ListOperations(r.Context(), userID)
	if err != nil {
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"operations": ops})
}

// handleRetryNow handles POST /api/queue/retry
func (s *Server) handleRetryNow(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	requeued, err := s.listService.RetryNow(r.Context(), userID)
	if err != nil {
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"requeued": requeued})
}

// handleCancelOperation handles DELETE /api/queue/operations/:id
func (s *Server) handleCancelOperation(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	operationID := mux.Vars(r)["id"]

	if err := s.listService.CancelOperation(r.Context(), operationID, userID); err != nil {
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"cancelled": operationID})
}
