package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/listsync/internal/provider"
	"github.com/listsync/internal/service"
	"github.com/listsync/internal/types"
)

// respondOutcome maps the tri-state facade result to an HTTP response:
// 200 applied, 202 queued (the mutation is durable but not yet real on the
// provider), 4xx/5xx failed.
func respondOutcome(w http.ResponseWriter, outcome *service.Outcome) {
	switch outcome.Disposition {
	case types.DispositionApplied:
		respondJSON(w, http.StatusOK, outcome)
	case types.DispositionQueued:
		respondJSON(w, http.StatusAccepted, outcome)
	case types.DispositionFailed:
		statusCode, code, message := mapServiceError(outcome.Err)
		respondError(w, statusCode, code, message, map[string]interface{}{
			"reason": outcome.Reason,
		})
	default:
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Unknown outcome disposition", nil)
	}
}

// ownerID extracts the authenticated user id. The auth subsystem in front
// of this service validates the session and injects the header.
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return "", false
	}
	return userID, true
}

// handleCreateList handles POST /api/lists
func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPublic    bool   `json:"isPublic"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "List name required", nil)
		return
	}

	respondOutcome(w, s.listService.CreateList(r.Context(), userID, req.Name, req.Description, req.IsPublic))
}

// handleGetList handles GET /api/lists/:id
func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	listID := mux.Vars(r)["id"]

	list, err := s.listService.GetList(r.Context(), listID, userID)
	if err != nil {
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, list)
}

// handleUpdateList handles PATCH /api/lists/:id
func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	listID := mux.Vars(r)["id"]

	var req struct {
		Name        *string `json:"name,omitempty"`
		Description *string `json:"description,omitempty"`
		IsPublic    *bool   `json:"isPublic,omitempty"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if req.Name == nil && req.Description == nil && req.IsPublic == nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "No fields to update", nil)
		return
	}

	fields := provider.ListFields{
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	}

	respondOutcome(w, s.listService.UpdateList(r.Context(), listID, userID, fields))
}

// handleDeleteList handles DELETE /api/lists/:id
func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	listID := mux.Vars(r)["id"]
	respondOutcome(w, s.listService.DeleteList(r.Context(), listID, userID))
}

// handleClearList handles POST /api/lists/:id/clear
func (s *Server) handleClearList(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	listID := mux.Vars(r)["id"]
	respondOutcome(w, s.listService.ClearList(r.Context(), listID, userID))
}

// handleTogglePrivacy handles POST /api/lists/:id/privacy
func (s *Server) handleTogglePrivacy(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	listID := mux.Vars(r)["id"]

	var req struct {
		IsPublic bool `json:"isPublic"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	respondOutcome(w, s.listService.TogglePrivacy(r.Context(), listID, userID, req.IsPublic))
}

// handleGetListMovies handles GET /api/lists/:id/movies
func (s *Server) handleGetListMovies(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	listID := mux.Vars(r)["id"]

	movies, err := s.listService.GetListMovies(r.Context(), listID, userID)
	if err != nil {
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"items": movies})
}

// handleAddMovie handles POST /api/lists/:id/movies
func (s *Server) handleAddMovie(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	listID := mux.Vars(r)["id"]

	var req struct {
		MovieID int64 `json:"movieId"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if req.MovieID <= 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Movie ID required", nil)
		return
	}

	respondOutcome(w, s.listService.AddMovie(r.Context(), listID, userID, req.MovieID))
}

// handleRemoveMovie handles DELETE /api/lists/:id/movies/:movieId
func (s *Server) handleRemoveMovie(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	listID := vars["id"]

	movieID, err := strconv.ParseInt(vars["movieId"], 10, 64)
	if err != nil || movieID <= 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid movie ID", nil)
		return
	}

	respondOutcome(w, s.listService.RemoveMovie(r.Context(), listID, userID, movieID))
}
