// Package api provides the HTTP API server for the list sync service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/listsync/internal/models"
	"github.com/listsync/internal/provider"
	"github.com/listsync/internal/service"
)

// ListServiceInterface defines the facade surface the handlers call.
type ListServiceInterface interface {
	CreateList(ctx context.Context, ownerID, name, description string, isPublic bool) *service.Outcome
	UpdateList(ctx context.Context, listID, ownerID string, fields provider.ListFields) *service.Outcome
	DeleteList(ctx context.Context, listID, ownerID string) *service.Outcome
	ClearList(ctx context.Context, listID, ownerID string) *service.Outcome
	AddMovie(ctx context.Context, listID, ownerID string, movieID int64) *service.Outcome
	RemoveMovie(ctx context.Context, listID, ownerID string, movieID int64) *service.Outcome
	TogglePrivacy(ctx context.Context, listID, ownerID string, isPublic bool) *service.Outcome
	GetList(ctx context.Context, listID, ownerID string) (*models.RemoteList, error)
	GetListMovies(ctx context.Context, listID, ownerID string) ([]int64, error)
	QueueStats(ctx context.Context, ownerID string) (*models.QueueStats, error)
	ListOperations(ctx context.Context, ownerID string) ([]*models.OperationRecord, error)
	RetryNow(ctx context.Context, ownerID string) (int, error)
	CancelOperation(ctx context.Context, operationID, ownerID string) error
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	listService ListServiceInterface
	config      *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, listService ListServiceInterface) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		listService: listService,
		config:      config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// order matters
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// List endpoints
	api.HandleFunc("/lists", s.handleCreateList).Methods("POST")
	api.HandleFunc("/lists/{id}", s.handleGetList).Methods("GET")
	api.HandleFunc("/lists/{id}", s.handleUpdateList).Methods("PATCH")
	api.HandleFunc("/lists/{id}", s.handleDeleteList).Methods("DELETE")
	api.HandleFunc("/lists/{id}/clear", s.handleClearList).Methods("POST")
	api.HandleFunc("/lists/{id}/privacy", s.handleTogglePrivacy).Methods("POST")
	api.HandleFunc("/lists/{id}/movies", s.handleGetListMovies).Methods("GET")
	api.HandleFunc("/lists/{id}/movies", s.handleAddMovie).Methods("POST")
	api.HandleFunc("/lists/{id}/movies/{movieId}", s.handleRemoveMovie).Methods("DELETE")

	// Queue endpoints
	api.HandleFunc("/queue/stats", s.handleQueueStats).Methods("GET")
	api.HandleFunc("/queue/operations", s.handleListOperations).Methods("GET")
	api.HandleFunc("/queue/retry", s.handleRetryNow).Methods("POST")
	api.HandleFunc("/queue/operations/{id}", s.handleCancelOperation).Methods("DELETE")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying router. Used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
