// Package service implements the list interaction facade: the single entry
// point the UI layer calls for every list mutation. Each call attempts the
// remote provider synchronously first; a transient failure falls back to the
// durable queue so the user's action is never lost, while permanent and
// credential failures surface immediately.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/listsync/internal/logging"
	"github.com/listsync/internal/models"
	"github.com/listsync/internal/provider"
	"github.com/listsync/internal/types"
)

// Outcome is the tri-state result of every mutating facade call. Exactly
// one of List/OperationID/Reason is meaningful depending on Disposition.
type Outcome struct {
	Disposition types.Disposition  `json:"disposition"`
	List        *models.RemoteList `json:"list,omitempty"`        // applied, when the call returns a list
	OperationID string             `json:"operationId,omitempty"` // queued
	Reason      string             `json:"reason,omitempty"`      // failed: provider error code
	Err         error              `json:"-"`                     // failed: underlying cause
}

// OperationStore is the slice of the repository the facade needs.
// Satisfied by *storage.OperationRepository.
type OperationStore interface {
	Create(ctx context.Context, op *models.OperationRecord) error
	GetByID(ctx context.Context, id string) (*models.OperationRecord, error)
	Cancel(ctx context.Context, id string) error
	Stats(ctx context.Context, ownerID string) (*models.QueueStats, error)
	Requeue(ctx context.Context, ownerID string) (int, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.OperationRecord, error)
}

// ListReader caches fetched remote lists. Satisfied by *storage.ListCache.
type ListReader interface {
	Get(ctx context.Context, ownerID, listID string) (*models.RemoteList, error)
	Set(ctx context.Context, list *models.RemoteList) error
	Invalidate(ctx context.Context, ownerID, listID string) error
}

// Drainer runs a scoped queue pass for one owner. Satisfied by
// *queue.Processor.
type Drainer interface {
	ProcessOwner(ctx context.Context, ownerID string) int
}

// ListService is the list interaction facade.
type ListService struct {
	client  provider.ListClient
	ops     OperationStore
	cache   ListReader // optional
	drainer Drainer    // optional, used by RetryNow
	timeout time.Duration
	logger  *logging.Logger
}

// ListServiceConfig holds configuration for the facade.
type ListServiceConfig struct {
	Client  provider.ListClient
	Ops     OperationStore
	Cache   ListReader
	Drainer Drainer
	Timeout time.Duration // bound on the synchronous remote attempt
	Logger  *logging.Logger
}

// NewListService creates a new list service.
func NewListService(cfg *ListServiceConfig) (*ListService, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("list client cannot be nil")
	}
	if cfg.Ops == nil {
		return nil, fmt.Errorf("operation store cannot be nil")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &ListService{
		client:  cfg.Client,
		ops:     cfg.Ops,
		cache:   cfg.Cache,
		drainer: cfg.Drainer,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// CreateList creates a new remote list.
func (s *ListService) CreateList(ctx context.Context, ownerID, name, description string, isPublic bool) *Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	list, err := s.client.CreateList(attemptCtx, ownerID, name, description, isPublic)
	if err == nil {
		return s.applied(ctx, list)
	}

	return s.settle(ctx, err, ownerID, nil, models.CreateListPayload{
		Name:        name,
		Description: description,
		IsPublic:    isPublic,
	})
}

// UpdateList updates list metadata.
func (s *ListService) UpdateList(ctx context.Context, listID, ownerID string, fields provider.ListFields) *Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	list, err := s.client.UpdateList(attemptCtx, listID, ownerID, fields)
	if err == nil {
		s.invalidate(ctx, ownerID, listID)
		return s.applied(ctx, list)
	}

	return s.settle(ctx, err, ownerID, &listID, models.UpdateListPayload{
		Name:        fields.Name,
		Description: fields.Description,
		IsPublic:    fields.IsPublic,
	})
}

// DeleteList deletes a remote list.
func (s *ListService) DeleteList(ctx context.Context, listID, ownerID string) *Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.DeleteList(attemptCtx, listID, ownerID); err != nil {
		return s.settle(ctx, err, ownerID, &listID, models.DeleteListPayload{})
	}

	s.invalidate(ctx, ownerID, listID)
	return &Outcome{Disposition: types.DispositionApplied}
}

// ClearList removes all movies from a remote list.
func (s *ListService) ClearList(ctx context.Context, listID, ownerID string) *Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.ClearList(attemptCtx, listID, ownerID); err != nil {
		return s.settle(ctx, err, ownerID, &listID, models.ClearListPayload{})
	}

	s.invalidate(ctx, ownerID, listID)
	return &Outcome{Disposition: types.DispositionApplied}
}

// AddMovie adds one movie to a remote list. A duplicate add fails with
// reason duplicate_movie and is never queued; retrying cannot help.
func (s *ListService) AddMovie(ctx context.Context, listID, ownerID string, movieID int64) *Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.AddMovie(attemptCtx, listID, ownerID, movieID); err != nil {
		return s.settle(ctx, err, ownerID, &listID, models.AddMoviePayload{MovieID: movieID})
	}

	s.invalidate(ctx, ownerID, listID)
	return &Outcome{Disposition: types.DispositionApplied}
}

// RemoveMovie removes one movie from a remote list.
func (s *ListService) RemoveMovie(ctx context.Context, listID, ownerID string, movieID int64) *Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.RemoveMovie(attemptCtx, listID, ownerID, movieID); err != nil {
		return s.settle(ctx, err, ownerID, &listID, models.RemoveMoviePayload{MovieID: movieID})
	}

	s.invalidate(ctx, ownerID, listID)
	return &Outcome{Disposition: types.DispositionApplied}
}

// TogglePrivacy sets the public/private flag of a remote list.
func (s *ListService) TogglePrivacy(ctx context.Context, listID, ownerID string, isPublic bool) *Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	list, err := s.client.UpdateList(attemptCtx, listID, ownerID, provider.ListFields{IsPublic: &isPublic})
	if err == nil {
		s.invalidate(ctx, ownerID, listID)
		return s.applied(ctx, list)
	}

	return s.settle(ctx, err, ownerID, &listID, models.TogglePrivacyPayload{IsPublic: isPublic})
}

// settle converts a failed synchronous attempt into the queued or failed
// disposition. Only transient failures are queued; permanent and credential
// failures propagate immediately and are never swallowed into the queue.
func (s *ListService) settle(ctx context.Context, err error, ownerID string, targetListID *string, payload models.OperationPayload) *Outcome {
	if provider.IsSessionExpired(err) || !provider.IsTransient(err) {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"ownerId": ownerID,
			"type":    string(payload.OperationType()),
		}).Warn("Mutation rejected")

		return &Outcome{
			Disposition: types.DispositionFailed,
			Reason:      provider.Code(err),
			Err:         err,
		}
	}

	op := &models.OperationRecord{
		ID:             uuid.New().String(),
		OperationType:  payload.OperationType(),
		OwnerID:        ownerID,
		TargetListID:   targetListID,
		Payload:        payload,
		Status:         types.StatusPending,
		NextEligibleAt: time.Now(),
		CreatedAt:      time.Now(),
	}

	if createErr := s.ops.Create(ctx, op); createErr != nil {
		// queue storage itself is down; nothing left to absorb the failure
		s.logger.WithError(createErr).WithField("ownerId", ownerID).Error("Failed to enqueue operation")
		return &Outcome{
			Disposition: types.DispositionFailed,
			Reason:      "queue_unavailable",
			Err:         createErr,
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"operationId": op.ID,
		"ownerId":     ownerID,
		"type":        string(op.OperationType),
	}).Info("Mutation queued for later sync")

	return &Outcome{
		Disposition: types.DispositionQueued,
		OperationID: op.ID,
	}
}

// applied wraps a successful synchronous result and refreshes the cache.
func (s *ListService) applied(ctx context.Context, list *models.RemoteList) *Outcome {
	if s.cache != nil && list != nil {
		if err := s.cache.Set(ctx, list); err != nil {
			s.logger.WithError(err).Warn("Failed to cache list")
		}
	}
	return &Outcome{
		Disposition: types.DispositionApplied,
		List:        list,
	}
}

func (s *ListService) invalidate(ctx context.Context, ownerID, listID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, ownerID, listID); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate cached list")
	}
}

// GetList fetches a remote list through the cache. The cache is never
// authoritative: on a miss the list comes from the provider and overwrites
// whatever was cached.
func (s *ListService) GetList(ctx context.Context, listID, ownerID string) (*models.RemoteList, error) {
	if s.cache != nil {
		if list, err := s.cache.Get(ctx, ownerID, listID); err == nil {
			return list, nil
		}
	}

	list, err := s.client.FetchList(ctx, listID, ownerID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, list); cacheErr != nil {
			s.logger.WithError(cacheErr).Warn("Failed to cache fetched list")
		}
	}

	return list, nil
}

// GetListMovies fetches the ordered movie ids of a remote list.
func (s *ListService) GetListMovies(ctx context.Context, listID, ownerID string) ([]int64, error) {
	return s.client.FetchListMovies(ctx, listID, ownerID)
}

// QueueStats returns the owner's pending and failed operation counts.
func (s *ListService) QueueStats(ctx context.Context, ownerID string) (*models.QueueStats, error) {
	return s.ops.Stats(ctx, ownerID)
}

// ListOperations returns the owner's operation records, newest first.
func (s *ListService) ListOperations(ctx context.Context, ownerID string) ([]*models.OperationRecord, error) {
	return s.ops.ListByOwner(ctx, ownerID)
}

// RetryNow requeues the owner's permanently failed operations and runs a
// scoped queue pass immediately. Returns the number of requeued records.
func (s *ListService) RetryNow(ctx context.Context, ownerID string) (int, error) {
	requeued, err := s.ops.Requeue(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	if s.drainer != nil {
		s.drainer.ProcessOwner(ctx, ownerID)
	}

	return requeued, nil
}

// CancelOperation cancels a queued-but-not-started operation. The owner
// check prevents cancelling someone else's record.
func (s *ListService) CancelOperation(ctx context.Context, operationID, ownerID string) error {
	op, err := s.ops.GetByID(ctx, operationID)
	if err != nil {
		return err
	}

	if op.OwnerID != ownerID {
		return &types.ServiceError{Code: "FORBIDDEN", Message: "operation belongs to another user"}
	}

	return s.ops.Cancel(ctx, operationID)
}
