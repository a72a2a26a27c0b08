// Package queue drives queued list operations against the remote provider.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/listsync/internal/logging"
	"github.com/listsync/internal/models"
	"github.com/listsync/internal/provider"
	"github.com/listsync/internal/retry"
	"github.com/listsync/internal/types"
)

// OperationStore is the slice of the repository the executor and processor
// need. Satisfied by *storage.OperationRepository.
type OperationStore interface {
	Claim(ctx context.Context, id string) (*models.OperationRecord, error)
	MarkCompleted(ctx context.Context, id string, resolvedListID *string) error
	MarkFailed(ctx context.Context, id string, retryCount int, errMsg string, nextEligibleAt time.Time, permanent bool) error
	ListEligible(ctx context.Context, limit int) ([]*models.OperationRecord, error)
	ListEligibleForOwner(ctx context.Context, ownerID string, limit int) ([]*models.OperationRecord, error)
	ReclaimStale(ctx context.Context, cutoff time.Time) (int, error)
}

// CacheInvalidator drops stale cached lists after a successful sync.
// Satisfied by *storage.ListCache.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, ownerID, listID string) error
}

// StalenessNotifier tells active sessions their list state may be stale.
// Satisfied by *reconcile.Notifier.
type StalenessNotifier interface {
	NotifyStale(ownerID, listID string)
}

// Executor drives one claimed operation record through the remote call and
// records its terminal-for-this-attempt status.
type Executor struct {
	store    OperationStore
	client   provider.ListClient
	policy   retry.Policy
	cache    CacheInvalidator  // optional
	notifier StalenessNotifier // optional
	logger   *logging.Logger
}

// ExecutorConfig holds configuration for the executor.
type ExecutorConfig struct {
	Store    OperationStore
	Client   provider.ListClient
	Policy   retry.Policy
	Cache    CacheInvalidator
	Notifier StalenessNotifier
	Logger   *logging.Logger
}

// NewExecutor creates a new sync executor.
func NewExecutor(cfg *ExecutorConfig) (*Executor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("operation store cannot be nil")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("list client cannot be nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	policy := cfg.Policy
	if policy.MaxRetries == 0 {
		policy = retry.DefaultPolicy()
	}

	return &Executor{
		store:    cfg.Store,
		client:   cfg.Client,
		policy:   policy,
		cache:    cfg.Cache,
		notifier: cfg.Notifier,
		logger:   logger,
	}, nil
}

// Execute claims the record and attempts its remote call. It returns the
// record's status after this attempt, or storage.ErrClaimLost when another
// executor got there first.
func (e *Executor) Execute(ctx context.Context, id string) (types.OperationStatus, error) {
	op, err := e.store.Claim(ctx, id)
	if err != nil {
		return "", err
	}

	log := e.logger.WithFields(map[string]interface{}{
		"operationId": op.ID,
		"ownerId":     op.OwnerID,
		"type":        string(op.OperationType),
		"retryCount":  op.RetryCount,
	})
	log.Info("Operation claimed")

	resolvedListID, execErr := e.dispatch(ctx, op)
	if execErr == nil {
		return e.complete(ctx, op, resolvedListID, log)
	}

	return e.fail(ctx, op, execErr, log)
}

// complete records a successful attempt and signals staleness so active
// sessions refresh from the provider instead of trusting optimistic state.
func (e *Executor) complete(ctx context.Context, op *models.OperationRecord, resolvedListID *string, log *logging.Logger) (types.OperationStatus, error) {
	if err := e.store.MarkCompleted(ctx, op.ID, resolvedListID); err != nil {
		return "", fmt.Errorf("failed to record completion: %w", err)
	}

	listID := ""
	if resolvedListID != nil {
		listID = *resolvedListID
	} else if op.TargetListID != nil {
		listID = *op.TargetListID
	}

	if e.cache != nil && listID != "" {
		if err := e.cache.Invalidate(ctx, op.OwnerID, listID); err != nil {
			log.WithError(err).Warn("Failed to invalidate list cache")
		}
	}
	if e.notifier != nil {
		e.notifier.NotifyStale(op.OwnerID, listID)
	}

	log.Info("Operation completed")
	return types.StatusCompleted, nil
}

// fail applies the retry policy to a failed attempt. Credential and
// permanent failures short-circuit the retry ladder; transient failures go
// back to pending with exponential backoff until the budget is exhausted.
func (e *Executor) fail(ctx context.Context, op *models.OperationRecord, execErr error, log *logging.Logger) (types.OperationStatus, error) {
	retryCount := op.RetryCount + 1
	now := time.Now()

	permanent := false
	switch {
	case provider.IsSessionExpired(execErr):
		// No amount of retrying fixes an expired credential. The owner
		// must re-authenticate and retry manually.
		permanent = true
	case !provider.IsTransient(execErr):
		permanent = true
	case e.policy.Exhausted(retryCount):
		permanent = true
	}

	nextEligibleAt := now
	if !permanent {
		nextEligibleAt = e.policy.NextEligibleAt(now, retryCount)
	}

	if err := e.store.MarkFailed(ctx, op.ID, retryCount, execErr.Error(), nextEligibleAt, permanent); err != nil {
		return "", fmt.Errorf("failed to record failure: %w", err)
	}

	if permanent {
		log.WithError(execErr).Error("Operation failed permanently")
		return types.StatusFailedPermanent, nil
	}

	log.WithError(execErr).WithField("nextEligibleAt", nextEligibleAt.Format(time.RFC3339)).
		Warn("Operation failed, scheduled for retry")
	return types.StatusPending, nil
}

// dispatch performs the remote call for the record's operation type. For
// idempotent operations a benign "already applied" answer from the provider
// counts as success: the remote state matches what the operation wanted.
func (e *Executor) dispatch(ctx context.Context, op *models.OperationRecord) (*string, error) {
	listID, err := e.targetListID(op)
	if err != nil {
		return nil, err
	}

	switch payload := op.Payload.(type) {
	case models.CreateListPayload:
		list, err := e.client.CreateList(ctx, op.OwnerID, payload.Name, payload.Description, payload.IsPublic)
		if err != nil {
			return nil, err
		}
		return &list.ListID, nil

	case models.UpdateListPayload:
		_, err := e.client.UpdateList(ctx, listID, op.OwnerID, provider.ListFields{
			Name:        payload.Name,
			Description: payload.Description,
			IsPublic:    payload.IsPublic,
		})
		return nil, err

	case models.DeleteListPayload:
		err := e.client.DeleteList(ctx, listID, op.OwnerID)
		if provider.IsNotFound(err) {
			return nil, nil // already gone
		}
		return nil, err

	case models.ClearListPayload:
		err := e.client.ClearList(ctx, listID, op.OwnerID)
		if provider.IsNotFound(err) {
			return nil, nil
		}
		return nil, err

	case models.AddMoviePayload:
		err := e.client.AddMovie(ctx, listID, op.OwnerID, payload.MovieID)
		if provider.IsDuplicateMovie(err) {
			return nil, nil // already present
		}
		return nil, err

	case models.RemoveMoviePayload:
		err := e.client.RemoveMovie(ctx, listID, op.OwnerID, payload.MovieID)
		if provider.IsNotFound(err) {
			return nil, nil // already absent
		}
		return nil, err

	case models.TogglePrivacyPayload:
		_, err := e.client.UpdateList(ctx, listID, op.OwnerID, provider.ListFields{
			IsPublic: &payload.IsPublic,
		})
		return nil, err

	default:
		return nil, provider.NewPermanentError(provider.CodeValidation,
			fmt.Sprintf("unsupported payload type for operation %s", op.OperationType), nil)
	}
}

// targetListID returns the remote list id the operation acts on. Only
// create_list runs without one.
func (e *Executor) targetListID(op *models.OperationRecord) (string, error) {
	if op.OperationType == types.OpCreateList {
		return "", nil
	}
	if op.TargetListID == nil || *op.TargetListID == "" {
		return "", provider.NewPermanentError(provider.CodeValidation,
			fmt.Sprintf("operation %s has no target list id", op.OperationType), nil)
	}
	return *op.TargetListID, nil
}
