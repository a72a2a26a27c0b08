package models

import (
	"time"

	"github.com/listsync/internal/types"
)

// OperationRecord represents one deferred list mutation in the database.
// A record is created when the synchronous remote call fails transiently
// and is driven to a terminal status by the queue processor.
type OperationRecord struct {
	ID              string                `json:"id" db:"id"`
	OperationType   types.OperationType   `json:"operationType" db:"operation_type"`
	OwnerID         string                `json:"ownerId" db:"owner_id"`
	TargetListID    *string               `json:"targetListId,omitempty" db:"target_list_id"` // nil for create_list
	Payload         OperationPayload      `json:"payload" db:"payload"`
	Status          types.OperationStatus `json:"status" db:"status"`
	RetryCount      int                   `json:"retryCount" db:"retry_count"`
	LastAttemptedAt *time.Time            `json:"lastAttemptedAt,omitempty" db:"last_attempted_at"`
	NextEligibleAt  time.Time             `json:"nextEligibleAt" db:"next_eligible_at"`
	ErrorMessage    *string               `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt       time.Time             `json:"createdAt" db:"created_at"`
}

// ListKey returns the serialization key for ordering. Operations sharing a
// key must execute in enqueue order; operations with different keys may run
// concurrently.
func (r *OperationRecord) ListKey() string {
	if r.TargetListID == nil {
		return r.OwnerID + "/"
	}
	return r.OwnerID + "/" + *r.TargetListID
}

// IsTerminal reports whether the record will never be processed again.
func (r *OperationRecord) IsTerminal() bool {
	return r.Status.Terminal()
}

// CanRetry reports whether a manual retry may move the record back to pending.
func (r *OperationRecord) CanRetry() bool {
	return r.Status == types.StatusFailedPermanent
}

// CanCancel reports whether the user may still cancel the record. An
// in_progress operation cannot be cancelled mid-flight; the executor must
// record the true remote outcome first.
func (r *OperationRecord) CanCancel() bool {
	return r.Status == types.StatusPending
}
