// Package types provides common type definitions for the list sync system.
package types

// OperationType identifies the kind of deferred list mutation.
type OperationType string

const (
	// OpCreateList creates a new remote list
	OpCreateList OperationType = "create_list"
	// OpUpdateList updates list name/description/visibility
	OpUpdateList OperationType = "update_list"
	// OpDeleteList deletes a remote list
	OpDeleteList OperationType = "delete_list"
	// OpClearList removes all movies from a remote list
	OpClearList OperationType = "clear_list"
	// OpAddMovie adds one movie to a remote list
	OpAddMovie OperationType = "add_movie"
	// OpRemoveMovie removes one movie from a remote list
	OpRemoveMovie OperationType = "remove_movie"
	// OpTogglePrivacy flips the public/private flag of a remote list
	OpTogglePrivacy OperationType = "toggle_privacy"
)

// AllOperationTypes lists every operation type the executor must handle.
var AllOperationTypes = []OperationType{
	OpCreateList,
	OpUpdateList,
	OpDeleteList,
	OpClearList,
	OpAddMovie,
	OpRemoveMovie,
	OpTogglePrivacy,
}

// Valid reports whether t is a known operation type.
func (t OperationType) Valid() bool {
	switch t {
	case OpCreateList, OpUpdateList, OpDeleteList, OpClearList, OpAddMovie, OpRemoveMovie, OpTogglePrivacy:
		return true
	}
	return false
}

// OperationStatus represents the lifecycle state of a queued operation.
type OperationStatus string

const (
	// StatusPending represents an operation waiting to be processed
	StatusPending OperationStatus = "pending"
	// StatusInProgress represents an operation claimed by an executor
	StatusInProgress OperationStatus = "in_progress"
	// StatusCompleted represents a successfully applied operation
	StatusCompleted OperationStatus = "completed"
	// StatusFailed represents a failed attempt that will be retried
	StatusFailed OperationStatus = "failed"
	// StatusFailedPermanent represents an operation whose retries are exhausted
	// or that hit a non-retryable failure; requires manual retry or cancellation
	StatusFailedPermanent OperationStatus = "failed_permanent"
	// StatusCancelled represents an operation cancelled by the user before it ran
	StatusCancelled OperationStatus = "cancelled"
)

// Terminal reports whether no further automatic processing happens for s.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailedPermanent || s == StatusCancelled
}

// Disposition is the tri-state result of every mutating facade call.
// Callers must handle all three cases; "queued" means the mutation was
// accepted locally but is not yet real on the remote provider.
type Disposition string

const (
	// DispositionApplied means the remote call succeeded synchronously
	DispositionApplied Disposition = "applied"
	// DispositionQueued means the mutation was persisted for later sync
	DispositionQueued Disposition = "queued"
	// DispositionFailed means the mutation was rejected and not queued
	DispositionFailed Disposition = "failed"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
