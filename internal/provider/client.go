// Package provider is the boundary to the external list-management API.
// Every call is fallible and rate-limited; callers must treat the remote
// state as the source of truth and the local cache as disposable.
package provider

import (
	"context"

	"github.com/listsync/internal/models"
)

// ListFields carries partial metadata updates for UpdateList. Nil fields are
// left untouched.
type ListFields struct {
	Name        *string
	Description *string
	IsPublic    *bool
}

// ListClient defines the operations the sync subsystem performs against the
// remote list provider. Implementations return *Error values so callers can
// classify failures as transient, permanent, or credential.
//
// AddMovie, RemoveMovie, and ClearList are idempotent from the caller's
// perspective: repeating a successful call yields a benign duplicate or
// not-found error rather than corrupted state.
type ListClient interface {
	CreateList(ctx context.Context, ownerID, name, description string, isPublic bool) (*models.RemoteList, error)
	UpdateList(ctx context.Context, listID, ownerID string, fields ListFields) (*models.RemoteList, error)
	DeleteList(ctx context.Context, listID, ownerID string) error
	ClearList(ctx context.Context, listID, ownerID string) error
	AddMovie(ctx context.Context, listID, ownerID string, movieID int64) error
	RemoveMovie(ctx context.Context, listID, ownerID string, movieID int64) error
	FetchList(ctx context.Context, listID, ownerID string) (*models.RemoteList, error)
	FetchListMovies(ctx context.Context, listID, ownerID string) ([]int64, error)
}

// SessionSource resolves the per-user session token used to authenticate
// provider calls. The auth subsystem that issues and refreshes tokens is
// external; this boundary only asks "give me a currently valid token".
type SessionSource interface {
	// SessionToken returns the access token for the owner, or
	// ErrNoSession when the user has no valid session.
	SessionToken(ctx context.Context, ownerID string) (string, error)
}

// ErrNoSession is returned by SessionSource implementations when the owner
// has no valid session. The client maps it to a session_expired error.
var ErrNoSession = NewSessionExpiredError("no valid session for owner")
