package reconcile

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/listsync/internal/provider"
	"github.com/listsync/internal/types"
)

// Marker describes how an optimistic entry should be rendered.
type Marker string

const (
	// MarkerOptimistic marks a tentative change whose real outcome is
	// still unknown.
	MarkerOptimistic Marker = "optimistic"
	// MarkerQueued marks a change accepted locally that will sync later.
	MarkerQueued Marker = "queued"
)

// Entry is a tentative list or movie-in-list representation shown to the
// user before the authoritative remote outcome is known. Ephemeral, never
// persisted.
type Entry struct {
	CorrelationID string
	OwnerID       string
	ListID        string
	OperationType types.OperationType
	MovieID       int64 // zero unless the mutation targets a movie
	Marker        Marker
	OperationID   string // set once the facade reports queued
	CreatedAt     time.Time
}

// Resolution is what the store tells the UI to do once the facade's real
// outcome is known.
type Resolution struct {
	Disposition types.Disposition
	Refresh     bool   // applied: replace local state with a fresh fetch
	Reverted    bool   // failed: the tentative change was rolled back
	Message     string // user-facing failure message, empty on success
}

// Store tracks optimistic entries per owner, keyed by the correlation id of
// the facade call that produced them.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry // correlation id -> entry
	byOwner map[string]map[string]struct{}
}

// NewStore creates a new optimistic entry store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Entry),
		byOwner: make(map[string]map[string]struct{}),
	}
}

// Stage records a tentative change the instant a mutating action fires and
// returns its correlation id. The UI renders the entry immediately with the
// optimistic marker.
func (s *Store) Stage(ownerID, listID string, opType types.OperationType, movieID int64) string {
	correlationID := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[correlationID] = &Entry{
		CorrelationID: correlationID,
		OwnerID:       ownerID,
		ListID:        listID,
		OperationType: opType,
		MovieID:       movieID,
		Marker:        MarkerOptimistic,
		CreatedAt:     time.Now(),
	}

	if s.byOwner[ownerID] == nil {
		s.byOwner[ownerID] = make(map[string]struct{})
	}
	s.byOwner[ownerID][correlationID] = struct{}{}

	return correlationID
}

// Resolve applies the facade's real outcome to a staged entry:
//
//   - applied: the entry is dropped and the caller refreshes from the
//     provider; the optimistic shape is not trusted to match server truth.
//   - queued: the entry stays visible with the queued marker.
//   - failed: the entry is removed and the failure surfaced; a duplicate
//     add is reported as "already present" rather than as a hard failure.
func (s *Store) Resolve(correlationID string, disposition types.Disposition, operationID string, cause error) (*Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[correlationID]
	if !ok {
		return nil, fmt.Errorf("no optimistic entry for correlation id %s", correlationID)
	}

	switch disposition {
	case types.DispositionApplied:
		s.remove(entry)
		return &Resolution{
			Disposition: types.DispositionApplied,
			Refresh:     true,
		}, nil

	case types.DispositionQueued:
		entry.Marker = MarkerQueued
		entry.OperationID = operationID
		return &Resolution{
			Disposition: types.DispositionQueued,
		}, nil

	case types.DispositionFailed:
		s.remove(entry)
		return &Resolution{
			Disposition: types.DispositionFailed,
			Reverted:    true,
			Message:     failureMessage(entry, cause),
		}, nil

	default:
		return nil, fmt.Errorf("unknown disposition: %s", disposition)
	}
}

// Drop discards a staged entry without resolving it. Used when a queued
// operation is cancelled by the user.
func (s *Store) Drop(correlationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[correlationID]; ok {
		s.remove(entry)
	}
}

// Entries returns an owner's staged entries, oldest first.
func (s *Store) Entries(ownerID string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*Entry
	for correlationID := range s.byOwner[ownerID] {
		if entry, ok := s.entries[correlationID]; ok {
			copied := *entry
			entries = append(entries, &copied)
		}
	}

	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].CreatedAt.Before(entries[j-1].CreatedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}

	return entries
}

// Get returns one staged entry by correlation id.
func (s *Store) Get(correlationID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[correlationID]
	if !ok {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

func (s *Store) remove(entry *Entry) {
	delete(s.entries, entry.CorrelationID)
	if owner, ok := s.byOwner[entry.OwnerID]; ok {
		delete(owner, entry.CorrelationID)
		if len(owner) == 0 {
			delete(s.byOwner, entry.OwnerID)
		}
	}
}

// failureMessage builds the user-facing revert message for a failed
// mutation.
func failureMessage(entry *Entry, cause error) string {
	if provider.IsDuplicateMovie(cause) {
		return fmt.Sprintf("movie %d is already on this list", entry.MovieID)
	}
	if provider.IsSessionExpired(cause) {
		return "your session has expired; sign in again to continue"
	}
	if cause != nil {
		return cause.Error()
	}
	return "the change could not be applied"
}
