package models

import "time"

// RemoteList is the user's movie list as it exists on the external provider.
// Locally it is only ever a cache entry; a fresh fetch always overwrites it.
type RemoteList struct {
	ListID      string    `json:"listId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"ownerId"`
	IsPublic    bool      `json:"isPublic"`
	ItemCount   int       `json:"itemCount"`
	MovieIDs    []int64   `json:"movieIds"` // ordered, unique
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ContainsMovie reports whether the list already holds the given movie.
func (l *RemoteList) ContainsMovie(movieID int64) bool {
	for _, id := range l.MovieIDs {
		if id == movieID {
			return true
		}
	}
	return false
}

// QueueStats summarizes a user's outstanding queued operations.
type QueueStats struct {
	OwnerID      string `json:"ownerId"`
	PendingCount int    `json:"pendingCount"`
	FailedCount  int    `json:"failedCount"`
}
