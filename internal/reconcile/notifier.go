// Package reconcile implements the UI-side contract of the sync subsystem:
// optimistic entries that shadow in-flight mutations, and staleness
// notifications telling active sessions to refetch from the provider
// instead of trusting their local view.
package reconcile

import (
	"sync"
	"time"
)

// StalenessEvent signals that an owner's list state may be stale because a
// queued operation completed against the remote provider.
type StalenessEvent struct {
	OwnerID    string
	ListID     string // empty when the touched list is unknown
	OccurredAt time.Time
}

// Notifier broadcasts staleness events to subscribed sessions. Delivery is
// best effort: a subscriber that cannot keep up misses events rather than
// blocking the queue processor.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan StalenessEvent
	next int
}

// NewNotifier creates a new staleness notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[string]map[int]chan StalenessEvent),
	}
}

// Subscribe registers interest in one owner's staleness events. The returned
// cancel function must be called when the session ends.
func (n *Notifier) Subscribe(ownerID string) (<-chan StalenessEvent, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan StalenessEvent, 8)
	id := n.next
	n.next++

	if n.subs[ownerID] == nil {
		n.subs[ownerID] = make(map[int]chan StalenessEvent)
	}
	n.subs[ownerID][id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		if owner, ok := n.subs[ownerID]; ok {
			if _, ok := owner[id]; ok {
				delete(owner, id)
				close(ch)
				if len(owner) == 0 {
					delete(n.subs, ownerID)
				}
			}
		}
	}

	return ch, cancel
}

// NotifyStale publishes a staleness event for one owner.
func (n *Notifier) NotifyStale(ownerID, listID string) {
	event := StalenessEvent{
		OwnerID:    ownerID,
		ListID:     listID,
		OccurredAt: time.Now(),
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subs[ownerID] {
		select {
		case ch <- event:
		default:
			// subscriber is behind; it will refetch on its next event
		}
	}
}

// SubscriberCount returns the number of active subscriptions for an owner.
func (n *Notifier) SubscriberCount(ownerID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[ownerID])
}
