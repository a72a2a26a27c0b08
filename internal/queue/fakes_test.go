package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/listsync/internal/models"
	"github.com/listsync/internal/provider"
	"github.com/listsync/internal/storage"
	"github.com/listsync/internal/types"
)

// fakeStore is an in-memory OperationStore with the same claim and
// eligibility semantics as the Postgres repository: only chain heads are
// eligible, and a claim fails while a sibling is in flight.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*models.OperationRecord
	seq     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.OperationRecord)}
}

func (s *fakeStore) add(ownerID string, targetListID *string, payload models.OperationPayload) *models.OperationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	record := &models.OperationRecord{
		ID:             uuid.New().String(),
		OperationType:  payload.OperationType(),
		OwnerID:        ownerID,
		TargetListID:   targetListID,
		Payload:        payload,
		Status:         types.StatusPending,
		NextEligibleAt: time.Now().Add(-time.Second),
		CreatedAt:      time.Now().Add(time.Duration(s.seq) * time.Microsecond),
	}
	s.records[record.ID] = record
	return record
}

func (s *fakeStore) get(id string) models.OperationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[id]
}

func (s *fakeStore) Claim(ctx context.Context, id string) (*models.OperationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, storage.ErrOperationNotFound
	}
	if record.Status != types.StatusPending || record.NextEligibleAt.After(time.Now()) {
		return nil, storage.ErrClaimLost
	}
	for _, other := range s.records {
		if other.ID != record.ID && other.ListKey() == record.ListKey() && other.Status == types.StatusInProgress {
			return nil, storage.ErrClaimLost
		}
	}

	now := time.Now()
	record.Status = types.StatusInProgress
	record.LastAttemptedAt = &now
	clone := *record
	return &clone, nil
}

func (s *fakeStore) MarkCompleted(ctx context.Context, id string, resolvedListID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return storage.ErrOperationNotFound
	}
	if record.Status != types.StatusInProgress {
		return fmt.Errorf("operation %s is not in progress", id)
	}

	record.Status = types.StatusCompleted
	if record.TargetListID == nil && resolvedListID != nil {
		record.TargetListID = resolvedListID
	}
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id string, retryCount int, errMsg string, nextEligibleAt time.Time, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return storage.ErrOperationNotFound
	}

	record.RetryCount = retryCount
	record.ErrorMessage = &errMsg
	record.NextEligibleAt = nextEligibleAt
	if permanent {
		record.Status = types.StatusFailedPermanent
	} else {
		record.Status = types.StatusPending
	}
	return nil
}

func (s *fakeStore) ListEligible(ctx context.Context, limit int) ([]*models.OperationRecord, error) {
	return s.listEligible("", limit), nil
}

func (s *fakeStore) ListEligibleForOwner(ctx context.Context, ownerID string, limit int) ([]*models.OperationRecord, error) {
	return s.listEligible(ownerID, limit), nil
}

func (s *fakeStore) listEligible(ownerID string, limit int) []*models.OperationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var eligible []*models.OperationRecord

	for _, record := range s.records {
		if ownerID != "" && record.OwnerID != ownerID {
			continue
		}
		if record.Status != types.StatusPending || record.NextEligibleAt.After(now) {
			continue
		}
		if s.hasOlderActiveSibling(record) {
			continue
		}
		clone := *record
		eligible = append(eligible, &clone)
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible
}

func (s *fakeStore) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reclaimed := 0
	for _, record := range s.records {
		if record.Status != types.StatusInProgress {
			continue
		}
		if record.LastAttemptedAt == nil || !record.LastAttemptedAt.Before(cutoff) {
			continue
		}
		record.Status = types.StatusPending
		record.NextEligibleAt = time.Now()
		reclaimed++
	}
	return reclaimed, nil
}

func (s *fakeStore) hasOlderActiveSibling(record *models.OperationRecord) bool {
	for _, other := range s.records {
		if other.ID == record.ID || other.ListKey() != record.ListKey() {
			continue
		}
		if other.CreatedAt.After(record.CreatedAt) {
			continue
		}
		if other.CreatedAt.Equal(record.CreatedAt) && other.ID >= record.ID {
			continue
		}
		if other.Status == types.StatusPending || other.Status == types.StatusInProgress {
			return true
		}
	}
	return false
}

// callRecord captures one provider call made by the executor.
type callRecord struct {
	method  string
	listID  string
	ownerID string
	movieID int64
}

// fakeClient is a scriptable ListClient. Errors are keyed by method name and
// consumed in order; a method with no scripted errors succeeds.
type fakeClient struct {
	mu     sync.Mutex
	calls  []callRecord
	errs   map[string][]error
	nextID int
}

func newFakeClient() *fakeClient {
	return &fakeClient{errs: make(map[string][]error)}
}

func (c *fakeClient) failWith(method string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[method] = append(c.errs[method], errs...)
}

func (c *fakeClient) record(method, listID, ownerID string, movieID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, callRecord{method: method, listID: listID, ownerID: ownerID, movieID: movieID})
	if queue := c.errs[method]; len(queue) > 0 {
		err := queue[0]
		c.errs[method] = queue[1:]
		return err
	}
	return nil
}

func (c *fakeClient) callsTo(method string) []callRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []callRecord
	for _, call := range c.calls {
		if call.method == method {
			out = append(out, call)
		}
	}
	return out
}

func (c *fakeClient) CreateList(ctx context.Context, ownerID, name, description string, isPublic bool) (*models.RemoteList, error) {
	if err := c.record("CreateList", "", ownerID, 0); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.nextID++
	id := fmt.Sprintf("remote-%d", c.nextID)
	c.mu.Unlock()
	return &models.RemoteList{ListID: id, OwnerID: ownerID, Name: name, Description: description, IsPublic: isPublic}, nil
}

func (c *fakeClient) UpdateList(ctx context.Context, listID, ownerID string, fields provider.ListFields) (*models.RemoteList, error) {
	if err := c.record("UpdateList", listID, ownerID, 0); err != nil {
		return nil, err
	}
	return &models.RemoteList{ListID: listID, OwnerID: ownerID}, nil
}

func (c *fakeClient) DeleteList(ctx context.Context, listID, ownerID string) error {
	return c.record("DeleteList", listID, ownerID, 0)
}

func (c *fakeClient) ClearList(ctx context.Context, listID, ownerID string) error {
	return c.record("ClearList", listID, ownerID, 0)
}

func (c *fakeClient) AddMovie(ctx context.Context, listID, ownerID string, movieID int64) error {
	return c.record("AddMovie", listID, ownerID, movieID)
}

func (c *fakeClient) RemoveMovie(ctx context.Context, listID, ownerID string, movieID int64) error {
	return c.record("RemoveMovie", listID, ownerID, movieID)
}

func (c *fakeClient) FetchList(ctx context.Context, listID, ownerID string) (*models.RemoteList, error) {
	if err := c.record("FetchList", listID, ownerID, 0); err != nil {
		return nil, err
	}
	return &models.RemoteList{ListID: listID, OwnerID: ownerID}, nil
}

func (c *fakeClient) FetchListMovies(ctx context.Context, listID, ownerID string) ([]int64, error) {
	if err := c.record("FetchListMovies", listID, ownerID, 0); err != nil {
		return nil, err
	}
	return nil, nil
}

// fakeNotifier records staleness notifications.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) NotifyStale(ownerID, listID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ownerID+"/"+listID)
}

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// fakeInvalidator records cache invalidations.
type fakeInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (i *fakeInvalidator) Invalidate(ctx context.Context, ownerID, listID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys = append(i.keys, ownerID+"/"+listID)
	return nil
}

func (i *fakeInvalidator) all() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.keys...)
}
