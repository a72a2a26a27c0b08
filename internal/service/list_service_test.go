package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listsync/internal/models"
	"github.com/listsync/internal/provider"
	"github.com/listsync/internal/storage"
	"github.com/listsync/internal/types"
)

// stubClient answers every mutation with the scripted error (nil means
// success) and records how many calls it saw.
type stubClient struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (c *stubClient) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *stubClient) next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *stubClient) CreateList(ctx context.Context, ownerID, name, description string, isPublic bool) (*models.RemoteList, error) {
	if err := c.next(); err != nil {
		return nil, err
	}
	return &models.RemoteList{ListID: "list-1", OwnerID: ownerID, Name: name, IsPublic: isPublic}, nil
}

func (c *stubClient) UpdateList(ctx context.Context, listID, ownerID string, fields provider.ListFields) (*models.RemoteList, error) {
	if err := c.next(); err != nil {
		return nil, err
	}
	return &models.RemoteList{ListID: listID, OwnerID: ownerID}, nil
}

func (c *stubClient) DeleteList(ctx context.Context, listID, ownerID string) error { return c.next() }
func (c *stubClient) ClearList(ctx context.Context, listID, ownerID string) error  { return c.next() }
func (c *stubClient) AddMovie(ctx context.Context, listID, ownerID string, movieID int64) error {
	return c.next()
}
func (c *stubClient) RemoveMovie(ctx context.Context, listID, ownerID string, movieID int64) error {
	return c.next()
}

func (c *stubClient) FetchList(ctx context.Context, listID, ownerID string) (*models.RemoteList, error) {
	if err := c.next(); err != nil {
		return nil, err
	}
	return &models.RemoteList{ListID: listID, OwnerID: ownerID, Name: "Fetched"}, nil
}

func (c *stubClient) FetchListMovies(ctx context.Context, listID, ownerID string) ([]int64, error) {
	if err := c.next(); err != nil {
		return nil, err
	}
	return []int64{550}, nil
}

// memOps is an in-memory OperationStore for facade tests.
type memOps struct {
	mu        sync.Mutex
	records   map[string]*models.OperationRecord
	createErr error
}

func newMemOps() *memOps {
	return &memOps{records: make(map[string]*models.OperationRecord)}
}

func (m *memOps) Create(ctx context.Context, op *models.OperationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	clone := *op
	m.records[op.ID] = &clone
	return nil
}

func (m *memOps) GetByID(ctx context.Context, id string) (*models.OperationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return nil, storage.ErrOperationNotFound
	}
	clone := *record
	return &clone, nil
}

func (m *memOps) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return storage.ErrOperationNotFound
	}
	if record.Status != types.StatusPending {
		return storage.ErrNotCancellable
	}
	record.Status = types.StatusCancelled
	return nil
}

func (m *memOps) Stats(ctx context.Context, ownerID string) (*models.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.QueueStats{OwnerID: ownerID}
	for _, record := range m.records {
		if record.OwnerID != ownerID {
			continue
		}
		switch record.Status {
		case types.StatusPending, types.StatusInProgress:
			stats.PendingCount++
		case types.StatusFailedPermanent:
			stats.FailedCount++
		}
	}
	return stats, nil
}

func (m *memOps) Requeue(ctx context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	requeued := 0
	for _, record := range m.records {
		if record.OwnerID == ownerID && record.Status == types.StatusFailedPermanent {
			record.Status = types.StatusPending
			record.RetryCount = 0
			requeued++
		}
	}
	return requeued, nil
}

func (m *memOps) ListByOwner(ctx context.Context, ownerID string) ([]*models.OperationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.OperationRecord
	for _, record := range m.records {
		if record.OwnerID == ownerID {
			clone := *record
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memOps) only(t *testing.T) *models.OperationRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.records, 1)
	for _, record := range m.records {
		clone := *record
		return &clone
	}
	return nil
}

// memCache is an in-memory ListReader.
type memCache struct {
	mu    sync.Mutex
	lists map[string]*models.RemoteList
}

func newMemCache() *memCache {
	return &memCache{lists: make(map[string]*models.RemoteList)}
}

func (m *memCache) key(ownerID, listID string) string { return ownerID + "/" + listID }

func (m *memCache) Get(ctx context.Context, ownerID, listID string) (*models.RemoteList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lists[m.key(ownerID, listID)]
	if !ok {
		return nil, storage.ErrCacheMiss
	}
	return list, nil
}

func (m *memCache) Set(ctx context.Context, list *models.RemoteList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[m.key(list.OwnerID, list.ListID)] = list
	return nil
}

func (m *memCache) Invalidate(ctx context.Context, ownerID, listID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lists, m.key(ownerID, listID))
	return nil
}

type stubDrainer struct {
	mu     sync.Mutex
	owners []string
}

func (d *stubDrainer) ProcessOwner(ctx context.Context, ownerID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners = append(d.owners, ownerID)
	return 0
}

func newTestService(t *testing.T) (*ListService, *stubClient, *memOps, *memCache, *stubDrainer) {
	t.Helper()

	client := &stubClient{}
	ops := newMemOps()
	cache := newMemCache()
	drainer := &stubDrainer{}

	svc, err := NewListService(&ListServiceConfig{
		Client:  client,
		Ops:     ops,
		Cache:   cache,
		Drainer: drainer,
	})
	require.NoError(t, err)

	return svc, client, ops, cache, drainer
}

func TestAddMovieTriState(t *testing.T) {
	ctx := context.Background()

	t.Run("synchronous success is applied", func(t *testing.T) {
		svc, _, ops, _, _ := newTestService(t)

		outcome := svc.AddMovie(ctx, "list-1", "user-1", 550)
		assert.Equal(t, types.DispositionApplied, outcome.Disposition)
		assert.Empty(t, outcome.OperationID)
		assert.Empty(t, ops.records)
	})

	t.Run("transient failure is queued", func(t *testing.T) {
		svc, client, ops, _, _ := newTestService(t)
		client.fail(provider.NewTransientError(provider.CodeTimeout, "timed out", nil))

		outcome := svc.AddMovie(ctx, "list-1", "user-1", 550)
		require.Equal(t, types.DispositionQueued, outcome.Disposition)
		assert.NotEmpty(t, outcome.OperationID)

		record := ops.only(t)
		assert.Equal(t, outcome.OperationID, record.ID)
		assert.Equal(t, types.OpAddMovie, record.OperationType)
		assert.Equal(t, "user-1", record.OwnerID)
		require.NotNil(t, record.TargetListID)
		assert.Equal(t, "list-1", *record.TargetListID)
		assert.Equal(t, types.StatusPending, record.Status)
		assert.Equal(t, models.AddMoviePayload{MovieID: 550}, record.Payload)
	})

	t.Run("duplicate movie fails and is never queued", func(t *testing.T) {
		svc, client, ops, _, _ := newTestService(t)
		client.fail(provider.NewPermanentError(provider.CodeDuplicateMovie, "already listed", nil))

		outcome := svc.AddMovie(ctx, "list-1", "user-1", 550)
		assert.Equal(t, types.DispositionFailed, outcome.Disposition)
		assert.Equal(t, provider.CodeDuplicateMovie, outcome.Reason)
		assert.Empty(t, ops.records)
	})

	t.Run("session expiry fails and is never queued", func(t *testing.T) {
		svc, client, ops, _, _ := newTestService(t)
		client.fail(provider.NewSessionExpiredError("token expired"))

		outcome := svc.AddMovie(ctx, "list-1", "user-1", 550)
		assert.Equal(t, types.DispositionFailed, outcome.Disposition)
		assert.Equal(t, provider.CodeSessionExpired, outcome.Reason)
		assert.Empty(t, ops.records)
	})

	t.Run("queue storage down yields failed", func(t *testing.T) {
		svc, client, ops, _, _ := newTestService(t)
		client.fail(provider.NewTransientError(provider.CodeNetwork, "down", nil))
		ops.createErr = errors.New("postgres down")

		outcome := svc.AddMovie(ctx, "list-1", "user-1", 550)
		assert.Equal(t, types.DispositionFailed, outcome.Disposition)
		assert.Equal(t, "queue_unavailable", outcome.Reason)
	})
}

func TestMutationsQueueWithCorrectPayloads(t *testing.T) {
	ctx := context.Background()
	name := "Renamed"
	target := "list-1"

	cases := []struct {
		name        string
		run         func(svc *ListService) *Outcome
		wantType    types.OperationType
		wantPayload models.OperationPayload
		wantTarget  *string
	}{
		{
			name:        "create list",
			run:         func(svc *ListService) *Outcome { return svc.CreateList(ctx, "user-1", "Watchlist", "", true) },
			wantType:    types.OpCreateList,
			wantPayload: models.CreateListPayload{Name: "Watchlist", IsPublic: true},
			wantTarget:  nil,
		},
		{
			name: "update list",
			run: func(svc *ListService) *Outcome {
				return svc.UpdateList(ctx, "list-1", "user-1", provider.ListFields{Name: &name})
			},
			wantType:    types.OpUpdateList,
			wantPayload: models.UpdateListPayload{Name: &name},
			wantTarget:  &target,
		},
		{
			name:        "delete list",
			run:         func(svc *ListService) *Outcome { return svc.DeleteList(ctx, "list-1", "user-1") },
			wantType:    types.OpDeleteList,
			wantPayload: models.DeleteListPayload{},
			wantTarget:  &target,
		},
		{
			name:        "clear list",
			run:         func(svc *ListService) *Outcome { return svc.ClearList(ctx, "list-1", "user-1") },
			wantType:    types.OpClearList,
			wantPayload: models.ClearListPayload{},
			wantTarget:  &target,
		},
		{
			name:        "remove movie",
			run:         func(svc *ListService) *Outcome { return svc.RemoveMovie(ctx, "list-1", "user-1", 550) },
			wantType:    types.OpRemoveMovie,
			wantPayload: models.RemoveMoviePayload{MovieID: 550},
			wantTarget:  &target,
		},
		{
			name:        "toggle privacy",
			run:         func(svc *ListService) *Outcome { return svc.TogglePrivacy(ctx, "list-1", "user-1", true) },
			wantType:    types.OpTogglePrivacy,
			wantPayload: models.TogglePrivacyPayload{IsPublic: true},
			wantTarget:  &target,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, client, ops, _, _ := newTestService(t)
			client.fail(provider.NewTransientError(provider.CodeRemoteDown, "unavailable", nil))

			outcome := tc.run(svc)
			require.Equal(t, types.DispositionQueued, outcome.Disposition)

			record := ops.only(t)
			assert.Equal(t, tc.wantType, record.OperationType)
			assert.Equal(t, tc.wantPayload, record.Payload)
			if tc.wantTarget == nil {
				assert.Nil(t, record.TargetListID)
			} else {
				require.NotNil(t, record.TargetListID)
				assert.Equal(t, *tc.wantTarget, *record.TargetListID)
			}
		})
	}
}

func TestAppliedMutationRefreshesCache(t *testing.T) {
	ctx := context.Background()
	svc, _, _, cache, _ := newTestService(t)

	outcome := svc.CreateList(ctx, "user-1", "Watchlist", "", false)
	require.Equal(t, types.DispositionApplied, outcome.Disposition)
	require.NotNil(t, outcome.List)

	cached, err := cache.Get(ctx, "user-1", outcome.List.ListID)
	require.NoError(t, err)
	assert.Equal(t, "Watchlist", cached.Name)
}

func TestGetListCacheFirst(t *testing.T) {
	ctx := context.Background()
	svc, client, _, cache, _ := newTestService(t)

	require.NoError(t, cache.Set(ctx, &models.RemoteList{ListID: "list-1", OwnerID: "user-1", Name: "Cached"}))

	list, err := svc.GetList(ctx, "list-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Cached", list.Name)
	assert.Zero(t, client.calls)

	// A miss falls through to the provider and backfills the cache.
	list, err = svc.GetList(ctx, "list-2", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Fetched", list.Name)

	cached, err := cache.Get(ctx, "user-1", "list-2")
	require.NoError(t, err)
	assert.Equal(t, "Fetched", cached.Name)
}

func TestRetryNowRequeuesAndDrains(t *testing.T) {
	ctx := context.Background()
	svc, _, ops, _, drainer := newTestService(t)

	ops.records["op-1"] = &models.OperationRecord{
		ID: "op-1", OwnerID: "user-1", Status: types.StatusFailedPermanent, RetryCount: 4,
	}
	ops.records["op-2"] = &models.OperationRecord{
		ID: "op-2", OwnerID: "user-2", Status: types.StatusFailedPermanent,
	}

	requeued, err := svc.RetryNow(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	assert.Equal(t, types.StatusPending, ops.records["op-1"].Status)
	assert.Equal(t, 0, ops.records["op-1"].RetryCount)
	assert.Equal(t, types.StatusFailedPermanent, ops.records["op-2"].Status)
	assert.Equal(t, []string{"user-1"}, drainer.owners)
}

func TestCancelOperation(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels own pending operation", func(t *testing.T) {
		svc, _, ops, _, _ := newTestService(t)
		ops.records["op-1"] = &models.OperationRecord{ID: "op-1", OwnerID: "user-1", Status: types.StatusPending}

		require.NoError(t, svc.CancelOperation(ctx, "op-1", "user-1"))
		assert.Equal(t, types.StatusCancelled, ops.records["op-1"].Status)
	})

	t.Run("rejects another user's operation", func(t *testing.T) {
		svc, _, ops, _, _ := newTestService(t)
		ops.records["op-1"] = &models.OperationRecord{ID: "op-1", OwnerID: "user-1", Status: types.StatusPending}

		err := svc.CancelOperation(ctx, "op-1", "user-2")
		var svcErr *types.ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "FORBIDDEN", svcErr.Code)
		assert.Equal(t, types.StatusPending, ops.records["op-1"].Status)
	})

	t.Run("rejects in-flight operation", func(t *testing.T) {
		svc, _, ops, _, _ := newTestService(t)
		ops.records["op-1"] = &models.OperationRecord{ID: "op-1", OwnerID: "user-1", Status: types.StatusInProgress}

		err := svc.CancelOperation(ctx, "op-1", "user-1")
		assert.ErrorIs(t, err, storage.ErrNotCancellable)
	})

	t.Run("unknown operation", func(t *testing.T) {
		svc, _, _, _, _ := newTestService(t)
		err := svc.CancelOperation(ctx, "missing", "user-1")
		assert.ErrorIs(t, err, storage.ErrOperationNotFound)
	})
}

func TestQueueStats(t *testing.T) {
	ctx := context.Background()
	svc, _, ops, _, _ := newTestService(t)

	ops.records["op-1"] = &models.OperationRecord{ID: "op-1", OwnerID: "user-1", Status: types.StatusPending}
	ops.records["op-2"] = &models.OperationRecord{ID: "op-2", OwnerID: "user-1", Status: types.StatusInProgress}
	ops.records["op-3"] = &models.OperationRecord{ID: "op-3", OwnerID: "user-1", Status: types.StatusFailedPermanent}
	ops.records["op-4"] = &models.OperationRecord{ID: "op-4", OwnerID: "user-1", Status: types.StatusCompleted}
	ops.records["op-5"] = &models.OperationRecord{ID: "op-5", OwnerID: "user-2", Status: types.StatusPending}

	stats, err := svc.QueueStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PendingCount)
	assert.Equal(t, 1, stats.FailedCount)
}
