package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/listsync/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss means the list is not in the cache.
var ErrCacheMiss = errors.New("list cache miss")

// ListCache caches fetched remote lists. The cache is never authoritative;
// a fresh fetch from the provider always overwrites it, and any successful
// queued mutation invalidates the touched list.
type ListCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewListCache creates a new list cache with the given TTL.
func NewListCache(redis *RedisCache, ttl time.Duration) *ListCache {
	return &ListCache{
		redis: redis,
		ttl:   ttl,
	}
}

// listKey builds the cache key for a list.
// Format: list:<owner-id>:<list-id>
func listKey(ownerID, listID string) string {
	return fmt.Sprintf("list:%s:%s", ownerID, listID)
}

// Get retrieves a cached list, or ErrCacheMiss.
func (c *ListCache) Get(ctx context.Context, ownerID, listID string) (*models.RemoteList, error) {
	data, err := c.redis.Client().Get(ctx, listKey(ownerID, listID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cached list: %w", err)
	}

	var list models.RemoteList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode cached list: %w", err)
	}

	return &list, nil
}

// Set stores a freshly fetched list.
func (c *ListCache) Set(ctx context.Context, list *models.RemoteList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode list for cache: %w", err)
	}

	if err := c.redis.Client().Set(ctx, listKey(list.OwnerID, list.ListID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache list: %w", err)
	}

	return nil
}

// Invalidate drops a cached list after a mutation touched it.
func (c *ListCache) Invalidate(ctx context.Context, ownerID, listID string) error {
	if err := c.redis.Client().Del(ctx, listKey(ownerID, listID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached list: %w", err)
	}
	return nil
}

// InvalidateOwner drops every cached list for an owner. Used when a queue
// drain may have touched lists the caller cannot enumerate.
func (c *ListCache) InvalidateOwner(ctx context.Context, ownerID string) error {
	pattern := fmt.Sprintf("list:%s:*", ownerID)

	iter := c.redis.Client().Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Client().Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to invalidate owner lists: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan owner lists: %w", err)
	}

	return nil
}
