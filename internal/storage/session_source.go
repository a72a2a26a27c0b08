package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/listsync/internal/provider"
	"github.com/redis/go-redis/v9"
)

// SessionStore resolves provider session tokens from Redis. The external
// auth subsystem owns the token exchange and writes each user's current
// token under session:<owner-id>; this side only reads.
type SessionStore struct {
	redis *RedisCache
}

// NewSessionStore creates a Redis-backed session source.
func NewSessionStore(redis *RedisCache) *SessionStore {
	return &SessionStore{redis: redis}
}

// sessionKey builds the key the auth subsystem writes tokens under.
func sessionKey(ownerID string) string {
	return "session:" + ownerID
}

// SessionToken returns the owner's current provider token, or a
// session_expired error when none exists.
func (s *SessionStore) SessionToken(ctx context.Context, ownerID string) (string, error) {
	token, err := s.redis.Client().Get(ctx, sessionKey(ownerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", provider.ErrNoSession
		}
		return "", fmt.Errorf("failed to look up session: %w", err)
	}

	if token == "" {
		return "", provider.ErrNoSession
	}

	return token, nil
}
