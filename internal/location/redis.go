package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "location:session:"

// RedisStore persists session location state in Redis, CBOR-encoded. Records
// are written without a TTL since location state never auto-expires.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed location store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

// Get returns the persisted state for the session.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*State, error) {
	data, err := s.client.Get(ctx, redisKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load location state: %w", err)
	}

	var state State
	if err := cbor.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode location state: %w", err)
	}
	return &state, nil
}

// Put stores the state for the session, replacing any existing record.
func (s *RedisStore) Put(ctx context.Context, sessionID string, state *State) error {
	data, err := cbor.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode location state: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(sessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store location state: %w", err)
	}
	return nil
}

// Delete removes the session's state.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, redisKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete location state: %w", err)
	}
	return nil
}
