package location

import (
	"context"
	"errors"
	"sync"
)

// ErrStateNotFound indicates no persisted state exists for the session.
var ErrStateNotFound = errors.New("location state not found")

// Store persists session location state. Records never auto-expire; state is
// removed only by an explicit Clear.
type Store interface {
	Get(ctx context.Context, sessionID string) (*State, error)
	Put(ctx context.Context, sessionID string, state *State) error
	Delete(ctx context.Context, sessionID string) error
}

// InMemoryStore is a Store backed by a mutex-guarded map, used in tests and
// single-process deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states: make(map[string]State),
	}
}

// Get returns the persisted state for the session.
func (s *InMemoryStore) Get(ctx context.Context, sessionID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[sessionID]
	if !ok {
		return nil, ErrStateNotFound
	}

	copied := state
	if state.Coords != nil {
		coords := *state.Coords
		copied.Coords = &coords
	}
	return &copied, nil
}

// Put stores the state for the session, replacing any existing record.
func (s *InMemoryStore) Put(ctx context.Context, sessionID string, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *state
	if state.Coords != nil {
		coords := *state.Coords
		copied.Coords = &coords
	}
	s.states[sessionID] = copied
	return nil
}

// Delete removes the session's state. Deleting a missing record is not an
// error.
func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, sessionID)
	return nil
}
