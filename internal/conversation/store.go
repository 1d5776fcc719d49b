package conversation

import (
	"context"
	"errors"

	"github.com/patrickmn/go-cache"
)

var ErrStateNotFound = errors.New("STATE_NOT_FOUND")

// StateStore holds the active states keyed by user id. Implementations hand
// out copies, so callers must Put a state back after changing it.
type StateStore interface {
	Get(ctx context.Context, userID string) (*State, error)
	Put(ctx context.Context, state *State) error
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) ([]*State, error)
}

// MemoryStore keeps states in process memory. Entries never expire on their
// own; the tracker decides when a session is over.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, 0)}
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*State, error) {
	if x, found := m.cache.Get(userID); found {
		return x.(*State).clone(), nil
	}
	return nil, ErrStateNotFound
}

func (m *MemoryStore) Put(_ context.Context, state *State) error {
	m.cache.Set(state.UserID, state.clone(), cache.NoExpiration)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.cache.Delete(userID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*State, error) {
	items := m.cache.Items()
	states := make([]*State, 0, len(items))
	for _, item := range items {
		states = append(states, item.Object.(*State).clone())
	}
	return states, nil
}
