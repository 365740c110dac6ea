package userstate

import (
	"context"
	"errors"
	"sync"

	"github.com/odyssey-erp/userdirectory/internal/users"
)

// ErrDispatchConflict is returned when a dispatch keeps losing races with
// concurrent writers.
var ErrDispatchConflict = errors.New("userstate: concurrent dispatch conflict")

// Store keeps one State per key. Dispatch applies Reduce atomically.
type Store interface {
	Load(ctx context.Context, key string) (State, error)
	Dispatch(ctx context.Context, key string, action Action) (State, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Load returns the state stored under key.
func (m *MemoryStore) Load(ctx context.Context, key string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.states[key]), nil
}

// Dispatch reduces action into the state stored under key.
func (m *MemoryStore) Dispatch(ctx context.Context, key string, action Action) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := Reduce(m.states[key], action)
	m.states[key] = next
	return clone(next), nil
}

// clone detaches the snapshot from the stored value so callers cannot
// mutate the store through it.
func clone(s State) State {
	if s.Users != nil {
		s.Users = append([]users.User(nil), s.Users...)
	}
	if s.UserDetails != nil {
		d := *s.UserDetails
		s.UserDetails = &d
	}
	return s
}
