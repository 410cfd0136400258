package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned for operations on an unknown session key.
var ErrNotFound = errors.New("session not found")

// Store keeps one State per session key.
//
// Update is the only way to mutate a stored state: implementations guarantee
// at most one fn runs per key at a time, and persist the state only when fn
// returns nil.
type Store interface {
	Put(ctx context.Context, st *State) error
	Get(ctx context.Context, key string) (*State, error)
	Update(ctx context.Context, key string, fn func(st *State) error) error
	Delete(ctx context.Context, key string) error
	// ExpireIdle deletes states not updated since before and returns how many went.
	ExpireIdle(ctx context.Context, before time.Time) (int, error)
}

// MemoryStore is an in-process Store with a mutex per key.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
	locks  *keyLocks
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*State),
		locks:  newKeyLocks(),
	}
}

// Put stores a copy of st, replacing any previous state for st.Key.
func (m *MemoryStore) Put(_ context.Context, st *State) error {
	if st == nil || st.Key == "" {
		return errors.New("state key is required")
	}
	unlock := m.locks.lock(st.Key)
	defer unlock()

	cp := st.Clone()
	cp.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	m.states[st.Key] = cp
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the state for key.
func (m *MemoryStore) Get(_ context.Context, key string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[key]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

// Update runs fn on a copy of the state and stores it if fn succeeds.
func (m *MemoryStore) Update(_ context.Context, key string, fn func(st *State) error) error {
	unlock := m.locks.lock(key)
	defer unlock()

	m.mu.RLock()
	st, ok := m.states[key]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	work := st.Clone()
	if err := fn(work); err != nil {
		return err
	}
	work.UpdatedAt = time.Now().UTC()

	m.mu.Lock()
	// Deleted while fn ran: the delete wins.
	if _, still := m.states[key]; still {
		m.states[key] = work
	}
	m.mu.Unlock()
	return nil
}

// Delete removes the state for key. Unknown keys are not an error.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.states, key)
	m.mu.Unlock()
	return nil
}

// ExpireIdle drops states whose last update is before the cutoff. Key locks
// are left alone; an Update in flight on an expired key finds it gone and
// discards its result.
func (m *MemoryStore) ExpireIdle(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, st := range m.states {
		if st.UpdatedAt.Before(before) {
			delete(m.states, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
