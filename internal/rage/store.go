package rage

import (
	"sort"
	"sync"
)

// entry holds one conversation's state behind its own lock so that mutations
// on different conversations never contend.
type entry struct {
	mu    sync.Mutex
	state State
}

// StateStore maps conversation ids to rage states. Safe for concurrent use.
type StateStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{entries: make(map[string]*entry)}
}

// entry returns the entry for id, inserting a zero state if it is missing.
func (s *StateStore) entry(id string) *entry {
	s.mu.RLock()
	e := s.entries[id]
	s.mu.RUnlock()
	if e != nil {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.entries[id]; e != nil {
		return e
	}
	e = &entry{}
	s.entries[id] = e
	return e
}

// Load returns a copy of the state for id, creating a default one if absent.
func (s *StateStore) Load(id string) State {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Update runs fn with exclusive access to the state for id and returns the
// resulting copy. fn reports whether it changed anything.
func (s *StateStore) Update(id string, fn func(st *State) bool) (State, bool) {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	changed := fn(&e.state)
	return e.state, changed
}

// Keys returns a point-in-time snapshot of tracked conversation ids, sorted.
func (s *StateStore) Keys() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked conversations.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
