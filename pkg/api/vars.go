package api

import (
	"reflect"
	"sync"
)

// VarStore is the run-scoped key/value store shared by all nodes of an
// execution. It is created with the execution and discarded with it;
// values are never visible across runs.
//
// Access is serialized internally, so concurrent use from concurrently
// executing nodes is safe. Plain Set is last-write-wins: two nodes
// writing the same key with no path between them race, and whichever
// completes last sticks. Workflows that need write-write coordination
// should use SetDefault or CompareAndSwap to make the contention
// explicit.
type VarStore struct {
	mu   sync.RWMutex
	vars map[string]any
}

// NewVarStore returns an empty variable store.
func NewVarStore() *VarStore {
	return &VarStore{vars: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *VarStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (s *VarStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[key] = value
}

// SetDefault stores value under key only if the key is absent. It
// returns the value that is stored under key afterwards and whether
// this call stored it.
func (s *VarStore) SetDefault(key string, value any) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.vars[key]; ok {
		return existing, false
	}
	s.vars[key] = value
	return value, true
}

// CompareAndSwap replaces the value under key with next only if the
// current value equals prev. A nil prev matches an absent key.
// Equality is structural: values commonly arrive as JSON-decoded maps
// and slices, which Go's == would refuse to compare.
func (s *VarStore) CompareAndSwap(key string, prev, next any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.vars[key]
	if !ok {
		if prev != nil {
			return false
		}
	} else if !reflect.DeepEqual(current, prev) {
		return false
	}
	s.vars[key] = next
	return true
}

// Delete removes key from the store.
func (s *VarStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, key)
}

// Len returns the number of stored keys.
func (s *VarStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// Snapshot returns a copy of the current contents.
func (s *VarStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}
