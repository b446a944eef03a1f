// Package client implements the TaskFlow client-side state layer: a
// remote API client, an in-memory cache of projects and tasks, an
// optimistic mutation coordinator that reconciles temporary ids
// against server-confirmed records, and a real-time change listener
// that keeps multiple open sessions consistent.
package client

import (
	"encoding/json"
	"sync"
)

// ProjectScope is the cache scope holding the user's project list.
// Tasks are scoped by their project id.
const ProjectScope = "projects"

// Entity is anything the store can cache by id
type Entity interface {
	EntityID() string
}

// Store is an in-memory cache of entities grouped by scope. Each
// primitive runs to completion under the lock and is immediately
// visible to readers; compositions of primitives are not transactional.
type Store[T Entity] struct {
	mu     sync.RWMutex
	scopes map[string][]T
}

func NewStore[T Entity]() *Store[T] {
	return &Store[T]{scopes: make(map[string][]T)}
}

// Load replaces the entire entity list for a scope. The last full load
// for a scope wins; no merge with prior partial state.
func (s *Store[T]) Load(scope string, entities []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope] = append([]T(nil), entities...)
}

// Insert prepends an entity to the scope's list. No uniqueness check
// is performed; callers must not insert a duplicate id.
func (s *Store[T]) Insert(scope string, entity T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope] = append([]T{entity}, s.scopes[scope]...)
}

// Remove filters out any entity with matching id. Removing an absent
// id is a no-op; the return value reports whether anything was removed.
func (s *Store[T]) Remove(scope, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entities := s.scopes[scope]
	for i, e := range entities {
		if e.EntityID() == id {
			s.scopes[scope] = append(entities[:i:i], entities[i+1:]...)
			return true
		}
	}
	return false
}

// Patch shallow-merges fields into the matching entity. fields may be
// any JSON-marshalable value (a partial-update struct, a map, or raw
// JSON from a change event); only the keys present in its JSON
// encoding are applied. Patching an absent id is a no-op.
func (s *Store[T]) Patch(scope, id string, fields any) bool {
	raw, ok := fields.(json.RawMessage)
	if !ok {
		encoded, err := json.Marshal(fields)
		if err != nil {
			return false
		}
		raw = encoded
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entities := s.scopes[scope]
	for i, e := range entities {
		if e.EntityID() == id {
			// Rebuild from JSON so the merged value shares no slice
			// backing arrays with snapshots handed out earlier
			base, err := json.Marshal(e)
			if err != nil {
				return false
			}
			var merged T
			if err := json.Unmarshal(base, &merged); err != nil {
				return false
			}
			if err := json.Unmarshal(raw, &merged); err != nil {
				return false
			}
			entities[i] = merged
			return true
		}
	}
	return false
}

// List returns a copy of the scope's entities in cache order
func (s *Store[T]) List(scope string) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]T(nil), s.scopes[scope]...)
}

// Get returns the entity with the given id, if cached
func (s *Store[T]) Get(scope, id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.scopes[scope] {
		if e.EntityID() == id {
			return e, true
		}
	}
	var zero T
	return zero, false
}

// Len returns the number of entities cached for the scope
func (s *Store[T]) Len(scope string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scopes[scope])
}
