package registry

import "sync"

// Store is a mutex-guarded keyed collection with owner tags. The zero
// value is not usable; create stores with newStore.
type Store[T any] struct {
	mu     sync.RWMutex
	items  map[string]T
	owners map[string]string
}

func newStore[T any]() *Store[T] {
	return &Store[T]{
		items:  make(map[string]T),
		owners: make(map[string]string),
	}
}

// Put inserts or replaces the record for id.
func (s *Store[T]) Put(id, owner string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = value
	s.owners[id] = owner
}

// Get returns the record for id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	return v, ok
}

// Owner returns the owner tag for id.
func (s *Store[T]) Owner(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.owners[id]
	return owner, ok
}

// Delete removes the record for id and reports whether it existed.
func (s *Store[T]) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	delete(s.items, id)
	delete(s.owners, id)
	return ok
}

// List returns all records in unspecified order.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.items))
	for _, v := range s.items {
		out = append(out, v)
	}
	return out
}

// ListOwned returns the records tagged with owner.
func (s *Store[T]) ListOwned(owner string) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0)
	for id, v := range s.items {
		if s.owners[id] == owner {
			out = append(out, v)
		}
	}
	return out
}

// PurgeOwner removes every record tagged with owner and returns the
// removed ids.
func (s *Store[T]) PurgeOwner(owner string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, recordOwner := range s.owners {
		if recordOwner == owner {
			delete(s.items, id)
			delete(s.owners, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Len returns the number of records.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
