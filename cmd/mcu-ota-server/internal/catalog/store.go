package catalog

import "sync/atomic"

// Store publishes the current catalog snapshot. It is safe for concurrent use,
// readers never block and always see a complete snapshot.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore creates a store holding an empty catalog.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(New())
	return s
}

// Load returns the current snapshot, never nil.
func (s *Store) Load() *Catalog {
	return s.current.Load()
}

// Swap publishes c and returns the previous snapshot.
func (s *Store) Swap(c *Catalog) *Catalog {
	if c == nil {
		c = New()
	}
	return s.current.Swap(c)
}
