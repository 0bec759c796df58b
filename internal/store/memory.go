package store

import (
	"iter"
	"maps"
	"sync"

	"github.com/aweris/halcache/internal/future"
)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	entries map[string]*Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty table.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Get(uri string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[uri]
	return e, ok
}

func (s *MemoryStore) Has(uri string) bool {
	_, ok := s.Get(uri)
	return ok
}

func (s *MemoryStore) AddEmpty(uri string, load *future.Future[*Entry]) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := NewEntry(uri)
	e.Meta.Loading = true
	e.Load = load
	s.entries[uri] = e
	return e
}

func (s *MemoryStore) Add(entries map[string]*Entry) map[string]*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make(map[string]*Entry, len(entries))
	for uri, in := range entries {
		e := in.Clone()
		e.Meta.Self = uri
		e.Meta.Loading = false
		e.Meta.Reloading = false
		// A delete in flight outlives fresh data arriving for the same entity.
		if prev, ok := s.entries[uri]; ok && prev.Meta.Deleting {
			e.Meta.Deleting = true
		}
		e.Load = future.Resolved(e)
		s.entries[uri] = e
		added[uri] = e
	}
	return added
}

func (s *MemoryStore) MarkReloading(uri string, load *future.Future[*Entry]) bool {
	return s.update(uri, func(e *Entry) {
		e.Meta.Reloading = true
		e.Load = load
	})
}

func (s *MemoryStore) ReloadingFailed(uri string) {
	s.update(uri, func(e *Entry) {
		e.Meta.Reloading = false
		e.Load = future.Resolved(e)
	})
}

func (s *MemoryStore) MarkDeleting(uri string) bool {
	return s.update(uri, func(e *Entry) { e.Meta.Deleting = true })
}

func (s *MemoryStore) DeletingFailed(uri string) {
	s.update(uri, func(e *Entry) { e.Meta.Deleting = false })
}

func (s *MemoryStore) Purge(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, uri)
}

func (s *MemoryStore) PurgeLoading(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[uri]
	if !ok || !e.Meta.Loading {
		return false
	}
	delete(s.entries, uri)
	return true
}

func (s *MemoryStore) PurgeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Entries() iter.Seq2[string, *Entry] {
	s.mu.RLock()
	snapshot := maps.Clone(s.entries)
	s.mu.RUnlock()

	return func(yield func(string, *Entry) bool) {
		for uri, e := range snapshot {
			if !yield(uri, e) {
				return
			}
		}
	}
}

// update replaces the entry under uri with a modified copy.
func (s *MemoryStore) update(uri string, fn func(e *Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.entries[uri]
	if !ok {
		return false
	}
	e := prev.Clone()
	fn(e)
	s.entries[uri] = e
	return true
}
