package cache

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage is an in-memory Storage implementation.
type MemoryStorage struct {
	mu     sync.RWMutex
	stores map[string]*MemoryStore
	order  []string
	closed bool
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		stores: make(map[string]*MemoryStore),
	}
}

// Open returns the store named name, creating it if needed.
func (s *MemoryStorage) Open(_ context.Context, name string) (Store, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if st, ok := s.stores[name]; ok {
		return st, nil
	}
	st := newMemoryStore(name)
	s.stores[name] = st
	s.order = append(s.order, name)
	return st, nil
}

// Has reports whether a store named name exists.
func (s *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.stores[name]
	return ok, nil
}

// Delete removes the store named name. Handles to the store already held by
// callers stop accepting writes.
func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	st, ok := s.stores[name]
	if ok {
		delete(s.stores, name)
		s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	}
	s.mu.Unlock()

	if ok {
		st.detach()
	}
	return ok, nil
}

// Keys lists store names in creation order.
func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order), nil
}

// Match searches every store in creation order.
func (s *MemoryStorage) Match(ctx context.Context, key Key) (*Entry, bool, error) {
	s.mu.RLock()
	stores := make([]*MemoryStore, 0, len(s.order))
	for _, name := range s.order {
		stores = append(stores, s.stores[name])
	}
	s.mu.RUnlock()

	for _, st := range stores {
		if e, ok, _ := st.Match(ctx, key); ok {
			return e, true, nil
		}
	}
	return nil, false, nil
}

// Close drops every store.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stores = make(map[string]*MemoryStore)
	s.order = nil
	return nil
}

// MemoryStore is a single in-memory named store.
type MemoryStore struct {
	name     string
	mu       sync.RWMutex
	entries  map[Key]*Entry
	order    []Key
	detached bool
}

func newMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:    name,
		entries: make(map[Key]*Entry),
	}
}

// Name returns the store name.
func (m *MemoryStore) Name() string {
	return m.name
}

// Match returns a copy of the entry under key.
func (m *MemoryStore) Match(_ context.Context, key Key) (*Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

// Put stores a copy of entry under key.
func (m *MemoryStore) Put(_ context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return ErrNilEntry
	}
	c := entry.Clone()
	c.Key = key

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detached {
		return ErrStoreDeleted
	}
	if _, exists := m.entries[key]; !exists {
		m.order = append(m.order, key)
	}
	m.entries[key] = c
	return nil
}

// Delete removes the entry under key. Idempotent.
func (m *MemoryStore) Delete(_ context.Context, key Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return false, nil
	}
	delete(m.entries, key)
	m.order = slices.DeleteFunc(m.order, func(k Key) bool { return k == key })
	return true, nil
}

// Keys lists keys in insertion order.
func (m *MemoryStore) Keys(_ context.Context) ([]Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order), nil
}

func (m *MemoryStore) detach() {
	m.mu.Lock()
	m.detached = true
	m.entries = make(map[Key]*Entry)
	m.order = nil
	m.mu.Unlock()
}

// Ensure MemoryStorage implements Storage
var _ Storage = (*MemoryStorage)(nil)

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
