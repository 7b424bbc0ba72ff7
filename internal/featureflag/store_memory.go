package featureflag

import (
	"context"
	"sync"
)

// MemStore is an in-memory flag store for tests.
type MemStore struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewMemStore creates an empty in-memory flag store.
func NewMemStore() *MemStore {
	return &MemStore{flags: make(map[string]bool)}
}

func (m *MemStore) IsEnabled(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[name], nil
}

func (m *MemStore) SetEnabled(_ context.Context, name string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[name] = enabled
	return nil
}
