package storage

import (
	"context"
	"sync"
)

// MemoryStorage is a process-local Storage.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]*StoreItem
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]*StoreItem)}
}

func (m *MemoryStorage) Read(_ context.Context, keys []string) (map[string]*StoreItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*StoreItem, len(keys))
	for _, k := range keys {
		if item, ok := m.items[k]; ok {
			out[k] = item.Clone()
		}
	}
	return out, nil
}

func (m *MemoryStorage) Write(_ context.Context, items map[string]*StoreItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, item := range items {
		m.items[k] = item.Clone()
	}
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

var _ Storage = (*MemoryStorage)(nil)
