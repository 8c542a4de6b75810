package storage

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

func (m *MemoryStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot, ok := m.snapshots[key]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

func (m *MemoryStore) Save(ctx context.Context, key string, snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[key] = snapshot
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
