package storage

import (
	"context"
	"sync"
)

// Memory keeps slots in process memory. Nothing survives a restart.
type Memory struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string][]byte)}
}

// Load returns a copy of the stored value.
func (m *Memory) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.slots[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Save overwrites the slot with a copy of value.
func (m *Memory) Save(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots[key] = append([]byte(nil), value...)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

var _ Backend = (*Memory)(nil)
