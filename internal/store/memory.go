package store

import (
	"sync"

	"nickandperla.net/scrap/internal/hash"
)

// Memory keeps entries in a map. It is the default backend when no
// database path is configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[hash.Hash][]byte
}

func NewMemory() *Memory {
	return &Memory{entries: map[hash.Hash][]byte{}}
}

// Get retrieves the entry for h.
func (m *Memory) Get(h hash.Hash) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.entries[h]
	return data, ok, nil
}

// Put stores a copy of data under h if h is new.
func (m *Memory) Put(h hash.Hash, data []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[h]; ok {
		return false, nil
	}
	m.entries[h] = append([]byte(nil), data...)
	return true, nil
}

func (m *Memory) Len() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *Memory) Close() error { return nil }
