package provider

import (
	"context"
	"sync"

	"nickandperla.net/scrap/internal/hash"
)

// Mock is a mock provider for testing.
type Mock struct {
	mu      sync.Mutex
	Scraps  map[hash.Hash][]byte
	Handler func(ctx context.Context, h hash.Hash) ([]byte, error)
	calls   int
}

// NewMock creates a new mock provider serving the given scraps.
func NewMock(scraps map[hash.Hash][]byte) *Mock {
	if scraps == nil {
		scraps = make(map[hash.Hash][]byte)
	}
	return &Mock{Scraps: scraps}
}

// NewMockHandler creates a mock provider with a custom handler.
func NewMockHandler(handler func(ctx context.Context, h hash.Hash) ([]byte, error)) *Mock {
	return &Mock{Handler: handler}
}

// Fetch returns the mock scrap or calls the handler.
func (m *Mock) Fetch(ctx context.Context, h hash.Hash) ([]byte, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.Handler != nil {
		return m.Handler(ctx, h)
	}
	data, ok := m.Scraps[h]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Calls returns how many times Fetch was called.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
