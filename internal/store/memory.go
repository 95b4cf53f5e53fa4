package store

import (
	"context"
	"sync"

	"github.com/DoyleJ11/auction-backend/internal/engine"
)

// MemoryStore holds the encoded snapshot in memory. Used by tests and by
// STORE_DRIVER=memory for throwaway sessions.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func NewMemory() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(_ context.Context) (engine.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return engine.State{}, ErrNotFound
	}
	return Decode(m.data)
}

func (m *MemoryStore) Save(_ context.Context, s engine.State) error {
	b, err := Encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = b
	m.saves++
	m.mu.Unlock()
	return nil
}

// Saves reports how many snapshots have been written.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MemoryStore) Close() error { return nil }
