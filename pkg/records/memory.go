package records

import (
	"context"
	"iter"
	"sync"
)

// Memory is an in-memory Store. It is safe for concurrent use and intended
// primarily for testing.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, r *Record) error {
	v, err := encode(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[string(recordKey(r.ID))] = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	v, ok := m.data[string(recordKey(id))]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(v)
}

func (m *Memory) List(_ context.Context) iter.Seq2[*Record, error] {
	m.mu.RLock()
	values := make([][]byte, 0, len(m.data))
	for _, v := range m.data {
		values = append(values, v)
	}
	m.mu.RUnlock()
	return newestFirst(values)
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.data, string(recordKey(id)))
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)
