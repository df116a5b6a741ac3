package blob

import (
	"context"
	"sync"

	"github.com/subit-dev/posterd/internal/common"
)

// Memory keeps blobs in a map.
type Memory struct {
	mu   sync.RWMutex
	data map[uint64][]byte
}

func NewMemory() *Memory {
	return &Memory{data: map[uint64][]byte{}}
}

func (m *Memory) Put(ctx context.Context, hash uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[hash] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Get(ctx context.Context, hash uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[hash]
	if !ok {
		return nil, common.ErrImageNotFound
	}
	return append([]byte(nil), d...), nil
}

func (m *Memory) Delete(ctx context.Context, hash uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, hash)
	return nil
}
