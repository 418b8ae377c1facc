package index

import (
	"context"
	"sync"
)

// MemoryBackend keeps the document in memory. Used for throwaway drivers such
// as connectivity probes, and in tests.
type MemoryBackend struct {
	name string

	mu     sync.Mutex
	data   []byte
	exists bool
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend(name string) *MemoryBackend {
	return &MemoryBackend{name: name}
}

func (b *MemoryBackend) Load(context.Context) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.exists {
		return nil, false, nil
	}
	return append([]byte(nil), b.data...), true, nil
}

func (b *MemoryBackend) Store(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
	b.exists = true
	return nil
}

func (b *MemoryBackend) Name() string {
	return "memory:" + b.name
}
