package progress

import (
	"context"
	"sync"

	"github.com/fhuszti/assets-ms-go/internal/port"
)

// MemoryStore keeps progress in process, for deployments without Redis.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]float64
}

// compile-time check: *MemoryStore must satisfy port.ProgressStore
var _ port.ProgressStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]float64)}
}

func (s *MemoryStore) Set(_ context.Context, key string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}
