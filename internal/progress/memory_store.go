package progress

import (
	"context"
	"sync"

	"github.com/agrifield/backend/internal/domain"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string]domain.ProgressSnapshot
}

// NewMemoryStore creates an empty in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]domain.ProgressSnapshot)}
}

func (s *MemoryStore) Set(_ context.Context, uploadID string, snap domain.ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[uploadID] = snap
	return nil
}

func (s *MemoryStore) Get(_ context.Context, uploadID string) (domain.ProgressSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[uploadID]
	return snap, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, uploadID)
	return nil
}
