package store

import (
	"context"
	"sync"

	"commerce-agent/internal/models"
)

// MemoryStore keeps orders in process memory
type MemoryStore struct {
	mu     sync.Mutex
	orders []models.OrderRecord
}

// NewMemoryStore creates an empty in-memory order store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, record models.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, record)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.OrderRecord, len(s.orders))
	copy(out, s.orders)
	return out, nil
}
