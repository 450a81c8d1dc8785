// Package pending stores the per-client order negotiation state.
// A client without an entry is Idle; a client with an entry is
// awaiting confirmation of that item and quantity.
package pending

import (
	"context"
	"sync"
	"time"

	"commerce-agent/internal/models"
)

// Store is the pending-order storage. Every method is a single atomic
// step for its client id.
type Store interface {
	Get(ctx context.Context, clientID string) (models.PendingOrder, bool, error)
	Put(ctx context.Context, clientID string, order models.PendingOrder) error
	// PutIfAbsent writes the entry only when the client has none and
	// reports whether it did
	PutIfAbsent(ctx context.Context, clientID string, order models.PendingOrder) (bool, error)
	// UpdateQuantity replaces the quantity only if an entry exists
	UpdateQuantity(ctx context.Context, clientID string, quantity int) (models.PendingOrder, bool, error)
	// Take reads and deletes the entry
	Take(ctx context.Context, clientID string) (models.PendingOrder, bool, error)
	// Delete removes the entry and reports whether one existed
	Delete(ctx context.Context, clientID string) (bool, error)
}

// MemoryStore keeps pending orders in process memory
type MemoryStore struct {
	mu          sync.Mutex
	orders      map[string]models.PendingOrder
	now         func() time.Time
	idleTimeout time.Duration
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock injects the time source
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithIdleTimeout evicts entries untouched for longer than d. Zero disables eviction.
func WithIdleTimeout(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.idleTimeout = d }
}

// NewMemoryStore creates a new in-memory pending store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		orders: make(map[string]models.PendingOrder),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup must be called with mu held
func (s *MemoryStore) lookup(clientID string) (models.PendingOrder, bool) {
	o, ok := s.orders[clientID]
	if !ok {
		return models.PendingOrder{}, false
	}
	if s.expired(o) {
		delete(s.orders, clientID)
		return models.PendingOrder{}, false
	}
	return o, true
}

func (s *MemoryStore) expired(o models.PendingOrder) bool {
	return s.idleTimeout > 0 && s.now().Sub(o.UpdatedAt) > s.idleTimeout
}

func (s *MemoryStore) Get(_ context.Context, clientID string) (models.PendingOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.lookup(clientID)
	return o, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, clientID string, order models.PendingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order.Quantity = models.NormalizeQuantity(order.Quantity)
	order.UpdatedAt = s.now()
	s.orders[clientID] = order
	return nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, clientID string, order models.PendingOrder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(clientID); ok {
		return false, nil
	}
	order.Quantity = models.NormalizeQuantity(order.Quantity)
	order.UpdatedAt = s.now()
	s.orders[clientID] = order
	return true, nil
}

func (s *MemoryStore) UpdateQuantity(_ context.Context, clientID string, quantity int) (models.PendingOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.lookup(clientID)
	if !ok {
		return models.PendingOrder{}, false, nil
	}
	o.Quantity = models.NormalizeQuantity(quantity)
	o.UpdatedAt = s.now()
	s.orders[clientID] = o
	return o, true, nil
}

func (s *MemoryStore) Take(_ context.Context, clientID string) (models.PendingOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.lookup(clientID)
	if ok {
		delete(s.orders, clientID)
	}
	return o, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, clientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.lookup(clientID)
	delete(s.orders, clientID)
	return ok, nil
}

// Len returns the number of live entries
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// Sweep evicts idle entries and returns how many were removed
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, o := range s.orders {
		if s.expired(o) {
			delete(s.orders, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep()
		}
	}
}
