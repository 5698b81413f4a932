package cart

import (
	"context"
	"sync"
	"time"

	"restaurant-storefront/internal/models"
)

// Store is the externally owned cart state, keyed by session id. The
// orchestration layer keeps no cart in process memory beyond one operation,
// so any Store implementation scales horizontally.
type Store interface {
	// Get returns the cart for sessionID, or an empty cart if none exists.
	Get(ctx context.Context, sessionID string) (models.Cart, error)
	// Put saves the cart under its session id.
	Put(ctx context.Context, cart models.Cart) error
	// Delete removes the cart. Deleting an absent cart is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore keeps carts in process memory with a TTL. It is the default
// for single-instance deployments and the test double for the rest.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	carts map[string]models.Cart
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:   ttl,
		now:   time.Now,
		carts: make(map[string]models.Cart),
	}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (models.Cart, error) {
	s.mu.RLock()
	c, ok := s.carts[sessionID]
	s.mu.RUnlock()

	if !ok || s.expired(c) {
		return models.Cart{SessionID: sessionID}, nil
	}
	return c, nil
}

func (s *MemoryStore) Put(_ context.Context, cart models.Cart) error {
	cart.UpdatedAt = s.now()
	s.mu.Lock()
	s.carts[cart.SessionID] = cart
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.carts, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) expired(c models.Cart) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(c.UpdatedAt) > s.ttl
}
