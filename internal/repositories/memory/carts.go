package memory

import (
	"context"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
)

type cartRepository struct {
	s *Store
}

func (r cartRepository) GetCart(_ context.Context, sessionID string) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart, ok := r.s.carts[sessionID]
	if !ok {
		return domain.Cart{}, repositories.NewNotFoundError("memory.carts.get", "cart")
	}
	return cart.Clone(), nil
}

func (r cartRepository) SaveCart(ctx context.Context, cart domain.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	previous, existed := r.s.carts[cart.SessionID]
	r.s.carts[cart.SessionID] = cart.Clone()
	record(ctx, func() {
		if existed {
			r.s.carts[cart.SessionID] = previous
		} else {
			delete(r.s.carts, cart.SessionID)
		}
	})
	return nil
}

func (r cartRepository) DeleteCart(ctx context.Context, sessionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	previous, existed := r.s.carts[sessionID]
	if !existed {
		return nil
	}
	delete(r.s.carts, sessionID)
	record(ctx, func() { r.s.carts[sessionID] = previous })
	return nil
}
