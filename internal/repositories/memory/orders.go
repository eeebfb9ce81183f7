package memory

import (
	"context"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
)

type orderRepository struct {
	s *Store
}

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.orders[order.ID]; exists {
		return repositories.NewConflictError("memory.orders.insert", "order")
	}
	if order.AttemptID != "" {
		if _, exists := r.s.attempts[order.AttemptID]; exists {
			return repositories.NewConflictError("memory.orders.insert", "order for attempt")
		}
		r.s.attempts[order.AttemptID] = order.ID
	}
	r.s.orders[order.ID] = order.Clone()
	record(ctx, func() {
		delete(r.s.orders, order.ID)
		if order.AttemptID != "" {
			delete(r.s.attempts, order.AttemptID)
		}
	})
	return nil
}

func (r orderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("memory.orders.find", "order")
	}
	return order.Clone(), nil
}

func (r orderRepository) FindByAttempt(_ context.Context, attemptID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	orderID, ok := r.s.attempts[attemptID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("memory.orders.find_by_attempt", "order")
	}
	return r.s.orders[orderID].Clone(), nil
}
