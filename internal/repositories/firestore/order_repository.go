package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/maison-luxe/storefront/internal/domain"
	pfirestore "github.com/maison-luxe/storefront/internal/platform/firestore"
	"github.com/maison-luxe/storefront/internal/repositories"
)

const (
	orderCollection   = "orders"
	attemptCollection = "order_attempts"
)

// OrderRepository stores orders plus an attempt index document that makes one payment
// attempt map to at most one order.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	attempts *pfirestore.BaseRepository[attemptDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		attempts: pfirestore.NewBaseRepository[attemptDocument](provider, attemptCollection),
	}, nil
}

// Insert creates the attempt index and the order. Either document already existing
// makes the whole write fail with a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return &repositories.Error{Op: "orders.insert", Err: errors.New("order id is required")}
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		if order.AttemptID != "" {
			if err := r.attempts.Create(ctx, order.AttemptID, attemptDocument{OrderID: order.ID, CreatedAt: order.CreatedAt.UTC()}); err != nil {
				return err
			}
		}
		return r.orders.Create(ctx, order.ID, encodeOrder(order))
	})
}

// FindByID loads an order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	order, err := doc.Data.toDomain(doc.ID)
	if err != nil {
		return domain.Order{}, &repositories.Error{Op: "orders.get", Err: err}
	}
	return order, nil
}

// FindByAttempt resolves the attempt index to its order.
func (r *OrderRepository) FindByAttempt(ctx context.Context, attemptID string) (domain.Order, error) {
	doc, err := r.attempts.Get(ctx, strings.TrimSpace(attemptID))
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, doc.Data.OrderID)
}
