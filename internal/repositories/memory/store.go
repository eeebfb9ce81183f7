// Package memory provides in-process repositories used by tests and single-instance deployments.
package memory

import (
	"context"
	"sync"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
)

type txKey struct{}

type journal struct {
	undo []func()
}

// Store keeps every collection in maps guarded by one mutex. RunInTx serialises transactions
// and rolls back writes made through the transaction context when fn fails.
type Store struct {
	txMu sync.Mutex

	mu        sync.Mutex
	carts     map[string]domain.Cart
	discounts map[string]domain.Discount
	orders    map[string]domain.Order
	attempts  map[string]string
	sessions  map[string]domain.CheckoutSession

	health repositories.HealthRepository
}

// Option customises a Store.
type Option func(*Store)

// WithDiscounts seeds the discount catalog.
func WithDiscounts(discounts ...domain.Discount) Option {
	return func(s *Store) {
		for _, d := range discounts {
			d = d.Clone()
			d.Code = domain.NormalizeDiscountCode(d.Code)
			s.discounts[d.Code] = d
		}
	}
}

// WithHealth overrides the health repository returned by the registry.
func WithHealth(repo repositories.HealthRepository) Option {
	return func(s *Store) {
		s.health = repo
	}
}

// NewStore constructs an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		carts:     make(map[string]domain.Cart),
		discounts: make(map[string]domain.Discount),
		orders:    make(map[string]domain.Order),
		attempts:  make(map[string]string),
		sessions:  make(map[string]domain.CheckoutSession),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.health == nil {
		s.health, _ = repositories.NewProbeHealthRepository(nil)
	}
	return s
}

var _ repositories.Registry = (*Store)(nil)

func (s *Store) Carts() repositories.CartRepository { return cartRepository{s} }

func (s *Store) Discounts() repositories.DiscountRepository { return discountRepository{s} }

func (s *Store) Orders() repositories.OrderRepository { return orderRepository{s} }

func (s *Store) CheckoutSessions() repositories.CheckoutSessionRepository {
	return checkoutSessionRepository{s}
}

func (s *Store) Health() repositories.HealthRepository { return s.health }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// RunInTx executes fn with a transaction context. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// record registers an undo step for the transaction in ctx, if any. Callers hold s.mu.
func record(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(txKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}
