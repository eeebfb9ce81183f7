package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/maison-luxe/storefront/internal/platform/firestore"
	"github.com/maison-luxe/storefront/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry. Transactions
// run through the provider so every repository shares them via ctx.
type Registry struct {
	provider  *pfirestore.Provider
	carts     repositories.CartRepository
	discounts *DiscountRepository
	orders    *OrderRepository
	sessions  *CheckoutSessionRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises the registry.
type RegistryOption func(*Registry)

// WithCartRepository swaps the cart store, e.g. for Redis.
func WithCartRepository(carts repositories.CartRepository) RegistryOption {
	return func(r *Registry) {
		if carts != nil {
			r.carts = carts
		}
	}
}

// WithHealthRepository overrides the readiness probe source.
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		if health != nil {
			r.health = health
		}
	}
}

// NewRegistry builds every repository on the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	discounts, err := NewDiscountRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	sessions, err := NewCheckoutSessionRepository(provider)
	if err != nil {
		return nil, err
	}
	registry := &Registry{
		provider:  provider,
		carts:     carts,
		discounts: discounts,
		orders:    orders,
		sessions:  sessions,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(registry)
		}
	}
	if registry.health == nil {
		health, err := repositories.NewProbeHealthRepository([]repositories.DependencyCheck{
			{Name: "firestore", Check: provider.Ping},
		})
		if err != nil {
			return nil, fmt.Errorf("firestore registry: %w", err)
		}
		registry.health = health
	}
	return registry, nil
}

func (r *Registry) Carts() repositories.CartRepository { return r.carts }

func (r *Registry) Discounts() repositories.DiscountRepository { return r.discounts }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) CheckoutSessions() repositories.CheckoutSessionRepository { return r.sessions }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx runs fn in a Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
