package repositories

import (
	"context"

	domain "github.com/maison-luxe/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Discounts() DiscountRepository
	Orders() OrderRepository
	CheckoutSessions() CheckoutSessionRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. Repositories that
// receive the ctx passed to fn participate in the same transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository stores session carts. GetCart returns a not-found error for unknown sessions.
type CartRepository interface {
	GetCart(ctx context.Context, sessionID string) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) error
	DeleteCart(ctx context.Context, sessionID string) error
}

// DiscountRepository is the discount catalog. Codes are stored normalised.
type DiscountRepository interface {
	ListDiscounts(ctx context.Context) ([]domain.Discount, error)
	FindByCode(ctx context.Context, code string) (domain.Discount, error)
	// IncrementUsage adds exactly one use. It fails with a DiscountUsageError when the
	// limit is already reached.
	IncrementUsage(ctx context.Context, code string) (domain.Discount, error)
}

// OrderRepository persists completed orders. Orders are write-once.
type OrderRepository interface {
	// Insert fails with a conflict error when an order with the same ID exists.
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByAttempt(ctx context.Context, attemptID string) (domain.Order, error)
}

// CheckoutSessionRepository holds in-progress checkout state per storefront session.
type CheckoutSessionRepository interface {
	Get(ctx context.Context, sessionID string) (domain.CheckoutSession, error)
	Save(ctx context.Context, session domain.CheckoutSession) error
	Delete(ctx context.Context, sessionID string) error
}

// HealthRepository collects dependency health used by readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
