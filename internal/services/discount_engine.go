package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
)

var (
	errDiscountRepositoryRequired = errors.New("discount engine: repository is required")

	// ErrDiscountUnavailable indicates the discount catalog could not be read.
	ErrDiscountUnavailable = errors.New("discount engine: unavailable")
)

// DiscountEngineDeps wires the discount catalog.
type DiscountEngineDeps struct {
	Repository repositories.DiscountRepository
	Pricing    *PricingEngine
	Logger     func(context.Context, string, map[string]any)
}

type discountEngine struct {
	repo    repositories.DiscountRepository
	pricing *PricingEngine
	logger  func(context.Context, string, map[string]any)
}

// NewDiscountEngine constructs the discount engine. Pricing is used to compute the deduction
// reported on an applied verdict and defaults to the stock pricing policy.
func NewDiscountEngine(deps DiscountEngineDeps) (DiscountEngine, error) {
	if deps.Repository == nil {
		return nil, errDiscountRepositoryRequired
	}
	pricing := deps.Pricing
	if pricing == nil {
		var err error
		pricing, err = NewPricingEngine(DefaultPricingEngineConfig())
		if err != nil {
			return nil, err
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &discountEngine{repo: deps.Repository, pricing: pricing, logger: logger}, nil
}

// Validate checks code against the catalog. The first failing check wins, in the order
// not found, disabled, not active, usage exceeded, minimum purchase not met.
func (e *discountEngine) Validate(ctx context.Context, code string, subtotal Money, now time.Time) (DiscountVerdict, error) {
	normalized := domain.NormalizeDiscountCode(code)
	if normalized == "" {
		return rejected(domain.DiscountRejectedNotFound), nil
	}

	discount, err := e.repo.FindByCode(ctx, normalized)
	if err != nil {
		if repositories.IsNotFound(err) {
			return rejected(domain.DiscountRejectedNotFound), nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return DiscountVerdict{}, err
		}
		e.logger(ctx, "discount.lookup_failed", map[string]any{"code": normalized, "error": err.Error()})
		return DiscountVerdict{}, fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
	}

	if reason, ok := rejectionReason(discount, subtotal, now); !ok {
		return rejected(reason), nil
	}

	applied := discount.Clone()
	return DiscountVerdict{
		Applied:   true,
		Discount:  &applied,
		Deduction: domain.RoundMoney(e.pricing.DiscountAmount(subtotal, &applied)),
	}, nil
}

// ListActive returns enabled codes whose window contains now and whose limit is not spent.
func (e *discountEngine) ListActive(ctx context.Context, now time.Time) ([]Discount, error) {
	all, err := e.repo.ListDiscounts(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
	}
	active := make([]Discount, 0, len(all))
	for _, d := range all {
		if d.Enabled && d.ActiveAt(now) && !d.UsageExhausted() {
			active = append(active, d)
		}
	}
	return active, nil
}

func rejectionReason(d Discount, subtotal Money, now time.Time) (domain.DiscountRejectionReason, bool) {
	switch {
	case !d.Enabled:
		return domain.DiscountRejectedDisabled, false
	case !d.ActiveAt(now):
		return domain.DiscountRejectedNotActive, false
	case d.UsageExhausted():
		return domain.DiscountRejectedUsageExceeded, false
	case !d.MeetsMinimum(subtotal):
		return domain.DiscountRejectedMinPurchaseNotMet, false
	default:
		return "", true
	}
}

func rejected(reason domain.DiscountRejectionReason) DiscountVerdict {
	return DiscountVerdict{Reason: reason, Deduction: domain.ZeroMoney}
}
