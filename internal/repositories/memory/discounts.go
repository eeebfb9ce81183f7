package memory

import (
	"context"
	"sort"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
)

type discountRepository struct {
	s *Store
}

func (r discountRepository) ListDiscounts(context.Context) ([]domain.Discount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Discount, 0, len(r.s.discounts))
	for _, d := range r.s.discounts {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r discountRepository) FindByCode(_ context.Context, code string) (domain.Discount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.discounts[domain.NormalizeDiscountCode(code)]
	if !ok {
		return domain.Discount{}, repositories.NewNotFoundError("memory.discounts.find", "discount")
	}
	return d.Clone(), nil
}

func (r discountRepository) IncrementUsage(ctx context.Context, code string) (domain.Discount, error) {
	normalized := domain.NormalizeDiscountCode(code)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.discounts[normalized]
	if !ok {
		return domain.Discount{}, repositories.NewDiscountUsageError(repositories.DiscountUsageUnknownCode, normalized)
	}
	if d.UsageExhausted() {
		return domain.Discount{}, repositories.NewDiscountUsageError(repositories.DiscountUsageExhausted, normalized)
	}
	previous := d
	d.UsageCount++
	r.s.discounts[normalized] = d
	record(ctx, func() { r.s.discounts[normalized] = previous })
	return d.Clone(), nil
}
