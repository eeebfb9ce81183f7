package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"

	domain "github.com/maison-luxe/storefront/internal/domain"
	pfirestore "github.com/maison-luxe/storefront/internal/platform/firestore"
	"github.com/maison-luxe/storefront/internal/repositories"
)

const discountCollection = "discounts"

// DiscountRepository reads the discount catalog. Document IDs are normalised codes.
type DiscountRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[discountDocument]
}

var _ repositories.DiscountRepository = (*DiscountRepository)(nil)

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	return &DiscountRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[discountDocument](provider, discountCollection),
	}, nil
}

// ListDiscounts returns every enabled discount sorted by code. Date windows are left to the engine.
func (r *DiscountRepository) ListDiscounts(ctx context.Context) ([]domain.Discount, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("enabled", "==", true)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Discount, 0, len(docs))
	for _, doc := range docs {
		discount, err := doc.Data.toDomain()
		if err != nil {
			return nil, &repositories.Error{Op: "discounts.list", Err: err}
		}
		out = append(out, discount)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// FindByCode looks up a code case-insensitively.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (domain.Discount, error) {
	normalized := domain.NormalizeDiscountCode(code)
	if normalized == "" {
		return domain.Discount{}, repositories.NewNotFoundError("discounts.get", "discount")
	}
	doc, err := r.base.Get(ctx, normalized)
	if err != nil {
		return domain.Discount{}, err
	}
	discount, err := doc.Data.toDomain()
	if err != nil {
		return domain.Discount{}, &repositories.Error{Op: "discounts.get", Err: err}
	}
	return discount, nil
}

// IncrementUsage reads and bumps the counter in one transaction, joining the caller's
// transaction when ctx carries one.
func (r *DiscountRepository) IncrementUsage(ctx context.Context, code string) (domain.Discount, error) {
	normalized := domain.NormalizeDiscountCode(code)
	var updated domain.Discount
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.base.Get(ctx, normalized)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return repositories.NewDiscountUsageError(repositories.DiscountUsageUnknownCode, normalized)
			}
			return err
		}
		discount, err := doc.Data.toDomain()
		if err != nil {
			return &repositories.Error{Op: "discounts.increment", Err: fmt.Errorf("decode: %w", err)}
		}
		if discount.UsageExhausted() {
			return repositories.NewDiscountUsageError(repositories.DiscountUsageExhausted, normalized)
		}
		ref, err := r.base.DocumentRef(ctx, normalized)
		if err != nil {
			return err
		}
		if err := tx.Update(ref, []firestore.Update{{Path: "usageCount", Value: firestore.Increment(1)}}); err != nil {
			return pfirestore.WrapError("discounts.increment", err)
		}
		discount.UsageCount++
		updated = discount
		return nil
	})
	if err != nil {
		return domain.Discount{}, err
	}
	return updated, nil
}

// Upsert writes a catalog entry. Used by seeding and tests.
func (r *DiscountRepository) Upsert(ctx context.Context, discount domain.Discount) error {
	doc := encodeDiscount(discount)
	return r.base.Set(ctx, doc.Code, doc)
}
