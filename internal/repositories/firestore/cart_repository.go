// Package firestore implements the storefront repositories on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/maison-luxe/storefront/internal/domain"
	pfirestore "github.com/maison-luxe/storefront/internal/platform/firestore"
	"github.com/maison-luxe/storefront/internal/repositories"
)

const cartCollection = "carts"

// CartRepository stores one document per storefront session.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)}, nil
}

// GetCart loads the session cart.
func (r *CartRepository) GetCart(ctx context.Context, sessionID string) (domain.Cart, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return domain.Cart{}, err
	}
	items, err := decodeItems(doc.Data.Items)
	if err != nil {
		return domain.Cart{}, &repositories.Error{Op: "carts.get", Err: fmt.Errorf("decode cart: %w", err)}
	}
	return domain.Cart{SessionID: doc.ID, Items: items, UpdatedAt: doc.Data.UpdatedAt.UTC()}, nil
}

// SaveCart replaces the session cart.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) error {
	return r.base.Set(ctx, strings.TrimSpace(cart.SessionID), cartDocument{
		Items:     encodeItems(cart.Items),
		UpdatedAt: cart.UpdatedAt.UTC(),
	})
}

// DeleteCart removes the session cart.
func (r *CartRepository) DeleteCart(ctx context.Context, sessionID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(sessionID))
}
