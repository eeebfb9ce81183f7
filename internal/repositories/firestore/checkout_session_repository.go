package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/maison-luxe/storefront/internal/domain"
	pfirestore "github.com/maison-luxe/storefront/internal/platform/firestore"
	"github.com/maison-luxe/storefront/internal/repositories"
)

const checkoutSessionCollection = "checkout_sessions"

// CheckoutSessionRepository persists checkout state machines keyed by storefront session.
type CheckoutSessionRepository struct {
	base *pfirestore.BaseRepository[sessionDocument]
}

var _ repositories.CheckoutSessionRepository = (*CheckoutSessionRepository)(nil)

// NewCheckoutSessionRepository constructs a Firestore-backed checkout session repository.
func NewCheckoutSessionRepository(provider *pfirestore.Provider) (*CheckoutSessionRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout session repository requires firestore provider")
	}
	return &CheckoutSessionRepository{base: pfirestore.NewBaseRepository[sessionDocument](provider, checkoutSessionCollection)}, nil
}

// Get loads the session's checkout.
func (r *CheckoutSessionRepository) Get(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	session, err := doc.Data.toDomain(doc.ID)
	if err != nil {
		return domain.CheckoutSession{}, &repositories.Error{Op: "checkout_sessions.get", Err: err}
	}
	return session, nil
}

// Save replaces the session's checkout.
func (r *CheckoutSessionRepository) Save(ctx context.Context, session domain.CheckoutSession) error {
	return r.base.Set(ctx, strings.TrimSpace(session.SessionID), encodeSession(session))
}

// Delete removes the session's checkout.
func (r *CheckoutSessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(sessionID))
}
