package memory

import (
	"context"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
)

type checkoutSessionRepository struct {
	s *Store
}

func (r checkoutSessionRepository) Get(_ context.Context, sessionID string) (domain.CheckoutSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[sessionID]
	if !ok {
		return domain.CheckoutSession{}, repositories.NewNotFoundError("memory.checkout_sessions.get", "checkout session")
	}
	return session.Clone(), nil
}

func (r checkoutSessionRepository) Save(ctx context.Context, session domain.CheckoutSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	previous, existed := r.s.sessions[session.SessionID]
	r.s.sessions[session.SessionID] = session.Clone()
	record(ctx, func() {
		if existed {
			r.s.sessions[session.SessionID] = previous
		} else {
			delete(r.s.sessions, session.SessionID)
		}
	})
	return nil
}

func (r checkoutSessionRepository) Delete(ctx context.Context, sessionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	previous, existed := r.s.sessions[sessionID]
	if !existed {
		return nil
	}
	delete(r.s.sessions, sessionID)
	record(ctx, func() { r.s.sessions[sessionID] = previous })
	return nil
}
