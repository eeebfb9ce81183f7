package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart store: repository is required")

	// ErrCartInvalidInput indicates the caller supplied an empty session or item id.
	ErrCartInvalidInput = errors.New("cart store: invalid input")
	// ErrCartUnavailable indicates the cart backend failed.
	ErrCartUnavailable = errors.New("cart store: unavailable")
	// ErrCartItemNotFound indicates the line does not exist in the session cart.
	ErrCartItemNotFound = errors.New("cart store: item not found")
)

const (
	maxLineQuantity    = 999
	maxDisplayNameLen  = 200
	maxVariantLabelLen = 80
)

// CartStoreDeps wires the storage adapter used for session carts.
type CartStoreDeps struct {
	Repository  repositories.CartRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type cartStore struct {
	repo      repositories.CartRepository
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
	locks     *sessionLocks
}

// NewCartStore constructs the session cart store.
func NewCartStore(deps CartStoreDeps) (CartStore, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &cartStore{
		repo:      deps.Repository,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
		locks:     newSessionLocks(),
	}, nil
}

func (s *cartStore) Cart(ctx context.Context, sessionID string) (Cart, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Cart{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	return s.load(ctx, sessionID)
}

// AddItem merges into an existing line with the same product and variant.
func (s *cartStore) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return Cart{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}

	var fields fieldErrors
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		fields.add("productId", "is required")
	}
	unitPrice := domain.RoundMoney(cmd.UnitPrice)
	if !unitPrice.IsPositive() {
		fields.add("unitPrice", "must be at least 0.01")
	}
	quantity := cmd.Quantity
	switch {
	case quantity == 0:
		quantity = 1
	case quantity < 0:
		fields.add("quantity", "must be at least 1")
	}
	if err := fields.err(); err != nil {
		return Cart{}, err
	}

	variant := s.clean(cmd.VariantLabel, maxVariantLabelLen)
	displayName := s.clean(cmd.DisplayName, maxDisplayNameLen)
	if displayName == "" {
		displayName = productID
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	cart, err := s.load(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	merged := false
	for i := range cart.Items {
		item := &cart.Items[i]
		if item.ProductID == productID && item.VariantLabel == variant {
			item.Quantity = clampQuantity(item.Quantity + quantity)
			item.UpdatedAt = now
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, CartItem{
			ID:           s.newID(),
			ProductID:    productID,
			VariantLabel: variant,
			DisplayName:  displayName,
			UnitPrice:    unitPrice,
			Quantity:     clampQuantity(quantity),
			AddedAt:      now,
			UpdatedAt:    now,
		})
	}

	if err := s.save(ctx, &cart, now); err != nil {
		return Cart{}, err
	}
	s.logger(ctx, "cart.item_added", map[string]any{
		"sessionId": sessionID,
		"productId": productID,
		"merged":    merged,
		"lines":     len(cart.Items),
	})
	return cart, nil
}

// UpdateQuantity applies delta and clamps the result to at least one.
func (s *cartStore) UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (Cart, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if sessionID == "" || itemID == "" {
		return Cart{}, fmt.Errorf("%w: session id and item id are required", ErrCartInvalidInput)
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	cart, err := s.load(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	found := false
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			cart.Items[i].Quantity = clampQuantity(addClamped(cart.Items[i].Quantity, cmd.Delta))
			cart.Items[i].UpdatedAt = now
			found = true
			break
		}
	}
	if !found {
		return Cart{}, ErrCartItemNotFound
	}
	if err := s.save(ctx, &cart, now); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// RemoveItem deletes the line if present; unknown ids are ignored.
func (s *cartStore) RemoveItem(ctx context.Context, sessionID, itemID string) (Cart, error) {
	sessionID = strings.TrimSpace(sessionID)
	itemID = strings.TrimSpace(itemID)
	if sessionID == "" || itemID == "" {
		return Cart{}, fmt.Errorf("%w: session id and item id are required", ErrCartInvalidInput)
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	cart, err := s.load(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}
	kept := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if item.ID == itemID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return cart, nil
	}
	cart.Items = kept
	if err := s.save(ctx, &cart, s.now()); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// Clear empties the cart. It is only called once an order has been recorded.
func (s *cartStore) Clear(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	if err := s.repo.DeleteCart(ctx, sessionID); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "cart.cleared", map[string]any{"sessionId": sessionID})
	return nil
}

func (s *cartStore) Items(ctx context.Context, sessionID string) ([]CartItem, error) {
	cart, err := s.Cart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return cart.Items, nil
}

func (s *cartStore) Subtotal(ctx context.Context, sessionID string) (Money, error) {
	cart, err := s.Cart(ctx, sessionID)
	if err != nil {
		return domain.ZeroMoney, err
	}
	return domain.RoundMoney(cart.Subtotal()), nil
}

// load returns an empty cart for sessions that have none yet.
func (s *cartStore) load(ctx context.Context, sessionID string) (Cart, error) {
	cart, err := s.repo.GetCart(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Cart{SessionID: sessionID}, nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	cart.SessionID = sessionID
	return cart, nil
}

func (s *cartStore) save(ctx context.Context, cart *Cart, now time.Time) error {
	cart.UpdatedAt = now
	if err := s.repo.SaveCart(ctx, *cart); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartStore) clean(value string, limit int) string {
	cleaned := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
	if runes := []rune(cleaned); len(runes) > limit {
		cleaned = string(runes[:limit])
	}
	return cleaned
}

func (s *cartStore) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func clampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	if q > maxLineQuantity {
		return maxLineQuantity
	}
	return q
}

// addClamped adds delta without overflowing; the caller clamps to the valid range.
func addClamped(q, delta int) int {
	if delta > maxLineQuantity {
		delta = maxLineQuantity
	}
	if delta < -maxLineQuantity {
		delta = -maxLineQuantity
	}
	return q + delta
}
