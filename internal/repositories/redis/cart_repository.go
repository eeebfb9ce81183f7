// Package redis stores session carts in Redis as JSON documents with a sliding TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
)

const (
	defaultKeyPrefix = "cart"
	defaultTTL       = 30 * 24 * time.Hour
)

// CartRepository implements repositories.CartRepository on Redis. Carts are not
// part of the order transaction, so RunInTx contexts are ignored here.
type CartRepository struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// Option customises the repository.
type Option func(*CartRepository)

// WithKeyPrefix changes the key namespace, e.g. "cart" gives keys "cart:<session>".
func WithKeyPrefix(prefix string) Option {
	return func(r *CartRepository) {
		if trimmed := strings.Trim(strings.TrimSpace(prefix), ":"); trimmed != "" {
			r.prefix = trimmed
		}
	}
}

// WithTTL sets how long an untouched cart survives. Every save refreshes it.
func WithTTL(ttl time.Duration) Option {
	return func(r *CartRepository) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewCartRepository wraps an existing client.
func NewCartRepository(client goredis.UniversalClient, opts ...Option) (*CartRepository, error) {
	if client == nil {
		return nil, errors.New("redis cart repository: client is required")
	}
	repo := &CartRepository{client: client, prefix: defaultKeyPrefix, ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// GetCart loads the cart for a session.
func (r *CartRepository) GetCart(ctx context.Context, sessionID string) (domain.Cart, error) {
	raw, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Cart{}, repositories.NewNotFoundError("redis.carts.get", "cart")
		}
		return domain.Cart{}, wrapError("redis.carts.get", err)
	}
	var doc cartDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Cart{}, &repositories.Error{Op: "redis.carts.get", Err: fmt.Errorf("decode cart: %w", err)}
	}
	return doc.toDomain(sessionID)
}

// SaveCart replaces the stored cart and refreshes its TTL.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) error {
	if strings.TrimSpace(cart.SessionID) == "" {
		return &repositories.Error{Op: "redis.carts.save", Err: errors.New("session id is required")}
	}
	payload, err := json.Marshal(newCartDocument(cart))
	if err != nil {
		return &repositories.Error{Op: "redis.carts.save", Err: fmt.Errorf("encode cart: %w", err)}
	}
	if err := r.client.Set(ctx, r.key(cart.SessionID), payload, r.ttl).Err(); err != nil {
		return wrapError("redis.carts.save", err)
	}
	return nil
}

// DeleteCart removes the cart. Deleting a missing cart is not an error.
func (r *CartRepository) DeleteCart(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return wrapError("redis.carts.delete", err)
	}
	return nil
}

// Ping reports whether Redis answers, for readiness checks.
func (r *CartRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return wrapError("redis.ping", err)
	}
	return nil
}

func (r *CartRepository) key(sessionID string) string {
	var builder strings.Builder
	builder.Grow(len(r.prefix) + 1 + len(sessionID))
	builder.WriteString(r.prefix)
	builder.WriteString(":")
	builder.WriteString(sessionID)
	return builder.String()
}

func wrapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return repositories.NewUnavailableError(op, err)
}

type cartDocument struct {
	Items     []cartItemDocument `json:"items"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

type cartItemDocument struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"productId"`
	VariantLabel string    `json:"variantLabel,omitempty"`
	DisplayName  string    `json:"displayName,omitempty"`
	UnitPrice    string    `json:"unitPrice"`
	Quantity     int       `json:"quantity"`
	AddedAt      time.Time `json:"addedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantLabel: item.VariantLabel,
			DisplayName:  item.DisplayName,
			UnitPrice:    item.UnitPrice.String(),
			Quantity:     item.Quantity,
			AddedAt:      item.AddedAt.UTC(),
			UpdatedAt:    item.UpdatedAt.UTC(),
		})
	}
	return doc
}

func (d cartDocument) toDomain(sessionID string) (domain.Cart, error) {
	cart := domain.Cart{SessionID: sessionID, UpdatedAt: d.UpdatedAt.UTC()}
	for _, item := range d.Items {
		price, err := domain.ParseMoney(item.UnitPrice)
		if err != nil {
			return domain.Cart{}, &repositories.Error{Op: "redis.carts.get", Err: fmt.Errorf("item %s: %w", item.ID, err)}
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantLabel: item.VariantLabel,
			DisplayName:  item.DisplayName,
			UnitPrice:    price,
			Quantity:     item.Quantity,
			AddedAt:      item.AddedAt.UTC(),
			UpdatedAt:    item.UpdatedAt.UTC(),
		})
	}
	return cart, nil
}
