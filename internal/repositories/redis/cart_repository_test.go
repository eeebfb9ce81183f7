package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
)

func newTestRepository(t *testing.T, opts ...Option) (*CartRepository, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo, err := NewCartRepository(client, opts...)
	require.NoError(t, err)
	return repo, server
}

func sampleCart() domain.Cart {
	added := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return domain.Cart{
		SessionID: "sess-1",
		Items: []domain.CartItem{{
			ID:           "item-1",
			ProductID:    "bag",
			VariantLabel: "Noir",
			DisplayName:  "Le Sac",
			UnitPrice:    domain.MustMoney("125.005"),
			Quantity:     2,
			AddedAt:      added,
			UpdatedAt:    added,
		}},
		UpdatedAt: added,
	}
}

func TestCartRepositoryRoundTrip(t *testing.T) {
	repo, server := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveCart(ctx, sampleCart()))
	assert.True(t, server.Exists("cart:sess-1"))

	got, err := repo.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "Noir", got.Items[0].VariantLabel)
	assert.True(t, got.Items[0].UnitPrice.Equal(domain.MustMoney("125.005")), "unit price keeps full precision")
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestCartRepositoryMissingCartIsNotFound(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.GetCart(context.Background(), "unknown")
	assert.True(t, repositories.IsNotFound(err))
}

func TestCartRepositoryTTLAndPrefix(t *testing.T) {
	repo, server := newTestRepository(t, WithKeyPrefix("shop:cart:"), WithTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, repo.SaveCart(ctx, sampleCart()))
	assert.Equal(t, time.Hour, server.TTL("shop:cart:sess-1"))

	server.FastForward(2 * time.Hour)
	_, err := repo.GetCart(ctx, "sess-1")
	assert.True(t, repositories.IsNotFound(err), "expired carts disappear")
}

func TestCartRepositoryDelete(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveCart(ctx, sampleCart()))
	require.NoError(t, repo.DeleteCart(ctx, "sess-1"))
	require.NoError(t, repo.DeleteCart(ctx, "sess-1"))

	_, err := repo.GetCart(ctx, "sess-1")
	assert.True(t, repositories.IsNotFound(err))
}

func TestCartRepositoryOutageIsUnavailable(t *testing.T) {
	repo, server := newTestRepository(t)
	server.Close()

	err := repo.SaveCart(context.Background(), sampleCart())
	assert.True(t, repositories.IsUnavailable(err))
	assert.Error(t, repo.Ping(context.Background()))
}

func TestCartRepositoryRejectsCorruptDocument(t *testing.T) {
	repo, server := newTestRepository(t)
	require.NoError(t, server.Set("cart:sess-1", "{not json"))

	_, err := repo.GetCart(context.Background(), "sess-1")
	require.Error(t, err)
	assert.False(t, repositories.IsNotFound(err))
	assert.False(t, repositories.IsUnavailable(err))
}
