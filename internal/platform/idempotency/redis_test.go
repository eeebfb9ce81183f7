package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisStore(client, WithRedisKeyPrefix("test:attempt:"))
	require.NoError(t, err)
	return store, server
}

func TestRedisStoreReserveLifecycle(t *testing.T) {
	ctx := context.Background()
	store, server := newRedisStore(t)
	fp := Fingerprint("sess-1", "mobile_wallet", "150.00")

	res, err := store.Reserve(ctx, "attempt-1", fp, fixedTime, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, res.State)

	key := "test:attempt:" + compositeKey("attempt-1")
	require.True(t, server.Exists(key))
	assert.Equal(t, time.Hour, server.TTL(key))

	res, err = store.Reserve(ctx, "attempt-1", fp, fixedTime.Add(time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStatePending, res.State)

	require.NoError(t, store.Complete(ctx, "attempt-1", fp, []byte(`{"redirect":"x"}`), fixedTime.Add(2*time.Minute), time.Hour))

	res, err = store.Reserve(ctx, "attempt-1", fp, fixedTime.Add(3*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateCompleted, res.State)
	assert.JSONEq(t, `{"redirect":"x"}`, string(res.Record.Payload))
}

func TestRedisStoreFingerprintMismatch(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	_, err := store.Reserve(ctx, "attempt-1", Fingerprint("a"), fixedTime, time.Hour)
	require.NoError(t, err)
	_, err = store.Reserve(ctx, "attempt-1", Fingerprint("b"), fixedTime, time.Hour)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)
	assert.ErrorIs(t, store.Complete(ctx, "attempt-1", Fingerprint("b"), nil, fixedTime, time.Hour), ErrFingerprintMismatch)
}

func TestRedisStoreReleaseHonoursFingerprint(t *testing.T) {
	ctx := context.Background()
	store, server := newRedisStore(t)
	fp := Fingerprint("a")
	key := "test:attempt:" + compositeKey("attempt-1")

	_, err := store.Reserve(ctx, "attempt-1", fp, fixedTime, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "attempt-1", Fingerprint("other")))
	assert.True(t, server.Exists(key), "a foreign fingerprint must not release the reservation")

	require.NoError(t, store.Release(ctx, "attempt-1", fp))
	assert.False(t, server.Exists(key))

	res, err := store.Reserve(ctx, "attempt-1", fp, fixedTime, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, res.State)
}

func TestRedisStoreExpiryReclaimsAttempt(t *testing.T) {
	ctx := context.Background()
	store, server := newRedisStore(t)
	fp := Fingerprint("a")

	_, err := store.Reserve(ctx, "attempt-1", fp, fixedTime, time.Minute)
	require.NoError(t, err)
	server.FastForward(2 * time.Minute)

	res, err := store.Reserve(ctx, "attempt-1", fp, fixedTime.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, res.State)

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestNewRedisStoreRequiresClient(t *testing.T) {
	_, err := NewRedisStore(nil)
	assert.Error(t, err)
}
