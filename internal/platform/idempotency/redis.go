package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix  = "storefront:attempt"
	defaultRedisRetries = 3
)

// RedisOption customises the RedisStore.
type RedisOption func(*RedisStore)

// WithRedisKeyPrefix namespaces attempt keys.
func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix = strings.Trim(strings.TrimSpace(prefix), ":"); prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRedisRetries bounds optimistic transaction retries when a key changes under WATCH.
func WithRedisRetries(retries int) RedisOption {
	return func(s *RedisStore) {
		if retries > 0 {
			s.retries = retries
		}
	}
}

// RedisStore keeps attempt outcomes in Redis so every replica replays the same wallet
// redirect. Records expire through key TTLs, so CleanupExpired has nothing to do.
type RedisStore struct {
	client  goredis.UniversalClient
	prefix  string
	retries int
}

var _ Store = (*RedisStore)(nil)

type redisRecord struct {
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint"`
	Status      Status    `json:"status"`
	Payload     []byte    `json:"payload,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// NewRedisStore constructs a store on client.
func NewRedisStore(client goredis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	s := &RedisStore{client: client, prefix: defaultRedisPrefix, retries: defaultRedisRetries}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + compositeKey(key)
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now, ttl = normaliseTTL(now, ttl)
	var result Reservation
	err := s.update(ctx, key, func(tx *goredis.Tx, redisKey string, current Record, found bool) error {
		reservation, write, err := decideReservation(current, found, key, fingerprint, now, ttl)
		if err != nil {
			return err
		}
		if write != nil {
			if err := s.write(ctx, tx, redisKey, *write, now); err != nil {
				return err
			}
		}
		result = reservation
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return result, nil
}

func (s *RedisStore) Complete(ctx context.Context, key, fingerprint string, payload []byte, now time.Time, ttl time.Duration) error {
	now, ttl = normaliseTTL(now, ttl)
	return s.update(ctx, key, func(tx *goredis.Tx, redisKey string, current Record, found bool) error {
		record, err := completeRecord(current, found, key, fingerprint, payload, now, ttl)
		if err != nil {
			return err
		}
		return s.write(ctx, tx, redisKey, record, now)
	})
}

func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	return s.update(ctx, key, func(tx *goredis.Tx, redisKey string, current Record, found bool) error {
		if !found || current.Fingerprint != fingerprint {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, redisKey)
			return nil
		})
		return err
	})
}

// CleanupExpired is a no-op. Redis evicts records when their TTL lapses.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

// update runs fn under WATCH on the attempt key, retrying when another writer races it.
func (s *RedisStore) update(ctx context.Context, key string, fn func(tx *goredis.Tx, redisKey string, current Record, found bool) error) error {
	redisKey := s.key(key)
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, goredis.Nil) {
			return fn(tx, redisKey, Record{}, false)
		}
		if err != nil {
			return err
		}
		var stored redisRecord
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("idempotency: decode attempt record: %w", err)
		}
		return fn(tx, redisKey, Record(stored), true)
	}

	for attempt := 0; attempt < s.retries; attempt++ {
		err := s.client.Watch(ctx, txf, redisKey)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("idempotency: attempt %q kept changing: %w", key, goredis.TxFailedErr)
}

func (s *RedisStore) write(ctx context.Context, tx *goredis.Tx, redisKey string, record Record, now time.Time) error {
	data, err := json.Marshal(redisRecord(record))
	if err != nil {
		return fmt.Errorf("idempotency: encode attempt record: %w", err)
	}
	expiry := record.ExpiresAt.Sub(now)
	if expiry <= 0 {
		expiry = time.Second
	}
	_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, redisKey, data, expiry)
		return nil
	})
	return err
}
