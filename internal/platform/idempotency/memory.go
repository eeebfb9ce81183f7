package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps attempt outcomes in process. It suits tests and single-instance
// deployments. Replicas need the Redis or Firestore store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now, ttl = normaliseTTL(now, ttl)
	id := compositeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	current, found := s.records[id]
	reservation, write, err := decideReservation(current, found, key, fingerprint, now, ttl)
	if err != nil {
		return Reservation{}, err
	}
	if write != nil {
		s.records[id] = *write
	}
	return reservation, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, payload []byte, now time.Time, ttl time.Duration) error {
	now, ttl = normaliseTTL(now, ttl)
	id := compositeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	current, found := s.records[id]
	record, err := completeRecord(current, found, key, fingerprint, payload, now, ttl)
	if err != nil {
		return err
	}
	s.records[id] = record
	return nil
}

// CleanupExpired drops up to limit expired records. A non-positive limit removes all.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed == limit {
			break
		}
		if expired(record, now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// Release forgets a reservation held under fingerprint so the attempt may run again.
func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	id := compositeKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[id]; ok && record.Fingerprint == fingerprint {
		delete(s.records, id)
	}
	return nil
}
