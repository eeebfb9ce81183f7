// Package idempotency memoises the outcome of side-effecting calls keyed by a caller-chosen
// attempt id, so that a retry after a timeout replays the first outcome instead of repeating it.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Status represents the lifecycle state of an idempotency record.
type Status string

const (
	// DefaultTTL is the default duration that idempotency records are retained.
	DefaultTTL = 24 * time.Hour
	// StatusPending indicates that a caller has reserved the key but not yet stored an outcome.
	StatusPending Status = "pending"
	// StatusCompleted indicates that the outcome for the key has been stored and can be replayed.
	StatusCompleted Status = "completed"
)

// ReservationState describes the outcome of attempting to reserve an idempotency key.
type ReservationState int

const (
	// ReservationStateNew means no live reservation was found and the caller may proceed.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a previous outcome was found and should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another caller is currently processing this key.
	ReservationStatePending
)

// Reservation encapsulates the result of reserving a key, including the stored record if available.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record captures the stored outcome for an idempotency key.
type Record struct {
	Key         string
	Fingerprint string
	Status      Status
	Payload     []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

// Store persists idempotency reservations and outcomes.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint string, payload []byte, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

var (
	// ErrFingerprintMismatch is returned when a key is reused for a different request.
	ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")
)

// Fingerprint hashes the parts that identify a request so reuse of a key with different
// inputs can be detected.
func Fingerprint(parts ...string) string {
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

func compositeKey(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func copyPayload(payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	return append([]byte(nil), payload...)
}

// decideReservation applies the reservation rules to the stored record (found reports
// whether one exists). It returns the record to persist, or nil when nothing changes.
func decideReservation(current Record, found bool, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, *Record, error) {
	if !found || expired(current, now) {
		fresh := Record{
			Key:         key,
			Fingerprint: fingerprint,
			Status:      StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		return Reservation{State: ReservationStateNew, Record: fresh}, &fresh, nil
	}
	if current.Fingerprint != fingerprint {
		return Reservation{}, nil, ErrFingerprintMismatch
	}
	current.Payload = copyPayload(current.Payload)
	if current.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: current}, nil, nil
	}
	return Reservation{State: ReservationStatePending, Record: current}, nil, nil
}

// completeRecord returns the record to persist once an outcome is known. Completing a key
// without a reservation is allowed so a lost reservation never loses the outcome.
func completeRecord(current Record, found bool, key, fingerprint string, payload []byte, now time.Time, ttl time.Duration) (Record, error) {
	if found && current.Fingerprint != fingerprint {
		return Record{}, ErrFingerprintMismatch
	}
	if !found {
		current = Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	}
	current.Status = StatusCompleted
	current.Payload = copyPayload(payload)
	current.UpdatedAt = now
	current.ExpiresAt = now.Add(ttl)
	return current, nil
}

func normaliseTTL(now time.Time, ttl time.Duration) (time.Time, time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.UTC(), ttl
}

func expired(record Record, now time.Time) bool {
	return !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt)
}
