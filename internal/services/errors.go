package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	domain "github.com/maison-luxe/storefront/internal/domain"
)

var (
	// ErrIntegrityViolation marks a state-machine transition attempted without the data an
	// earlier step should have produced. It signals a bug, never a customer mistake.
	ErrIntegrityViolation = errors.New("services: checkout integrity violation")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("services: validation failed")
	// ErrDiscountRejected is matched by every *DiscountRejectedError.
	ErrDiscountRejected = errors.New("services: discount rejected")
	// ErrPaymentFailed is matched by every *PaymentFailureError.
	ErrPaymentFailed = errors.New("services: payment failed")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every invalid field of a submission so they can be shown inline.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// FieldMap returns field → message for rendering.
func (e *ValidationError) FieldMap() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Field] = f.Message
	}
	return out
}

type fieldErrors []FieldError

func (f *fieldErrors) add(field, message string) {
	*f = append(*f, FieldError{Field: field, Message: message})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	sorted := append([]FieldError(nil), f...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })
	return &ValidationError{Fields: sorted}
}

// DiscountRejectedError reports why a discount code cannot be applied.
type DiscountRejectedError struct {
	Code   string
	Reason domain.DiscountRejectionReason
}

// Error implements the error interface.
func (e *DiscountRejectedError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrDiscountRejected.Error(), e.Code, e.Reason)
}

// Is lets errors.Is match ErrDiscountRejected.
func (e *DiscountRejectedError) Is(target error) bool { return target == ErrDiscountRejected }

// PaymentFailureError is a recoverable dispatch failure. The draft is preserved.
type PaymentFailureError struct {
	Reason    string
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *PaymentFailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrPaymentFailed.Error(), e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrPaymentFailed.Error(), e.Reason)
}

// Is lets errors.Is match ErrPaymentFailed.
func (e *PaymentFailureError) Is(target error) bool { return target == ErrPaymentFailed }

// Unwrap exposes the cause.
func (e *PaymentFailureError) Unwrap() error { return e.Err }

func integrityViolation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrityViolation, fmt.Sprintf(format, args...))
}
