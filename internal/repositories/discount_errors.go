package repositories

import (
	"errors"
	"fmt"
)

// DiscountUsageErrorCode enumerates failure reasons for usage increments.
type DiscountUsageErrorCode string

const (
	// DiscountUsageExhausted indicates the usage limit is already reached.
	DiscountUsageExhausted DiscountUsageErrorCode = "discount_usage_exhausted"
	// DiscountUsageUnknownCode indicates the code is not in the catalog.
	DiscountUsageUnknownCode DiscountUsageErrorCode = "discount_unknown_code"
)

// DiscountUsageError is returned by IncrementUsage when a use cannot be recorded.
type DiscountUsageError struct {
	Code         DiscountUsageErrorCode
	DiscountCode string
	Err          error
}

// Error implements the error interface.
func (e *DiscountUsageError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Code {
	case DiscountUsageExhausted:
		return fmt.Sprintf("discount %s: usage limit reached", e.DiscountCode)
	case DiscountUsageUnknownCode:
		return fmt.Sprintf("discount %s: not found", e.DiscountCode)
	default:
		return fmt.Sprintf("discount %s: %s", e.DiscountCode, e.Code)
	}
}

// Unwrap exposes the underlying error, if any.
func (e *DiscountUsageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewDiscountUsageError constructs a typed usage error.
func NewDiscountUsageError(code DiscountUsageErrorCode, discountCode string) *DiscountUsageError {
	return &DiscountUsageError{Code: code, DiscountCode: discountCode}
}

// IsDiscountUsageExhausted reports whether err marks a spent usage limit.
func IsDiscountUsageExhausted(err error) bool {
	var usageErr *DiscountUsageError
	return errors.As(err, &usageErr) && usageErr.Code == DiscountUsageExhausted
}
