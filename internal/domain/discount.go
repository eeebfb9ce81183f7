package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountKind enumerates how a discount deducts from an order.
type DiscountKind string

const (
	// DiscountKindPercentage deducts value percent of the subtotal.
	DiscountKindPercentage DiscountKind = "percentage"
	// DiscountKindFixedAmount deducts a fixed amount capped at the subtotal.
	DiscountKindFixedAmount DiscountKind = "fixed_amount"
	// DiscountKindFreeShipping waives shipping and deducts nothing from the subtotal.
	DiscountKindFreeShipping DiscountKind = "free_shipping"
)

// Valid reports whether the kind is one of the known discount kinds.
func (k DiscountKind) Valid() bool {
	switch k {
	case DiscountKindPercentage, DiscountKindFixedAmount, DiscountKindFreeShipping:
		return true
	default:
		return false
	}
}

// Discount is a catalog entry validated by the discount engine.
type Discount struct {
	Code        string
	Kind        DiscountKind
	Value       decimal.Decimal
	MinPurchase *Money
	ActiveFrom  time.Time
	ActiveUntil *time.Time
	UsageLimit  *int
	UsageCount  int
	Enabled     bool
}

// ActiveAt reports whether now falls inside [ActiveFrom, ActiveUntil].
func (d Discount) ActiveAt(now time.Time) bool {
	if now.Before(d.ActiveFrom) {
		return false
	}
	if d.ActiveUntil != nil && now.After(*d.ActiveUntil) {
		return false
	}
	return true
}

// UsageExhausted reports whether a usage limit is set and already reached.
func (d Discount) UsageExhausted() bool {
	return d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit
}

// MeetsMinimum reports whether subtotal satisfies the minimum purchase, if any.
func (d Discount) MeetsMinimum(subtotal Money) bool {
	if d.MinPurchase == nil {
		return true
	}
	return subtotal.GreaterThanOrEqual(*d.MinPurchase)
}

// Clone returns a copy that shares no pointers with d.
func (d Discount) Clone() Discount {
	if d.MinPurchase != nil {
		v := *d.MinPurchase
		d.MinPurchase = &v
	}
	if d.ActiveUntil != nil {
		v := *d.ActiveUntil
		d.ActiveUntil = &v
	}
	if d.UsageLimit != nil {
		v := *d.UsageLimit
		d.UsageLimit = &v
	}
	return d
}

// NormalizeDiscountCode canonicalises a code for case-insensitive lookup.
func NormalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DiscountRejectionReason explains why a code cannot be applied.
type DiscountRejectionReason string

const (
	DiscountRejectedNotFound          DiscountRejectionReason = "not_found"
	DiscountRejectedDisabled          DiscountRejectionReason = "disabled"
	DiscountRejectedNotActive         DiscountRejectionReason = "not_active"
	DiscountRejectedUsageExceeded     DiscountRejectionReason = "usage_exceeded"
	DiscountRejectedMinPurchaseNotMet DiscountRejectionReason = "min_purchase_not_met"
)

// Message returns the customer-facing text for the reason.
func (r DiscountRejectionReason) Message() string {
	switch r {
	case DiscountRejectedNotFound:
		return "This discount code does not exist."
	case DiscountRejectedDisabled:
		return "This discount code is no longer available."
	case DiscountRejectedNotActive:
		return "This discount code is not active at this time."
	case DiscountRejectedUsageExceeded:
		return "This discount code has reached its usage limit."
	case DiscountRejectedMinPurchaseNotMet:
		return "Your order does not meet the minimum purchase for this code."
	default:
		return "This discount code cannot be applied."
	}
}

// DiscountVerdict is the outcome of validating a code against a subtotal.
type DiscountVerdict struct {
	Applied   bool
	Discount  *Discount
	Deduction Money
	Reason    DiscountRejectionReason
}
