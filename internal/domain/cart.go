package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is a single line in a session cart.
type CartItem struct {
	ID           string
	ProductID    string
	VariantLabel string
	DisplayName  string
	UnitPrice    Money
	Quantity     int
	AddedAt      time.Time
	UpdatedAt    time.Time
}

// LineTotal returns unitPrice × quantity without rounding.
func (i CartItem) LineTotal() Money {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart holds the line items owned by one storefront session.
type Cart struct {
	SessionID string
	Items     []CartItem
	UpdatedAt time.Time
}

// Subtotal sums the line totals of every item.
func (c Cart) Subtotal() Money {
	return SubtotalOf(c.Items)
}

// ItemCount returns the total quantity across lines, used for cart badges.
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy of the cart.
func (c Cart) Clone() Cart {
	c.Items = CloneItems(c.Items)
	return c
}

// SubtotalOf sums unitPrice × quantity over items.
func SubtotalOf(items []CartItem) Money {
	total := ZeroMoney
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// CloneItems copies a slice of cart items.
func CloneItems(items []CartItem) []CartItem {
	if items == nil {
		return nil
	}
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}
