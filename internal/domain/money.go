package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in the store's single currency. Arithmetic keeps full precision;
// values are rounded to MoneyScale digits only where they are displayed or persisted.
type Money = decimal.Decimal

// MoneyScale is the number of fractional digits kept at display and persistence boundaries.
const MoneyScale = 2

// ZeroMoney is the zero amount.
var ZeroMoney = decimal.Zero

// RoundMoney rounds an amount to MoneyScale fractional digits.
func RoundMoney(amount Money) Money {
	return amount.Round(MoneyScale)
}

// FormatMoney renders an amount with exactly MoneyScale fractional digits.
func FormatMoney(amount Money) string {
	return amount.StringFixed(MoneyScale)
}

// ParseMoney parses a decimal string such as "125.00".
func ParseMoney(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ZeroMoney, fmt.Errorf("money: empty amount")
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return ZeroMoney, fmt.Errorf("money: parse %q: %w", value, err)
	}
	return amount, nil
}

// MustMoney parses value and panics on failure. Intended for constants and tests.
func MustMoney(value string) Money {
	amount, err := ParseMoney(value)
	if err != nil {
		panic(err)
	}
	return amount
}

// MinMoney returns the smaller of two amounts.
func MinMoney(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// FloorZero clamps negative amounts to zero.
func FloorZero(amount Money) Money {
	if amount.IsNegative() {
		return ZeroMoney
	}
	return amount
}
