package di

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/maison-luxe/storefront/internal/domain"
)

// LocalDiscounts is the catalog served by memory-backed local deployments so the checkout
// discount step can be exercised without a database.
func LocalDiscounts(now time.Time) []domain.Discount {
	start := now.UTC().Add(-24 * time.Hour)
	until := now.UTC().Add(90 * 24 * time.Hour)
	expired := now.UTC().Add(-time.Hour)
	vipMinimum := domain.MustMoney("200.00")
	launchLimit := 100

	return []domain.Discount{
		{
			Code:       "WELCOME10",
			Kind:       domain.DiscountKindPercentage,
			Value:      decimal.NewFromInt(10),
			ActiveFrom: start,
			Enabled:    true,
		},
		{
			Code:        "VIP50",
			Kind:        domain.DiscountKindFixedAmount,
			Value:       decimal.NewFromInt(50),
			MinPurchase: &vipMinimum,
			ActiveFrom:  start,
			ActiveUntil: &until,
			Enabled:     true,
		},
		{
			Code:       "LAUNCH20",
			Kind:       domain.DiscountKindPercentage,
			Value:      decimal.NewFromInt(20),
			ActiveFrom: start,
			UsageLimit: &launchLimit,
			Enabled:    true,
		},
		{
			Code:        "SUMMER15",
			Kind:        domain.DiscountKindPercentage,
			Value:       decimal.NewFromInt(15),
			ActiveFrom:  start.Add(-180 * 24 * time.Hour),
			ActiveUntil: &expired,
			Enabled:     true,
		},
	}
}
