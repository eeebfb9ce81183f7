package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
	"github.com/maison-luxe/storefront/internal/repositories/memory"
)

var discountNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func moneyPtr(v string) *Money {
	m := money(v)
	return &m
}

func timePtr(t time.Time) *time.Time { return &t }

func testCatalog() []Discount {
	return []Discount{
		{Code: "WELCOME20", Kind: domain.DiscountKindPercentage, Value: decimal.NewFromInt(20), Enabled: true},
		{Code: "OFF", Kind: domain.DiscountKindFixedAmount, Value: decimal.NewFromInt(10), Enabled: false},
		{Code: "SPRING", Kind: domain.DiscountKindPercentage, Value: decimal.NewFromInt(10), Enabled: true, ActiveFrom: discountNow.Add(24 * time.Hour)},
		{Code: "WINTER", Kind: domain.DiscountKindPercentage, Value: decimal.NewFromInt(10), Enabled: true, ActiveUntil: timePtr(discountNow.Add(-time.Hour))},
		{Code: "LIMITED", Kind: domain.DiscountKindFixedAmount, Value: decimal.NewFromInt(5), Enabled: true, UsageLimit: intPtr(3), UsageCount: 3},
		{Code: "BIGSPEND", Kind: domain.DiscountKindFixedAmount, Value: decimal.NewFromInt(50), Enabled: true, MinPurchase: moneyPtr("500.00")},
		{Code: "SHIPFREE", Kind: domain.DiscountKindFreeShipping, Enabled: true},
		// disabled and out of window at once: disabled wins
		{Code: "STALE", Kind: domain.DiscountKindFixedAmount, Value: decimal.NewFromInt(5), Enabled: false, ActiveUntil: timePtr(discountNow.Add(-time.Hour)), UsageLimit: intPtr(1), UsageCount: 1},
	}
}

func newTestDiscountEngine(t *testing.T, repo repositories.DiscountRepository) DiscountEngine {
	t.Helper()
	engine, err := NewDiscountEngine(DiscountEngineDeps{Repository: repo})
	if err != nil {
		t.Fatalf("NewDiscountEngine: %v", err)
	}
	return engine
}

func TestDiscountEngine_Validate(t *testing.T) {
	store := memory.NewStore(memory.WithDiscounts(testCatalog()...))
	engine := newTestDiscountEngine(t, store.Discounts())

	cases := []struct {
		name      string
		code      string
		subtotal  string
		applied   bool
		reason    domain.DiscountRejectionReason
		deduction string
	}{
		{name: "applied", code: "WELCOME20", subtotal: "125.00", applied: true, deduction: "25.00"},
		{name: "case insensitive", code: "  welcome20 ", subtotal: "125.00", applied: true, deduction: "25.00"},
		{name: "unknown", code: "NOPE", subtotal: "125.00", reason: domain.DiscountRejectedNotFound},
		{name: "empty", code: "   ", subtotal: "125.00", reason: domain.DiscountRejectedNotFound},
		{name: "disabled", code: "OFF", subtotal: "125.00", reason: domain.DiscountRejectedDisabled},
		{name: "not started", code: "SPRING", subtotal: "125.00", reason: domain.DiscountRejectedNotActive},
		{name: "expired", code: "WINTER", subtotal: "125.00", reason: domain.DiscountRejectedNotActive},
		{name: "usage exceeded", code: "LIMITED", subtotal: "125.00", reason: domain.DiscountRejectedUsageExceeded},
		{name: "below minimum", code: "BIGSPEND", subtotal: "499.99", reason: domain.DiscountRejectedMinPurchaseNotMet},
		{name: "at minimum", code: "BIGSPEND", subtotal: "500.00", applied: true, deduction: "50.00"},
		{name: "free shipping deducts nothing", code: "SHIPFREE", subtotal: "20.00", applied: true, deduction: "0.00"},
		{name: "disabled wins over other reasons", code: "STALE", subtotal: "1.00", reason: domain.DiscountRejectedDisabled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict, err := engine.Validate(context.Background(), tc.code, money(tc.subtotal), discountNow)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if verdict.Applied != tc.applied {
				t.Fatalf("expected applied=%v, got %+v", tc.applied, verdict)
			}
			if !tc.applied {
				if verdict.Reason != tc.reason {
					t.Fatalf("expected reason %s, got %s", tc.reason, verdict.Reason)
				}
				if verdict.Discount != nil {
					t.Fatalf("expected no discount on rejection")
				}
				return
			}
			if verdict.Discount == nil {
				t.Fatal("expected discount on verdict")
			}
			assertMoney(t, "deduction", verdict.Deduction, tc.deduction)
		})
	}
}

func TestDiscountEngine_WindowBoundsInclusive(t *testing.T) {
	until := discountNow.Add(time.Hour)
	store := memory.NewStore(memory.WithDiscounts(Discount{
		Code: "EDGE", Kind: domain.DiscountKindPercentage, Value: decimal.NewFromInt(5), Enabled: true,
		ActiveFrom: discountNow, ActiveUntil: &until,
	}))
	engine := newTestDiscountEngine(t, store.Discounts())

	for _, at := range []time.Time{discountNow, until} {
		verdict, err := engine.Validate(context.Background(), "EDGE", money("10.00"), at)
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if !verdict.Applied {
			t.Fatalf("expected code active at %s, got %s", at, verdict.Reason)
		}
	}
}

type failingDiscountRepo struct {
	err error
}

func (f failingDiscountRepo) ListDiscounts(context.Context) ([]Discount, error) { return nil, f.err }

func (f failingDiscountRepo) FindByCode(context.Context, string) (Discount, error) {
	return Discount{}, f.err
}

func (f failingDiscountRepo) IncrementUsage(context.Context, string) (Discount, error) {
	return Discount{}, f.err
}

func TestDiscountEngine_BackendFailureIsNotARejection(t *testing.T) {
	engine := newTestDiscountEngine(t, failingDiscountRepo{err: repositories.NewUnavailableError("find", errors.New("boom"))})

	_, err := engine.Validate(context.Background(), "WELCOME20", money("125.00"), discountNow)
	if !errors.Is(err, ErrDiscountUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}

	if _, err := engine.ListActive(context.Background(), discountNow); !errors.Is(err, ErrDiscountUnavailable) {
		t.Fatalf("expected unavailable error from ListActive, got %v", err)
	}
}

func TestDiscountEngine_ListActive(t *testing.T) {
	store := memory.NewStore(memory.WithDiscounts(testCatalog()...))
	engine := newTestDiscountEngine(t, store.Discounts())

	active, err := engine.ListActive(context.Background(), discountNow)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	got := make(map[string]bool, len(active))
	for _, d := range active {
		got[d.Code] = true
	}
	for _, code := range []string{"WELCOME20", "BIGSPEND", "SHIPFREE"} {
		if !got[code] {
			t.Fatalf("expected %s in active list, got %v", code, got)
		}
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active codes, got %d", len(active))
	}
}

func TestNewDiscountEngine_RequiresRepository(t *testing.T) {
	if _, err := NewDiscountEngine(DiscountEngineDeps{}); err == nil {
		t.Fatal("expected error without repository")
	}
}
