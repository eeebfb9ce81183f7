package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/services"
)

func sampleOrder(sessionID string) services.Order {
	cart := sampleCart(sessionID)
	return services.Order{
		ID:                "01HQORDER",
		SessionID:         sessionID,
		AttemptID:         "01HQATTEMPT",
		Items:             cart.Items,
		Subtotal:          domain.MustMoney("120.00"),
		ShippingCost:      domain.MustMoney("15.00"),
		Tax:               domain.MustMoney("9.60"),
		DiscountAmount:    domain.ZeroMoney,
		Total:             domain.MustMoney("144.60"),
		Address:           services.ShippingAddress{RecipientName: "Ada", Street: "12 Rue Cambon", City: "Paris", PostalCode: "75001", Country: "FR"},
		PaymentMethodKind: domain.PaymentMethodCashOnDelivery,
		PaymentReference:  "cod_01HQATTEMPT",
		CreatedAt:         time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC),
	}
}

func TestOrderHandlersGetOrder(t *testing.T) {
	recorder := &stubOrderRecorder{
		getFunc: func(_ context.Context, sessionID, orderID string) (services.Order, error) {
			if sessionID != "sess-1" || orderID != "01HQORDER" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return sampleOrder(sessionID), nil
		},
	}
	h := NewOrderHandlers(recorder)

	rr := serve(t, h.Routes, http.MethodGet, "/01HQORDER", "sess-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body orderResponse
	decodeBody(t, rr.Body.Bytes(), &body)
	if body.Order.ID != "01HQORDER" || body.Order.Pricing.Total != "144.60" {
		t.Fatalf("unexpected order %+v", body.Order)
	}
	if body.Order.PaymentMethodKind != "cash_on_delivery" || body.Order.Address.City != "Paris" {
		t.Fatalf("unexpected order details %+v", body.Order)
	}

	rr = serve(t, h.Routes, http.MethodGet, "/01HQORDER", "sess-other", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected another session to get 404, got %d", rr.Code)
	}
}

func TestOrderHandlersReceipt(t *testing.T) {
	recorder := &stubOrderRecorder{
		getFunc: func(_ context.Context, sessionID, _ string) (services.Order, error) {
			return sampleOrder(sessionID), nil
		},
	}
	expires := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)

	t.Run("signed link", func(t *testing.T) {
		h := NewOrderHandlers(recorder, WithReceiptLinker(&stubReceiptLinker{url: "https://storage.example/receipt", expires: expires}))
		rr := serve(t, h.Routes, http.MethodGet, "/01HQORDER/receipt", "sess-1", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var body receiptResponse
		decodeBody(t, rr.Body.Bytes(), &body)
		if body.URL != "https://storage.example/receipt" || body.ExpiresAt != "2026-03-01T09:15:00Z" {
			t.Fatalf("unexpected receipt %+v", body)
		}
	})

	t.Run("archive disabled", func(t *testing.T) {
		rr := serve(t, NewOrderHandlers(recorder).Routes, http.MethodGet, "/01HQORDER/receipt", "sess-1", "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("signing failure", func(t *testing.T) {
		h := NewOrderHandlers(recorder, WithReceiptLinker(&stubReceiptLinker{err: errors.New("no signer")}))
		rr := serve(t, h.Routes, http.MethodGet, "/01HQORDER/receipt", "sess-1", "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
	})
}

func TestDiscountHandlersListActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	minimum := domain.MustMoney("200")
	until := now.Add(48 * time.Hour)
	engine := &stubDiscountEngine{
		active: []services.Discount{
			{Code: "WELCOME10", Kind: domain.DiscountKindPercentage, Value: domain.MustMoney("10")},
			{Code: "VIP50", Kind: domain.DiscountKindFixedAmount, Value: domain.MustMoney("50"), MinPurchase: &minimum, ActiveUntil: &until},
		},
	}
	h := NewDiscountHandlers(engine, WithDiscountClock(func() time.Time { return now }))

	rr := serve(t, h.Routes, http.MethodGet, "/", "sess-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !engine.seenAt.Equal(now) {
		t.Fatalf("expected handler clock to be used, got %v", engine.seenAt)
	}
	var body discountListResponse
	decodeBody(t, rr.Body.Bytes(), &body)
	if len(body.Items) != 2 {
		t.Fatalf("expected two codes, got %+v", body.Items)
	}
	if body.Items[1].MinPurchase != "200.00" || body.Items[1].ActiveUntil == "" {
		t.Fatalf("unexpected VIP50 payload %+v", body.Items[1])
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "public, max-age=60" {
		t.Fatalf("expected cacheable listing, got %q", cc)
	}
}

func TestDiscountHandlersUnavailable(t *testing.T) {
	engine := &stubDiscountEngine{err: services.ErrDiscountUnavailable}
	rr := serve(t, NewDiscountHandlers(engine).Routes, http.MethodGet, "/", "sess-1", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
