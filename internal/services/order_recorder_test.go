package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
	"github.com/maison-luxe/storefront/internal/repositories/memory"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []OrderCompletedEvent
	err    error
}

func (p *capturingPublisher) PublishOrderCompleted(_ context.Context, event OrderCompletedEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	if p.err != nil {
		return "", p.err
	}
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

type capturingArchiver struct {
	orders []string
}

func (a *capturingArchiver) ArchiveReceipt(_ context.Context, order Order) (string, error) {
	a.orders = append(a.orders, order.ID)
	return "receipts/" + order.ID + ".json", nil
}

type failingInsertOrders struct {
	repositories.OrderRepository
}

func (failingInsertOrders) Insert(context.Context, domain.Order) error {
	return repositories.NewUnavailableError("orders.insert", errors.New("backend down"))
}

func recordCommand(attemptID, discountCode string) RecordOrderCommand {
	addr := domain.ShippingAddress{RecipientName: "Hana Sato", Street: "1-2-3 Ginza", City: "Chuo-ku", Region: "Tokyo", PostalCode: "104-0061", Country: "JP"}
	return RecordOrderCommand{
		SessionID: "sess",
		AttemptID: attemptID,
		Draft: OrderDraft{
			Items:   []CartItem{item("bag", "125.00", 1)},
			Address: &addr,
			Payment: &PaymentIntent{Kind: domain.PaymentMethodCashOnDelivery},
		},
		Pricing: PricingBreakdown{
			Subtotal:       money("125.00"),
			DiscountAmount: money("10.00"),
			ShippingCost:   money("15.00"),
			Tax:            money("10.00"),
			Total:          money("140.00"),
			DiscountCode:   discountCode,
		},
		PaymentReference: cashPaymentReference,
	}
}

func newTestOrderRecorder(t *testing.T, store *memory.Store, orders repositories.OrderRepository, publisher OrderEventPublisher, archiver ReceiptArchiver) OrderRecorder {
	t.Helper()
	var seq atomic.Int64
	recorder, err := NewOrderRecorder(OrderRecorderDeps{
		UnitOfWork: store,
		Orders:     orders,
		Discounts:  store.Discounts(),
		Publisher:  publisher,
		Archiver:   archiver,
		Clock:      func() time.Time { return checkoutNow },
		IDGenerator: func() string {
			return fmt.Sprintf("ord-%d", seq.Add(1))
		},
	})
	if err != nil {
		t.Fatalf("NewOrderRecorder: %v", err)
	}
	return recorder
}

func limitedDiscount(limit, used int) Discount {
	return Discount{Code: "TEN", Kind: domain.DiscountKindFixedAmount, Value: decimal.NewFromInt(10), Enabled: true, UsageLimit: intPtr(limit), UsageCount: used}
}

func TestOrderRecorder_RecordIsIdempotentPerAttempt(t *testing.T) {
	store := memory.NewStore(memory.WithDiscounts(limitedDiscount(5, 0)))
	publisher := &capturingPublisher{}
	archiver := &capturingArchiver{}
	recorder := newTestOrderRecorder(t, store, store.Orders(), publisher, archiver)
	ctx := context.Background()

	first, err := recorder.Record(ctx, recordCommand("att-1", "TEN"))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	second, err := recorder.Record(ctx, recordCommand("att-1", "TEN"))
	if err != nil {
		t.Fatalf("Record replay: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same order on replay, got %s and %s", first.ID, second.ID)
	}

	discount, err := store.Discounts().FindByCode(ctx, "TEN")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if discount.UsageCount != 1 {
		t.Fatalf("expected usage counted once, got %d", discount.UsageCount)
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != OrderCompletedEventType {
		t.Fatalf("expected one completed event, got %+v", publisher.events)
	}
	if publisher.events[0].Total != "140.00" || publisher.events[0].ItemCount != 1 {
		t.Fatalf("unexpected event payload %+v", publisher.events[0])
	}
	if len(archiver.orders) != 1 || archiver.orders[0] != first.ID {
		t.Fatalf("expected one archived receipt, got %v", archiver.orders)
	}
	if !first.CreatedAt.Equal(checkoutNow) {
		t.Fatalf("expected creation time from clock, got %s", first.CreatedAt)
	}
}

func TestOrderRecorder_UsageExceededRejects(t *testing.T) {
	store := memory.NewStore(memory.WithDiscounts(limitedDiscount(1, 1)))
	recorder := newTestOrderRecorder(t, store, store.Orders(), nil, nil)
	ctx := context.Background()

	_, err := recorder.Record(ctx, recordCommand("att-1", "TEN"))
	var rejected *DiscountRejectedError
	if !errors.As(err, &rejected) || rejected.Reason != domain.DiscountRejectedUsageExceeded {
		t.Fatalf("expected usage exceeded, got %v", err)
	}
	if _, err := store.Orders().FindByAttempt(ctx, "att-1"); !repositories.IsNotFound(err) {
		t.Fatalf("expected no order recorded, got %v", err)
	}
}

func TestOrderRecorder_LastUseGoesToOneAttempt(t *testing.T) {
	store := memory.NewStore(memory.WithDiscounts(limitedDiscount(1, 0)))
	recorder := newTestOrderRecorder(t, store, store.Orders(), nil, nil)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := recorder.Record(ctx, recordCommand(fmt.Sprintf("att-%d", i), "TEN"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrDiscountRejected):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if success != 1 || rejected != 7 {
		t.Fatalf("expected exactly one redemption, got %d successes and %d rejections", success, rejected)
	}
}

func TestOrderRecorder_InsertFailureRollsBackUsage(t *testing.T) {
	store := memory.NewStore(memory.WithDiscounts(limitedDiscount(5, 0)))
	recorder := newTestOrderRecorder(t, store, failingInsertOrders{store.Orders()}, nil, nil)
	ctx := context.Background()

	_, err := recorder.Record(ctx, recordCommand("att-1", "TEN"))
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	discount, err := store.Discounts().FindByCode(ctx, "TEN")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if discount.UsageCount != 0 {
		t.Fatalf("expected usage rolled back, got %d", discount.UsageCount)
	}
}

func TestOrderRecorder_PublishFailureKeepsOrder(t *testing.T) {
	store := memory.NewStore()
	publisher := &capturingPublisher{err: errors.New("broker down")}
	recorder := newTestOrderRecorder(t, store, store.Orders(), publisher, nil)

	order, err := recorder.Record(context.Background(), recordCommand("att-1", ""))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := store.Orders().FindByID(context.Background(), order.ID); err != nil {
		t.Fatalf("expected order persisted, got %v", err)
	}
}

func TestOrderRecorder_RejectsIncompleteDraft(t *testing.T) {
	store := memory.NewStore()
	recorder := newTestOrderRecorder(t, store, store.Orders(), nil, nil)

	cmd := recordCommand("att-1", "")
	cmd.Draft.Address = nil
	if _, err := recorder.Record(context.Background(), cmd); !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("expected integrity violation, got %v", err)
	}
	cmd = recordCommand("", "")
	if _, err := recorder.Record(context.Background(), cmd); !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("expected integrity violation for missing attempt, got %v", err)
	}
}

func TestOrderRecorder_GetOrderScopedToSession(t *testing.T) {
	store := memory.NewStore()
	recorder := newTestOrderRecorder(t, store, store.Orders(), nil, nil)
	ctx := context.Background()

	order, err := recorder.Record(ctx, recordCommand("att-1", ""))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := recorder.GetOrder(ctx, "sess", order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	assertMoney(t, "total", got.Total, "140.00")
	if _, err := recorder.GetOrder(ctx, "other", order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected other sessions not to see the order, got %v", err)
	}
	if _, err := recorder.GetOrder(ctx, "sess", "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
