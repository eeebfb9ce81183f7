package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maison-luxe/storefront/internal/platform/requestctx"
	"github.com/maison-luxe/storefront/internal/services"
)

type stubCartStore struct {
	cartFunc   func(ctx context.Context, sessionID string) (services.Cart, error)
	addFunc    func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	updateFunc func(ctx context.Context, cmd services.UpdateCartQuantityCommand) (services.Cart, error)
	removeFunc func(ctx context.Context, sessionID, itemID string) (services.Cart, error)
}

func (s *stubCartStore) Cart(ctx context.Context, sessionID string) (services.Cart, error) {
	if s.cartFunc != nil {
		return s.cartFunc(ctx, sessionID)
	}
	return services.Cart{SessionID: sessionID}, nil
}

func (s *stubCartStore) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return services.Cart{}, nil
}

func (s *stubCartStore) UpdateQuantity(ctx context.Context, cmd services.UpdateCartQuantityCommand) (services.Cart, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.Cart{}, nil
}

func (s *stubCartStore) RemoveItem(ctx context.Context, sessionID, itemID string) (services.Cart, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, sessionID, itemID)
	}
	return services.Cart{}, nil
}

func (s *stubCartStore) Clear(context.Context, string) error { return nil }

func (s *stubCartStore) Items(context.Context, string) ([]services.CartItem, error) {
	return nil, nil
}

func (s *stubCartStore) Subtotal(context.Context, string) (services.Money, error) {
	return services.Money{}, nil
}

type stubCheckoutService struct {
	beginFunc    func(ctx context.Context, sessionID string) (services.CheckoutView, error)
	sessionFunc  func(ctx context.Context, sessionID string) (services.CheckoutView, error)
	summaryFunc  func(ctx context.Context, sessionID string) (services.PricingBreakdown, error)
	proceedFunc  func(ctx context.Context, sessionID string) (services.CheckoutView, error)
	shippingFunc func(ctx context.Context, cmd services.SubmitShippingCommand) (services.CheckoutView, error)
	applyFunc    func(ctx context.Context, sessionID, code string) (services.CheckoutView, error)
	removeFunc   func(ctx context.Context, sessionID string) (services.CheckoutView, error)
	paymentFunc  func(ctx context.Context, cmd services.SubmitPaymentCommand) (services.PaymentOutcome, error)
	backFunc     func(ctx context.Context, sessionID string, step services.CheckoutStep) (services.CheckoutView, error)
	cancelFunc   func(ctx context.Context, sessionID string) error
}

var _ services.CheckoutService = (*stubCheckoutService)(nil)

func (s *stubCheckoutService) Begin(ctx context.Context, sessionID string) (services.CheckoutView, error) {
	if s.beginFunc != nil {
		return s.beginFunc(ctx, sessionID)
	}
	return services.CheckoutView{}, nil
}

func (s *stubCheckoutService) Session(ctx context.Context, sessionID string) (services.CheckoutView, error) {
	if s.sessionFunc != nil {
		return s.sessionFunc(ctx, sessionID)
	}
	return services.CheckoutView{}, nil
}

func (s *stubCheckoutService) Summary(ctx context.Context, sessionID string) (services.PricingBreakdown, error) {
	if s.summaryFunc != nil {
		return s.summaryFunc(ctx, sessionID)
	}
	return services.PricingBreakdown{}, nil
}

func (s *stubCheckoutService) ProceedToShipping(ctx context.Context, sessionID string) (services.CheckoutView, error) {
	if s.proceedFunc != nil {
		return s.proceedFunc(ctx, sessionID)
	}
	return services.CheckoutView{}, nil
}

func (s *stubCheckoutService) SubmitShipping(ctx context.Context, cmd services.SubmitShippingCommand) (services.CheckoutView, error) {
	if s.shippingFunc != nil {
		return s.shippingFunc(ctx, cmd)
	}
	return services.CheckoutView{}, nil
}

func (s *stubCheckoutService) ApplyDiscount(ctx context.Context, sessionID, code string) (services.CheckoutView, error) {
	if s.applyFunc != nil {
		return s.applyFunc(ctx, sessionID, code)
	}
	return services.CheckoutView{}, nil
}

func (s *stubCheckoutService) RemoveDiscount(ctx context.Context, sessionID string) (services.CheckoutView, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, sessionID)
	}
	return services.CheckoutView{}, nil
}

func (s *stubCheckoutService) SubmitPayment(ctx context.Context, cmd services.SubmitPaymentCommand) (services.PaymentOutcome, error) {
	if s.paymentFunc != nil {
		return s.paymentFunc(ctx, cmd)
	}
	return services.PaymentOutcome{}, nil
}

func (s *stubCheckoutService) GoBack(ctx context.Context, sessionID string, step services.CheckoutStep) (services.CheckoutView, error) {
	if s.backFunc != nil {
		return s.backFunc(ctx, sessionID, step)
	}
	return services.CheckoutView{}, nil
}

func (s *stubCheckoutService) Cancel(ctx context.Context, sessionID string) error {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, sessionID)
	}
	return nil
}

type stubOrderRecorder struct {
	getFunc func(ctx context.Context, sessionID, orderID string) (services.Order, error)
}

func (s *stubOrderRecorder) Record(context.Context, services.RecordOrderCommand) (services.Order, error) {
	return services.Order{}, nil
}

func (s *stubOrderRecorder) GetOrder(ctx context.Context, sessionID, orderID string) (services.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, sessionID, orderID)
	}
	return services.Order{}, services.ErrOrderNotFound
}

type stubDiscountEngine struct {
	active []services.Discount
	err    error
	seenAt time.Time
}

func (s *stubDiscountEngine) Validate(context.Context, string, services.Money, time.Time) (services.DiscountVerdict, error) {
	return services.DiscountVerdict{}, nil
}

func (s *stubDiscountEngine) ListActive(_ context.Context, now time.Time) ([]services.Discount, error) {
	s.seenAt = now
	return s.active, s.err
}

type stubSystemService struct {
	report services.HealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.HealthReport, error) {
	return s.report, s.err
}

type stubReceiptLinker struct {
	url     string
	expires time.Time
	err     error
}

func (s *stubReceiptLinker) ReceiptURL(context.Context, services.Order) (string, time.Time, error) {
	return s.url, s.expires, s.err
}

// serve mounts routes under a bare chi router and sends one request bound to sessionID.
// An empty sessionID sends the request without a session.
func serve(t *testing.T, routes RouteRegistrar, method, target, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	routes(router)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if sessionID != "" {
		req = req.WithContext(requestctx.WithSessionID(req.Context(), sessionID))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

var (
	_ services.CartStore      = (*stubCartStore)(nil)
	_ services.OrderRecorder  = (*stubOrderRecorder)(nil)
	_ services.DiscountEngine = (*stubDiscountEngine)(nil)
	_ services.SystemService  = (*stubSystemService)(nil)
	_ ReceiptLinker           = (*stubReceiptLinker)(nil)
)
