package services

import (
	"context"
	"time"

	domain "github.com/maison-luxe/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Money             = domain.Money
	Cart              = domain.Cart
	CartItem          = domain.CartItem
	Discount          = domain.Discount
	DiscountVerdict   = domain.DiscountVerdict
	ShippingAddress   = domain.ShippingAddress
	ZoneRule          = domain.ZoneRule
	PaymentSelection  = domain.PaymentSelection
	PaymentIntent     = domain.PaymentIntent
	CheckoutStep      = domain.CheckoutStep
	CheckoutSession   = domain.CheckoutSession
	OrderDraft        = domain.OrderDraft
	Order             = domain.Order
	PricingBreakdown  = domain.PricingBreakdown
	HealthReport      = domain.HealthReport
	PaymentMethodKind = domain.PaymentMethodKind
)

// CartStore owns the line items of each storefront session.
type CartStore interface {
	Cart(ctx context.Context, sessionID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (Cart, error)
	RemoveItem(ctx context.Context, sessionID, itemID string) (Cart, error)
	Clear(ctx context.Context, sessionID string) error
	Items(ctx context.Context, sessionID string) ([]CartItem, error)
	Subtotal(ctx context.Context, sessionID string) (Money, error)
}

// Pricer computes a breakdown from scratch. Implementations must be pure.
type Pricer interface {
	Price(cmd PriceCommand) PricingBreakdown
}

// ZoneResolver picks the shipping zone for a destination. A nil address yields the default zone.
type ZoneResolver interface {
	ResolveZone(address *ShippingAddress) ZoneRule
}

// DiscountEngine validates codes against the discount catalog.
type DiscountEngine interface {
	Validate(ctx context.Context, code string, subtotal Money, now time.Time) (DiscountVerdict, error)
	ListActive(ctx context.Context, now time.Time) ([]Discount, error)
}

// CheckoutService drives the Cart → Shipping → Payment → Confirmation state machine.
type CheckoutService interface {
	Begin(ctx context.Context, sessionID string) (CheckoutView, error)
	Session(ctx context.Context, sessionID string) (CheckoutView, error)
	Summary(ctx context.Context, sessionID string) (PricingBreakdown, error)
	ProceedToShipping(ctx context.Context, sessionID string) (CheckoutView, error)
	SubmitShipping(ctx context.Context, cmd SubmitShippingCommand) (CheckoutView, error)
	ApplyDiscount(ctx context.Context, sessionID, code string) (CheckoutView, error)
	RemoveDiscount(ctx context.Context, sessionID string) (CheckoutView, error)
	SubmitPayment(ctx context.Context, cmd SubmitPaymentCommand) (PaymentOutcome, error)
	GoBack(ctx context.Context, sessionID string, step CheckoutStep) (CheckoutView, error)
	Cancel(ctx context.Context, sessionID string) error
}

// PaymentDispatcher routes a validated payment intent to its completion path.
type PaymentDispatcher interface {
	Dispatch(ctx context.Context, cmd DispatchCommand) (DispatchResult, error)
}

// OrderRecorder materialises immutable orders.
type OrderRecorder interface {
	Record(ctx context.Context, cmd RecordOrderCommand) (Order, error)
	GetOrder(ctx context.Context, sessionID, orderID string) (Order, error)
}

// SystemService reports readiness for probes.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// AddCartItemCommand adds a product variant to a session cart.
type AddCartItemCommand struct {
	SessionID    string
	ProductID    string
	VariantLabel string
	DisplayName  string
	UnitPrice    Money
	// Quantity defaults to 1 when zero.
	Quantity int
}

// UpdateCartQuantityCommand adjusts a line's quantity by Delta.
type UpdateCartQuantityCommand struct {
	SessionID string
	ItemID    string
	Delta     int
}

// PriceCommand is the input of a pricing run.
type PriceCommand struct {
	Items    []CartItem
	Discount *Discount
	Zone     *ZoneRule
}

// SubmitShippingCommand carries the shipping step form.
type SubmitShippingCommand struct {
	SessionID string
	Address   ShippingAddress
}

// SubmitPaymentCommand carries the payment step form.
type SubmitPaymentCommand struct {
	SessionID string
	Selection PaymentSelection
}

// CheckoutView is what display consumers read: state, priced draft and, once complete, the order.
type CheckoutView struct {
	Session CheckoutSession
	Pricing PricingBreakdown
	Order   *Order
}

// DispatchOutcome enumerates dispatcher results.
type DispatchOutcome string

const (
	DispatchSuccess DispatchOutcome = "success"
	DispatchPending DispatchOutcome = "pending"
	DispatchFailure DispatchOutcome = "failure"
)

// DispatchCommand is the input of a payment dispatch.
type DispatchCommand struct {
	SessionID string
	AttemptID string
	Draft     OrderDraft
	Pricing   PricingBreakdown
}

// DispatchResult is Success(order), Pending(redirectURL) or Failure(reason).
type DispatchResult struct {
	Outcome       DispatchOutcome
	Order         *Order
	RedirectURL   string
	TransactionID string
	Reason        string
	Retryable     bool
}

// PaymentOutcome is returned by SubmitPayment.
type PaymentOutcome struct {
	View   CheckoutView
	Result DispatchResult
}

// RecordOrderCommand captures everything needed to freeze an order.
type RecordOrderCommand struct {
	SessionID        string
	AttemptID        string
	Draft            OrderDraft
	Pricing          PricingBreakdown
	PaymentReference string
}

// OrderEventPublisher announces completed orders to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderCompleted(ctx context.Context, event OrderCompletedEvent) (string, error)
}

// ReceiptArchiver stores a durable copy of an order receipt.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, order Order) (string, error)
}

// OrderCompletedEvent is the payload of the order.completed event.
type OrderCompletedEvent struct {
	EventType         string    `json:"eventType"`
	OrderID           string    `json:"orderId"`
	SessionID         string    `json:"sessionId"`
	AttemptID         string    `json:"attemptId"`
	Total             string    `json:"total"`
	DiscountCode      string    `json:"discountCode,omitempty"`
	PaymentMethodKind string    `json:"paymentMethodKind"`
	ItemCount         int       `json:"itemCount"`
	CreatedAt         time.Time `json:"createdAt"`
}

// OrderCompletedEventType names the event emitted after an order is recorded.
const OrderCompletedEventType = "order.completed"
