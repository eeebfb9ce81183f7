package domain

import "time"

// ShippingAddress is the destination captured at the shipping step.
type ShippingAddress struct {
	RecipientName string
	Street        string
	City          string
	Region        string
	PostalCode    string
	Country       string
	Phone         string
}

// ZoneRule is the shipping policy for a destination: a flat rate waived at a threshold.
type ZoneRule struct {
	Name          string
	FreeThreshold Money
	BaseRate      Money
}

// DefaultZoneRule is applied when no zone matches the destination.
func DefaultZoneRule() ZoneRule {
	return ZoneRule{
		Name:          "default",
		FreeThreshold: MustMoney("150.00"),
		BaseRate:      MustMoney("15.00"),
	}
}

// PaymentMethodKind identifies a payment path.
type PaymentMethodKind string

const (
	PaymentMethodCard           PaymentMethodKind = "card"
	PaymentMethodMobileWallet   PaymentMethodKind = "mobile_wallet"
	PaymentMethodCashOnDelivery PaymentMethodKind = "cash_on_delivery"
)

// Valid reports whether the kind is known.
func (k PaymentMethodKind) Valid() bool {
	switch k {
	case PaymentMethodCard, PaymentMethodMobileWallet, PaymentMethodCashOnDelivery:
		return true
	default:
		return false
	}
}

// CardDetails carries raw card input. It is only ever held for the duration of
// validation and tokenization and is never stored on a draft or order.
type CardDetails struct {
	Number string
	Expiry string
	CVC    string
	Name   string
}

// PaymentSelection is the customer's raw payment choice as submitted.
type PaymentSelection struct {
	Kind           PaymentMethodKind
	Card           *CardDetails
	WalletProvider string
}

// PaymentIntent is what survives validation: a method selector plus an opaque token.
type PaymentIntent struct {
	Kind           PaymentMethodKind
	CardToken      string
	CardBrand      string
	CardLast4      string
	CardholderName string
	WalletProvider string
}

// CheckoutStep enumerates the checkout states in forward order.
type CheckoutStep string

const (
	CheckoutStepCart         CheckoutStep = "cart"
	CheckoutStepShipping     CheckoutStep = "shipping"
	CheckoutStepPayment      CheckoutStep = "payment"
	CheckoutStepConfirmation CheckoutStep = "confirmation"
)

// Ordinal returns the position of the step in the flow, or -1 if unknown.
func (s CheckoutStep) Ordinal() int {
	switch s {
	case CheckoutStepCart:
		return 0
	case CheckoutStepShipping:
		return 1
	case CheckoutStepPayment:
		return 2
	case CheckoutStepConfirmation:
		return 3
	default:
		return -1
	}
}

// AttemptState tracks the payment attempt bound to a draft.
type AttemptState string

const (
	AttemptStateNone      AttemptState = ""
	AttemptStateInFlight  AttemptState = "in_flight"
	AttemptStatePending   AttemptState = "pending_redirect"
	AttemptStateFailed    AttemptState = "failed"
	AttemptStateSucceeded AttemptState = "succeeded"
)

// OrderDraft accumulates checkout input until payment is submitted.
type OrderDraft struct {
	Items    []CartItem
	Address  *ShippingAddress
	Payment  *PaymentIntent
	Discount *Discount
}

// Clone returns a deep copy of the draft.
func (d OrderDraft) Clone() OrderDraft {
	d.Items = CloneItems(d.Items)
	if d.Address != nil {
		a := *d.Address
		d.Address = &a
	}
	if d.Payment != nil {
		p := *d.Payment
		d.Payment = &p
	}
	if d.Discount != nil {
		c := d.Discount.Clone()
		d.Discount = &c
	}
	return d
}

// CheckoutSession is the state machine's persisted state for one storefront session.
type CheckoutSession struct {
	SessionID   string
	Step        CheckoutStep
	Draft       OrderDraft
	AttemptID   string
	Attempt     AttemptState
	RedirectURL string
	LastFailure string
	OrderID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy of the session.
func (s CheckoutSession) Clone() CheckoutSession {
	s.Draft = s.Draft.Clone()
	return s
}

// PricingBreakdown is the priced view of a cart, rounded for display.
type PricingBreakdown struct {
	Subtotal            Money
	DiscountAmount      Money
	ShippingCost        Money
	Tax                 Money
	Total               Money
	DiscountCode        string
	FreeShippingApplied bool
	Zone                string
}

// Order is the immutable record produced by a completed checkout.
type Order struct {
	ID                string
	SessionID         string
	AttemptID         string
	Items             []CartItem
	Subtotal          Money
	ShippingCost      Money
	Tax               Money
	DiscountAmount    Money
	Total             Money
	DiscountCode      string
	Address           ShippingAddress
	PaymentMethodKind PaymentMethodKind
	PaymentReference  string
	CreatedAt         time.Time
}

// Clone returns a copy with its own item slice.
func (o Order) Clone() Order {
	o.Items = CloneItems(o.Items)
	return o
}
