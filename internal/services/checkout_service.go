package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/payments"
	"github.com/maison-luxe/storefront/internal/repositories"
)

const defaultCheckoutTTL = 2 * time.Hour

var (
	errCheckoutSessionsRequired   = errors.New("checkout service: session repository is required")
	errCheckoutCartsRequired      = errors.New("checkout service: cart store is required")
	errCheckoutPricingRequired    = errors.New("checkout service: pricer is required")
	errCheckoutDiscountsRequired  = errors.New("checkout service: discount engine is required")
	errCheckoutDispatcherRequired = errors.New("checkout service: payment dispatcher is required")
	errCheckoutTokenizerRequired  = errors.New("checkout service: card tokenizer is required")

	// ErrCheckoutNotStarted indicates the session has no checkout in progress.
	ErrCheckoutNotStarted = errors.New("checkout service: checkout not started")
	// ErrCheckoutCartEmpty blocks leaving the cart step with no items.
	ErrCheckoutCartEmpty = errors.New("checkout service: cart is empty")
	// ErrCheckoutCompleted indicates the checkout reached confirmation and is read-only.
	ErrCheckoutCompleted = errors.New("checkout service: checkout already completed")
	// ErrCheckoutPaymentPending indicates a wallet redirect is outstanding; the draft is frozen
	// until the shopper completes it or cancels the checkout.
	ErrCheckoutPaymentPending = errors.New("checkout service: wallet payment pending")
	// ErrCheckoutUnavailable indicates the checkout session store failed.
	ErrCheckoutUnavailable = errors.New("checkout service: unavailable")
)

const (
	reasonCardDeclined         = "Your card was declined. Please check the details or use another card."
	reasonTokenizerUnavailable = "We could not verify your card right now. Please try again."
)

// CheckoutServiceDeps wires the checkout state machine.
type CheckoutServiceDeps struct {
	Sessions   repositories.CheckoutSessionRepository
	Carts      CartStore
	Pricer     Pricer
	Zones      ZoneResolver
	Discounts  DiscountEngine
	Dispatcher PaymentDispatcher
	Orders     OrderRecorder
	Tokenizer  payments.CardTokenizer
	// WalletProviders restricts accepted wallet providers; empty accepts any non-empty name.
	WalletProviders []string
	// DispatchTimeout is how long an in-flight attempt blocks new submissions before it is
	// considered abandoned and retried under the same attempt id.
	DispatchTimeout time.Duration
	// SessionTTL expires idle, unfinished checkouts.
	SessionTTL  time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type checkoutService struct {
	sessions        repositories.CheckoutSessionRepository
	carts           CartStore
	pricer          Pricer
	zones           ZoneResolver
	discounts       DiscountEngine
	dispatcher      PaymentDispatcher
	orders          OrderRecorder
	tokenizer       payments.CardTokenizer
	walletProviders []string
	dispatchTimeout time.Duration
	sessionTTL      time.Duration
	now             func() time.Time
	newID           func() string
	logger          func(context.Context, string, map[string]any)
	locks           *sessionLocks
}

// NewCheckoutService constructs the checkout state machine.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errCheckoutSessionsRequired
	case deps.Carts == nil:
		return nil, errCheckoutCartsRequired
	case deps.Pricer == nil:
		return nil, errCheckoutPricingRequired
	case deps.Discounts == nil:
		return nil, errCheckoutDiscountsRequired
	case deps.Dispatcher == nil:
		return nil, errCheckoutDispatcherRequired
	case deps.Tokenizer == nil:
		return nil, errCheckoutTokenizerRequired
	}

	zones := deps.Zones
	if zones == nil {
		if resolver, ok := deps.Pricer.(ZoneResolver); ok {
			zones = resolver
		}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	dispatchTimeout := deps.DispatchTimeout
	if dispatchTimeout <= 0 {
		dispatchTimeout = defaultDispatchTimeout
	}
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = defaultCheckoutTTL
	}
	providers := make([]string, 0, len(deps.WalletProviders))
	for _, p := range deps.WalletProviders {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			providers = append(providers, p)
		}
	}

	return &checkoutService{
		sessions:        deps.Sessions,
		carts:           deps.Carts,
		pricer:          deps.Pricer,
		zones:           zones,
		discounts:       deps.Discounts,
		dispatcher:      deps.Dispatcher,
		orders:          deps.Orders,
		tokenizer:       deps.Tokenizer,
		walletProviders: providers,
		dispatchTimeout: dispatchTimeout,
		sessionTTL:      ttl,
		now:             func() time.Time { return clock().UTC() },
		newID:           idGen,
		logger:          logger,
		locks:           newSessionLocks(),
	}, nil
}

// Begin starts a checkout, or resumes the existing one, and advances it past the cart step.
// A confirmed checkout is replaced by a fresh one once the shopper has new items in the cart.
func (s *checkoutService) Begin(ctx context.Context, sessionID string) (CheckoutView, error) {
	sessionID, err := requireSessionID(sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, found, err := s.load(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	items, err := s.carts.Items(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}

	if found && session.Step == domain.CheckoutStepConfirmation {
		if len(items) == 0 {
			return s.view(ctx, session)
		}
		found = false
	}
	if !found {
		session = s.newSession(sessionID)
		s.logger(ctx, "checkout.started", map[string]any{"sessionId": sessionID})
	}
	if session.Attempt == domain.AttemptStatePending || session.Attempt == domain.AttemptStateInFlight {
		return s.view(ctx, session)
	}
	if len(items) == 0 {
		if err := s.save(ctx, &session); err != nil {
			return CheckoutView{}, err
		}
		return CheckoutView{}, ErrCheckoutCartEmpty
	}

	session.Draft.Items = domain.CloneItems(items)
	if session.Step == domain.CheckoutStepCart {
		session.Step = domain.CheckoutStepShipping
	}
	if err := s.save(ctx, &session); err != nil {
		return CheckoutView{}, err
	}
	return s.view(ctx, session)
}

// ProceedToShipping takes an existing checkout from the cart step to the shipping step.
func (s *checkoutService) ProceedToShipping(ctx context.Context, sessionID string) (CheckoutView, error) {
	sessionID, err := requireSessionID(sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.loadMutable(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	if session.Step != domain.CheckoutStepCart {
		return s.view(ctx, session)
	}
	items, err := s.carts.Items(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	if len(items) == 0 {
		return CheckoutView{}, ErrCheckoutCartEmpty
	}
	session.Draft.Items = domain.CloneItems(items)
	session.Step = domain.CheckoutStepShipping
	if err := s.save(ctx, &session); err != nil {
		return CheckoutView{}, err
	}
	return s.view(ctx, session)
}

// Session returns the current checkout. Sessions without a checkout read as the cart step.
func (s *checkoutService) Session(ctx context.Context, sessionID string) (CheckoutView, error) {
	sessionID, err := requireSessionID(sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, found, err := s.load(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	if !found {
		session = s.newSession(sessionID)
	}
	return s.view(ctx, session)
}

// Summary returns the priced breakdown of the current checkout or cart.
func (s *checkoutService) Summary(ctx context.Context, sessionID string) (PricingBreakdown, error) {
	view, err := s.Session(ctx, sessionID)
	if err != nil {
		return PricingBreakdown{}, err
	}
	return view.Pricing, nil
}

// SubmitShipping validates the address, snapshots the cart and advances to payment.
func (s *checkoutService) SubmitShipping(ctx context.Context, cmd SubmitShippingCommand) (CheckoutView, error) {
	sessionID, err := requireSessionID(cmd.SessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.loadMutable(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	if session.Step == domain.CheckoutStepCart || len(session.Draft.Items) == 0 {
		return CheckoutView{}, integrityViolation("shipping submitted before leaving the cart step")
	}

	address, err := normalizeShippingAddress(cmd.Address)
	if err != nil {
		return CheckoutView{}, err
	}
	if err := s.refreshItems(ctx, &session); err != nil {
		return CheckoutView{}, err
	}

	session.Draft.Address = &address
	session.Step = domain.CheckoutStepPayment
	if err := s.save(ctx, &session); err != nil {
		return CheckoutView{}, err
	}
	return s.view(ctx, session)
}

// ApplyDiscount validates code against the draft subtotal and attaches it to the draft.
func (s *checkoutService) ApplyDiscount(ctx context.Context, sessionID, code string) (CheckoutView, error) {
	sessionID, err := requireSessionID(sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.loadMutable(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	items := session.Draft.Items
	if session.Step == domain.CheckoutStepCart {
		if items, err = s.carts.Items(ctx, sessionID); err != nil {
			return CheckoutView{}, err
		}
	}

	normalized := domain.NormalizeDiscountCode(code)
	verdict, err := s.discounts.Validate(ctx, normalized, domain.SubtotalOf(items), s.now())
	if err != nil {
		return CheckoutView{}, err
	}
	if !verdict.Applied {
		return CheckoutView{}, &DiscountRejectedError{Code: normalized, Reason: verdict.Reason}
	}

	session.Draft.Discount = verdict.Discount
	if err := s.save(ctx, &session); err != nil {
		return CheckoutView{}, err
	}
	s.logger(ctx, "checkout.discount_applied", map[string]any{"sessionId": sessionID, "code": normalized})
	return s.view(ctx, session)
}

// RemoveDiscount detaches any discount from the draft.
func (s *checkoutService) RemoveDiscount(ctx context.Context, sessionID string) (CheckoutView, error) {
	sessionID, err := requireSessionID(sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.loadMutable(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	if session.Draft.Discount == nil {
		return s.view(ctx, session)
	}
	session.Draft.Discount = nil
	if err := s.save(ctx, &session); err != nil {
		return CheckoutView{}, err
	}
	return s.view(ctx, session)
}

// SubmitPayment validates the selection, tokenizes cards and dispatches the payment. Dispatch
// failures keep the checkout at the payment step with the draft intact.
func (s *checkoutService) SubmitPayment(ctx context.Context, cmd SubmitPaymentCommand) (PaymentOutcome, error) {
	sessionID, err := requireSessionID(cmd.SessionID)
	if err != nil {
		return PaymentOutcome{}, err
	}

	unlock := s.locks.lock(sessionID)
	session, dispatch, outcome, err := s.preparePayment(ctx, sessionID, cmd.Selection)
	unlock()
	if err != nil || dispatch == nil {
		return outcome, err
	}

	result, dispatchErr := s.dispatcher.Dispatch(ctx, *dispatch)

	unlock = s.locks.lock(sessionID)
	defer unlock()
	return s.applyDispatch(ctx, session, *dispatch, result, dispatchErr)
}

// preparePayment runs under the session lock. It returns a dispatch command to execute, or a
// finished outcome when no dispatch is needed.
func (s *checkoutService) preparePayment(ctx context.Context, sessionID string, selection PaymentSelection) (CheckoutSession, *DispatchCommand, PaymentOutcome, error) {
	session, found, err := s.load(ctx, sessionID)
	if err != nil {
		return CheckoutSession{}, nil, PaymentOutcome{}, err
	}
	if !found {
		return CheckoutSession{}, nil, PaymentOutcome{}, ErrCheckoutNotStarted
	}

	if session.Step == domain.CheckoutStepConfirmation {
		view, err := s.view(ctx, session)
		if err != nil {
			return CheckoutSession{}, nil, PaymentOutcome{}, err
		}
		return session, nil, PaymentOutcome{View: view, Result: DispatchResult{Outcome: DispatchSuccess, Order: view.Order}}, nil
	}
	if session.Step != domain.CheckoutStepPayment || session.Draft.Address == nil {
		return CheckoutSession{}, nil, PaymentOutcome{}, integrityViolation("payment submitted before a shipping address was accepted")
	}

	now := s.now()
	switch session.Attempt {
	case domain.AttemptStateInFlight:
		if now.Sub(session.UpdatedAt) < s.dispatchTimeout {
			return CheckoutSession{}, nil, PaymentOutcome{}, ErrDispatchInFlight
		}
	case domain.AttemptStatePending:
		return s.resumePending(ctx, session, selection)
	}

	intent, failure, err := s.paymentIntent(ctx, selection, now)
	if err != nil {
		return CheckoutSession{}, nil, PaymentOutcome{}, err
	}
	if failure != nil {
		session.LastFailure = failure.Reason
		if err := s.save(ctx, &session); err != nil {
			return CheckoutSession{}, nil, PaymentOutcome{}, err
		}
		view, err := s.view(ctx, session)
		return session, nil, PaymentOutcome{View: view, Result: *failure}, err
	}

	if err := s.refreshItems(ctx, &session); err != nil {
		return CheckoutSession{}, nil, PaymentOutcome{}, err
	}
	if err := s.revalidateDiscount(ctx, &session, now); err != nil {
		return CheckoutSession{}, nil, PaymentOutcome{}, err
	}

	if session.AttemptID == "" || session.Attempt == domain.AttemptStateFailed || session.Attempt == domain.AttemptStateNone {
		session.AttemptID = s.newID()
	}
	session.Attempt = domain.AttemptStateInFlight
	session.Draft.Payment = &intent
	session.LastFailure = ""
	if err := s.save(ctx, &session); err != nil {
		return CheckoutSession{}, nil, PaymentOutcome{}, err
	}

	return session, &DispatchCommand{
		SessionID: sessionID,
		AttemptID: session.AttemptID,
		Draft:     session.Draft.Clone(),
		Pricing:   s.price(session),
	}, PaymentOutcome{}, nil
}

// resumePending replays the outstanding wallet redirect for a resubmission of the same wallet.
func (s *checkoutService) resumePending(ctx context.Context, session CheckoutSession, selection PaymentSelection) (CheckoutSession, *DispatchCommand, PaymentOutcome, error) {
	current := session.Draft.Payment
	same := current != nil &&
		selection.Kind == domain.PaymentMethodMobileWallet &&
		current.Kind == domain.PaymentMethodMobileWallet &&
		strings.EqualFold(strings.TrimSpace(selection.WalletProvider), current.WalletProvider)
	if !same {
		return CheckoutSession{}, nil, PaymentOutcome{}, ErrCheckoutPaymentPending
	}
	return session, &DispatchCommand{
		SessionID: session.SessionID,
		AttemptID: session.AttemptID,
		Draft:     session.Draft.Clone(),
		Pricing:   s.price(session),
	}, PaymentOutcome{}, nil
}

func (s *checkoutService) applyDispatch(ctx context.Context, prepared CheckoutSession, cmd DispatchCommand, result DispatchResult, dispatchErr error) (PaymentOutcome, error) {
	session, found, err := s.load(ctx, prepared.SessionID)
	if err != nil {
		return PaymentOutcome{}, err
	}
	if !found || session.AttemptID != cmd.AttemptID {
		// The session was replaced while dispatching; keep what was prepared.
		session = prepared
	}

	if dispatchErr != nil {
		var rejected *DiscountRejectedError
		switch {
		case errors.Is(dispatchErr, ErrDispatchInFlight):
			return PaymentOutcome{}, dispatchErr
		case errors.As(dispatchErr, &rejected):
			session.Draft.Discount = nil
			session.Attempt = domain.AttemptStateFailed
			session.LastFailure = rejected.Reason.Message()
		default:
			session.Attempt = domain.AttemptStateFailed
			session.LastFailure = reasonOrderUnavailable
		}
		if err := s.save(ctx, &session); err != nil {
			return PaymentOutcome{}, err
		}
		return PaymentOutcome{}, dispatchErr
	}

	switch result.Outcome {
	case DispatchSuccess:
		session.Attempt = domain.AttemptStateSucceeded
		session.Step = domain.CheckoutStepConfirmation
		session.LastFailure = ""
		session.RedirectURL = ""
		if result.Order != nil {
			session.OrderID = result.Order.ID
		}
		s.logger(ctx, "checkout.completed", map[string]any{"sessionId": session.SessionID, "orderId": session.OrderID})
	case DispatchPending:
		session.Attempt = domain.AttemptStatePending
		session.RedirectURL = result.RedirectURL
		session.LastFailure = ""
	default:
		session.Attempt = domain.AttemptStateFailed
		session.LastFailure = result.Reason
	}
	if err := s.save(ctx, &session); err != nil {
		return PaymentOutcome{}, err
	}
	view, err := s.view(ctx, session)
	if err != nil {
		return PaymentOutcome{}, err
	}
	if result.Outcome == DispatchSuccess && result.Order != nil {
		order := result.Order.Clone()
		view.Order = &order
	}
	return PaymentOutcome{View: view, Result: result}, nil
}

// GoBack moves to an earlier step without discarding entered data. Confirmation is terminal:
// going back from it returns the confirmation unchanged.
func (s *checkoutService) GoBack(ctx context.Context, sessionID string, step CheckoutStep) (CheckoutView, error) {
	sessionID, err := requireSessionID(sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, found, err := s.load(ctx, sessionID)
	if err != nil {
		return CheckoutView{}, err
	}
	if !found {
		return CheckoutView{}, ErrCheckoutNotStarted
	}
	if session.Step == domain.CheckoutStepConfirmation {
		return s.view(ctx, session)
	}
	if err := s.ensureMutable(session); err != nil {
		return CheckoutView{}, err
	}

	target := step.Ordinal()
	if target < 0 || target >= session.Step.Ordinal() {
		var fields fieldErrors
		fields.add("step", "must be an earlier checkout step")
		return CheckoutView{}, fields.err()
	}
	session.Step = step
	if err := s.save(ctx, &session); err != nil {
		return CheckoutView{}, err
	}
	return s.view(ctx, session)
}

// Cancel discards the draft. The cart is left untouched.
func (s *checkoutService) Cancel(ctx context.Context, sessionID string) error {
	sessionID, err := requireSessionID(sessionID)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, found, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if session.Step == domain.CheckoutStepConfirmation {
		return ErrCheckoutCompleted
	}
	if session.Attempt == domain.AttemptStateInFlight && s.now().Sub(session.UpdatedAt) < s.dispatchTimeout {
		return ErrDispatchInFlight
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "checkout.cancelled", map[string]any{
		"sessionId": sessionID,
		"step":      string(session.Step),
		"attempt":   string(session.Attempt),
	})
	return nil
}

func (s *checkoutService) paymentIntent(ctx context.Context, selection PaymentSelection, now time.Time) (PaymentIntent, *DispatchResult, error) {
	switch selection.Kind {
	case domain.PaymentMethodCard:
		card, err := normalizeCard(selection.Card, now)
		if err != nil {
			return PaymentIntent{}, nil, err
		}
		token, err := s.tokenizer.Tokenize(ctx, card)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return PaymentIntent{}, nil, err
			}
			failure := DispatchResult{Outcome: DispatchFailure, Reason: reasonTokenizerUnavailable, Retryable: true}
			if errors.Is(err, payments.ErrCardDeclined) {
				failure = DispatchResult{Outcome: DispatchFailure, Reason: reasonCardDeclined}
			}
			s.logger(ctx, "checkout.tokenize_failed", map[string]any{"error": err.Error()})
			return PaymentIntent{}, &failure, nil
		}
		return PaymentIntent{
			Kind:           domain.PaymentMethodCard,
			CardToken:      token.Token,
			CardBrand:      token.Brand,
			CardLast4:      token.Last4,
			CardholderName: card.Name,
		}, nil, nil
	case domain.PaymentMethodMobileWallet:
		provider := strings.ToLower(strings.TrimSpace(selection.WalletProvider))
		var fields fieldErrors
		switch {
		case provider == "":
			fields.add("walletProvider", "is required")
		case len(s.walletProviders) > 0 && !slices.Contains(s.walletProviders, provider):
			fields.add("walletProvider", "is not supported")
		}
		if err := fields.err(); err != nil {
			return PaymentIntent{}, nil, err
		}
		return PaymentIntent{Kind: domain.PaymentMethodMobileWallet, WalletProvider: provider}, nil, nil
	case domain.PaymentMethodCashOnDelivery:
		return PaymentIntent{Kind: domain.PaymentMethodCashOnDelivery}, nil, nil
	default:
		var fields fieldErrors
		fields.add("method", "must be card, mobile_wallet or cash_on_delivery")
		return PaymentIntent{}, nil, fields.err()
	}
}

// revalidateDiscount drops a code that stopped applying since it was attached.
func (s *checkoutService) revalidateDiscount(ctx context.Context, session *CheckoutSession, now time.Time) error {
	if session.Draft.Discount == nil {
		return nil
	}
	code := session.Draft.Discount.Code
	verdict, err := s.discounts.Validate(ctx, code, domain.SubtotalOf(session.Draft.Items), now)
	if err != nil {
		return err
	}
	if verdict.Applied {
		session.Draft.Discount = verdict.Discount
		return nil
	}
	session.Draft.Discount = nil
	if err := s.save(ctx, session); err != nil {
		return err
	}
	return &DiscountRejectedError{Code: code, Reason: verdict.Reason}
}

// refreshItems snapshots the cart into the draft. An emptied cart sends the flow back to the
// cart step.
func (s *checkoutService) refreshItems(ctx context.Context, session *CheckoutSession) error {
	items, err := s.carts.Items(ctx, session.SessionID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		session.Step = domain.CheckoutStepCart
		session.Draft.Items = nil
		if err := s.save(ctx, session); err != nil {
			return err
		}
		return ErrCheckoutCartEmpty
	}
	session.Draft.Items = domain.CloneItems(items)
	return nil
}

func (s *checkoutService) view(ctx context.Context, session CheckoutSession) (CheckoutView, error) {
	view := CheckoutView{Session: session.Clone()}

	if session.Step == domain.CheckoutStepConfirmation && session.OrderID != "" && s.orders != nil {
		order, err := s.orders.GetOrder(ctx, session.SessionID, session.OrderID)
		if err != nil {
			s.logger(ctx, "checkout.order_lookup_failed", map[string]any{"sessionId": session.SessionID, "orderId": session.OrderID, "error": err.Error()})
		} else {
			view.Order = &order
			view.Pricing = orderBreakdown(order)
			return view, nil
		}
	}

	if session.Step == domain.CheckoutStepCart {
		items, err := s.carts.Items(ctx, session.SessionID)
		if err != nil {
			return CheckoutView{}, err
		}
		session.Draft.Items = items
		view.Session.Draft.Items = domain.CloneItems(items)
	}
	view.Pricing = s.price(session)
	return view, nil
}

func (s *checkoutService) price(session CheckoutSession) PricingBreakdown {
	cmd := PriceCommand{Items: session.Draft.Items, Discount: session.Draft.Discount}
	if s.zones != nil {
		zone := s.zones.ResolveZone(session.Draft.Address)
		cmd.Zone = &zone
	}
	return s.pricer.Price(cmd)
}

func orderBreakdown(order Order) PricingBreakdown {
	return PricingBreakdown{
		Subtotal:       order.Subtotal,
		DiscountAmount: order.DiscountAmount,
		ShippingCost:   order.ShippingCost,
		Tax:            order.Tax,
		Total:          order.Total,
		DiscountCode:   order.DiscountCode,
	}
}

func (s *checkoutService) newSession(sessionID string) CheckoutSession {
	now := s.now()
	return CheckoutSession{
		SessionID: sessionID,
		Step:      domain.CheckoutStepCart,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// load returns the stored session, treating idle unfinished sessions past the TTL as absent.
func (s *checkoutService) load(ctx context.Context, sessionID string) (CheckoutSession, bool, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return CheckoutSession{}, false, nil
		}
		return CheckoutSession{}, false, s.translateRepoError(err)
	}
	expired := session.Step != domain.CheckoutStepConfirmation &&
		session.Attempt != domain.AttemptStatePending &&
		s.now().Sub(session.UpdatedAt) > s.sessionTTL
	if expired {
		return CheckoutSession{}, false, nil
	}
	return session, true, nil
}

// loadMutable loads a session that may still be edited.
func (s *checkoutService) loadMutable(ctx context.Context, sessionID string) (CheckoutSession, error) {
	session, found, err := s.load(ctx, sessionID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if !found {
		return CheckoutSession{}, ErrCheckoutNotStarted
	}
	if err := s.ensureMutable(session); err != nil {
		return CheckoutSession{}, err
	}
	return session, nil
}

func (s *checkoutService) ensureMutable(session CheckoutSession) error {
	switch {
	case session.Step == domain.CheckoutStepConfirmation:
		return ErrCheckoutCompleted
	case session.Attempt == domain.AttemptStatePending:
		return ErrCheckoutPaymentPending
	case session.Attempt == domain.AttemptStateInFlight && s.now().Sub(session.UpdatedAt) < s.dispatchTimeout:
		return ErrDispatchInFlight
	}
	return nil
}

func (s *checkoutService) save(ctx context.Context, session *CheckoutSession) error {
	session.UpdatedAt = s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = session.UpdatedAt
	}
	if err := s.sessions.Save(ctx, *session); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *checkoutService) translateRepoError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}

func requireSessionID(sessionID string) (string, error) {
	if trimmed := strings.TrimSpace(sessionID); trimmed != "" {
		return trimmed, nil
	}
	var fields fieldErrors
	fields.add("sessionId", "is required")
	return "", fields.err()
}
