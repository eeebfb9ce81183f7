package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/payments"
	"github.com/maison-luxe/storefront/internal/platform/idempotency"
)

const (
	cashPaymentReference   = "cash_on_delivery"
	defaultDispatchTimeout = 30 * time.Second
)

var (
	errDispatcherOrdersRequired = errors.New("payment dispatcher: order recorder is required")

	// ErrDispatchInFlight indicates another dispatch for the same attempt is still running.
	ErrDispatchInFlight = errors.New("payment dispatcher: dispatch already in flight")
)

// Customer-facing failure reasons.
const (
	reasonOrderUnavailable  = "We could not complete your order right now. Please try again."
	reasonWalletUnavailable = "The mobile wallet service is unavailable. Please try again or choose another payment method."
	reasonWalletDeclined    = "Your mobile wallet declined the payment. Please choose another payment method."
)

// PaymentDispatcherDeps wires the dispatch collaborators.
type PaymentDispatcherDeps struct {
	Orders OrderRecorder
	Carts  CartStore
	// Wallet is optional; without it mobile-wallet dispatches fail as unavailable.
	Wallet payments.WalletInitiator
	// Memo replays wallet initiation outcomes per attempt id. Defaults to an in-memory store.
	Memo    idempotency.Store
	MemoTTL time.Duration
	// InFlightTimeout is how long an unresolved reservation blocks a retry of the same attempt.
	InFlightTimeout time.Duration
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
}

type paymentDispatcher struct {
	orders   OrderRecorder
	carts    CartStore
	wallet   payments.WalletInitiator
	memo     idempotency.Store
	memoTTL  time.Duration
	inFlight time.Duration
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)

	encodeMemo func(walletMemo) ([]byte, error)
}

type walletMemo struct {
	RedirectURL   string `json:"redirectUrl"`
	TransactionID string `json:"transactionId,omitempty"`
}

// NewPaymentDispatcher constructs the dispatcher.
func NewPaymentDispatcher(deps PaymentDispatcherDeps) (PaymentDispatcher, error) {
	if deps.Orders == nil {
		return nil, errDispatcherOrdersRequired
	}
	memo := deps.Memo
	if memo == nil {
		memo = idempotency.NewMemoryStore()
	}
	ttl := deps.MemoTTL
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	inFlight := deps.InFlightTimeout
	if inFlight <= 0 {
		inFlight = defaultDispatchTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentDispatcher{
		orders:   deps.Orders,
		carts:    deps.Carts,
		wallet:   deps.Wallet,
		memo:     memo,
		memoTTL:  ttl,
		inFlight: inFlight,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,

		encodeMemo: func(memo walletMemo) ([]byte, error) { return json.Marshal(memo) },
	}, nil
}

// Dispatch routes the intent to its completion path. Recoverable payment problems are reported
// as a Failure result with a nil error; errors are reserved for integrity violations, discount
// rejections discovered while recording, and ErrDispatchInFlight.
func (d *paymentDispatcher) Dispatch(ctx context.Context, cmd DispatchCommand) (DispatchResult, error) {
	if strings.TrimSpace(cmd.SessionID) == "" || strings.TrimSpace(cmd.AttemptID) == "" {
		return DispatchResult{}, integrityViolation("dispatch requires session and attempt ids")
	}
	if cmd.Draft.Payment == nil {
		return DispatchResult{}, integrityViolation("dispatch requires a payment intent")
	}
	if cmd.Draft.Address == nil {
		return DispatchResult{}, integrityViolation("dispatch requires a shipping address")
	}

	ctx, span := tracer.Start(ctx, "payments.dispatch")
	defer span.End()
	kind := cmd.Draft.Payment.Kind
	span.SetAttributes(
		attribute.String("checkout.attempt_id", cmd.AttemptID),
		attribute.String("payments.method", string(kind)),
	)

	var (
		result DispatchResult
		err    error
	)
	switch kind {
	case domain.PaymentMethodCard:
		if strings.TrimSpace(cmd.Draft.Payment.CardToken) == "" {
			return DispatchResult{}, integrityViolation("card dispatch requires a token")
		}
		result, err = d.finalizeLocally(ctx, cmd, cmd.Draft.Payment.CardToken)
	case domain.PaymentMethodCashOnDelivery:
		result, err = d.finalizeLocally(ctx, cmd, cashPaymentReference)
	case domain.PaymentMethodMobileWallet:
		result, err = d.initiateWallet(ctx, cmd)
	default:
		return DispatchResult{}, integrityViolation("unknown payment method %q", kind)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch")
		return DispatchResult{}, err
	}
	span.SetAttributes(attribute.String("payments.outcome", string(result.Outcome)))
	if result.Outcome == DispatchFailure {
		d.logger(ctx, "checkout.dispatch_failed", map[string]any{
			"sessionId": cmd.SessionID,
			"attemptId": cmd.AttemptID,
			"method":    string(kind),
			"reason":    result.Reason,
		})
	}
	return result, nil
}

func (d *paymentDispatcher) finalizeLocally(ctx context.Context, cmd DispatchCommand, reference string) (DispatchResult, error) {
	order, err := d.orders.Record(ctx, RecordOrderCommand{
		SessionID:        cmd.SessionID,
		AttemptID:        cmd.AttemptID,
		Draft:            cmd.Draft,
		Pricing:          cmd.Pricing,
		PaymentReference: reference,
	})
	if err != nil {
		if errors.Is(err, ErrDiscountRejected) || errors.Is(err, ErrIntegrityViolation) {
			return DispatchResult{}, err
		}
		if errors.Is(err, context.Canceled) {
			return DispatchResult{}, err
		}
		return DispatchResult{Outcome: DispatchFailure, Reason: reasonOrderUnavailable, Retryable: true}, nil
	}

	if d.carts != nil {
		if err := d.carts.Clear(ctx, cmd.SessionID); err != nil {
			d.logger(ctx, "checkout.cart_clear_failed", map[string]any{
				"sessionId": cmd.SessionID,
				"orderId":   order.ID,
				"error":     err.Error(),
			})
		}
	}
	return DispatchResult{Outcome: DispatchSuccess, Order: &order}, nil
}

// initiateWallet calls the collaborator at most once per attempt id; a replay returns the
// memoised redirect.
func (d *paymentDispatcher) initiateWallet(ctx context.Context, cmd DispatchCommand) (DispatchResult, error) {
	if d.wallet == nil {
		return DispatchResult{Outcome: DispatchFailure, Reason: reasonWalletUnavailable}, nil
	}

	amount := domain.FormatMoney(cmd.Pricing.Total)
	provider := cmd.Draft.Payment.WalletProvider
	fingerprint := idempotency.Fingerprint(cmd.SessionID, string(domain.PaymentMethodMobileWallet), provider, amount)
	now := d.now()

	reservation, err := d.memo.Reserve(ctx, cmd.AttemptID, fingerprint, now, d.memoTTL)
	if err != nil {
		if errors.Is(err, idempotency.ErrFingerprintMismatch) {
			return DispatchResult{}, integrityViolation("attempt %s reused for a different payment", cmd.AttemptID)
		}
		return DispatchResult{Outcome: DispatchFailure, Reason: reasonWalletUnavailable, Retryable: true}, nil
	}
	switch reservation.State {
	case idempotency.ReservationStateCompleted:
		var memo walletMemo
		if err := json.Unmarshal(reservation.Record.Payload, &memo); err == nil && memo.RedirectURL != "" {
			return DispatchResult{Outcome: DispatchPending, RedirectURL: memo.RedirectURL, TransactionID: memo.TransactionID}, nil
		}
	case idempotency.ReservationStatePending:
		if now.Sub(reservation.Record.UpdatedAt) < d.inFlight {
			return DispatchResult{}, ErrDispatchInFlight
		}
		// The earlier call never reported back; the collaborator deduplicates on the attempt id.
	}

	resp, err := d.wallet.Initiate(ctx, payments.WalletRequest{
		OrderID:        cmd.AttemptID,
		PaymentMethod:  string(domain.PaymentMethodMobileWallet),
		Provider:       provider,
		Amount:         amount,
		IdempotencyKey: cmd.AttemptID,
	})
	if err != nil {
		if releaseErr := d.memo.Release(ctx, cmd.AttemptID, fingerprint); releaseErr != nil {
			d.logger(ctx, "checkout.memo_release_failed", map[string]any{"attemptId": cmd.AttemptID, "error": releaseErr.Error()})
		}
		return walletFailure(err), nil
	}

	pending := DispatchResult{Outcome: DispatchPending, RedirectURL: resp.PaymentURL, TransactionID: resp.TransactionID}
	payload, err := d.encodeMemo(walletMemo{RedirectURL: resp.PaymentURL, TransactionID: resp.TransactionID})
	if err != nil {
		// The reservation stays pending; a later replay re-asks the collaborator under the same key.
		d.logger(ctx, "checkout.memo_encode_failed", map[string]any{"attemptId": cmd.AttemptID, "error": err.Error()})
		return pending, nil
	}
	if err := d.memo.Complete(ctx, cmd.AttemptID, fingerprint, payload, d.now(), d.memoTTL); err != nil {
		d.logger(ctx, "checkout.memo_store_failed", map[string]any{"attemptId": cmd.AttemptID, "error": err.Error()})
	}
	return pending, nil
}

func walletFailure(err error) DispatchResult {
	switch {
	case errors.Is(err, payments.ErrWalletRejected):
		return DispatchResult{Outcome: DispatchFailure, Reason: reasonWalletDeclined}
	default:
		return DispatchResult{
			Outcome:   DispatchFailure,
			Reason:    reasonWalletUnavailable,
			Retryable: true,
		}
	}
}

// String renders a result for logs.
func (r DispatchResult) String() string {
	switch r.Outcome {
	case DispatchSuccess:
		if r.Order != nil {
			return fmt.Sprintf("success(%s)", r.Order.ID)
		}
		return "success"
	case DispatchPending:
		return "pending(" + r.RedirectURL + ")"
	default:
		return "failure(" + r.Reason + ")"
	}
}
