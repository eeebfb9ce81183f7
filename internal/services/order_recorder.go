package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/repositories"
)

var tracer = otel.Tracer("github.com/maison-luxe/storefront/internal/services")

var (
	errOrderRecorderOrdersRequired    = errors.New("order recorder: order repository is required")
	errOrderRecorderDiscountsRequired = errors.New("order recorder: discount repository is required")
	errOrderRecorderUnitOfWork        = errors.New("order recorder: unit of work is required")
	errOrderAlreadyRecorded           = errors.New("order recorder: attempt already recorded")

	// ErrOrderNotFound indicates the order does not exist or belongs to another session.
	ErrOrderNotFound = errors.New("order recorder: order not found")
	// ErrOrderUnavailable indicates the order store failed.
	ErrOrderUnavailable = errors.New("order recorder: unavailable")
)

// OrderRecorderDeps wires persistence and post-commit collaborators.
type OrderRecorderDeps struct {
	UnitOfWork  repositories.UnitOfWork
	Orders      repositories.OrderRepository
	Discounts   repositories.DiscountRepository
	Publisher   OrderEventPublisher
	Archiver    ReceiptArchiver
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type orderRecorder struct {
	uow       repositories.UnitOfWork
	orders    repositories.OrderRepository
	discounts repositories.DiscountRepository
	publisher OrderEventPublisher
	archiver  ReceiptArchiver
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewOrderRecorder constructs the order recorder.
func NewOrderRecorder(deps OrderRecorderDeps) (OrderRecorder, error) {
	if deps.Orders == nil {
		return nil, errOrderRecorderOrdersRequired
	}
	if deps.Discounts == nil {
		return nil, errOrderRecorderDiscountsRequired
	}
	if deps.UnitOfWork == nil {
		return nil, errOrderRecorderUnitOfWork
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
	return &orderRecorder{
		uow:       deps.UnitOfWork,
		orders:    deps.Orders,
		discounts: deps.Discounts,
		publisher: deps.Publisher,
		archiver:  deps.Archiver,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// Record freezes the draft into an order. The attempt id is the idempotency key: a second call
// for the same attempt returns the first order without touching discount usage again.
func (r *orderRecorder) Record(ctx context.Context, cmd RecordOrderCommand) (Order, error) {
	if err := validateRecordCommand(cmd); err != nil {
		return Order{}, err
	}

	ctx, span := tracer.Start(ctx, "orders.record")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.attempt_id", cmd.AttemptID))

	if existing, found, err := r.findByAttempt(ctx, cmd.AttemptID); err != nil {
		span.RecordError(err)
		return Order{}, err
	} else if found {
		span.SetAttributes(attribute.Bool("orders.replayed", true))
		return existing, nil
	}

	order := r.buildOrder(cmd)
	err := r.uow.RunInTx(ctx, func(txCtx context.Context) error {
		if code := cmd.Pricing.DiscountCode; code != "" {
			if _, err := r.discounts.IncrementUsage(txCtx, code); err != nil {
				return translateUsageError(code, err)
			}
		}
		if err := r.orders.Insert(txCtx, order); err != nil {
			if repositories.IsConflict(err) {
				return errOrderAlreadyRecorded
			}
			return err
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errOrderAlreadyRecorded), repositories.IsConflict(err):
		// Stores that only detect duplicates at commit report a plain conflict.
		existing, found, findErr := r.findByAttempt(ctx, cmd.AttemptID)
		if findErr != nil {
			return Order{}, findErr
		}
		if !found {
			return Order{}, fmt.Errorf("%w: attempt %s conflicted but no order exists", ErrOrderUnavailable, cmd.AttemptID)
		}
		return existing, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "record order")
		var rejected *DiscountRejectedError
		if errors.As(err, &rejected) {
			return Order{}, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Order{}, err
		}
		return Order{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}

	span.SetAttributes(attribute.String("orders.id", order.ID))
	r.logger(ctx, "orders.recorded", map[string]any{
		"orderId":   order.ID,
		"sessionId": order.SessionID,
		"attemptId": order.AttemptID,
		"total":     domain.FormatMoney(order.Total),
		"method":    string(order.PaymentMethodKind),
	})
	r.afterCommit(ctx, order)
	return order.Clone(), nil
}

// GetOrder returns an order only to the session that placed it.
func (r *orderRecorder) GetOrder(ctx context.Context, sessionID, orderID string) (Order, error) {
	sessionID = strings.TrimSpace(sessionID)
	orderID = strings.TrimSpace(orderID)
	if sessionID == "" || orderID == "" {
		return Order{}, ErrOrderNotFound
	}
	order, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
	if order.SessionID != sessionID {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (r *orderRecorder) findByAttempt(ctx context.Context, attemptID string) (Order, bool, error) {
	order, err := r.orders.FindByAttempt(ctx, attemptID)
	if err == nil {
		return order, true, nil
	}
	if repositories.IsNotFound(err) {
		return Order{}, false, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Order{}, false, err
	}
	return Order{}, false, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func (r *orderRecorder) buildOrder(cmd RecordOrderCommand) Order {
	draft := cmd.Draft.Clone()
	return Order{
		ID:                r.newID(),
		SessionID:         cmd.SessionID,
		AttemptID:         cmd.AttemptID,
		Items:             draft.Items,
		Subtotal:          domain.RoundMoney(cmd.Pricing.Subtotal),
		ShippingCost:      domain.RoundMoney(cmd.Pricing.ShippingCost),
		Tax:               domain.RoundMoney(cmd.Pricing.Tax),
		DiscountAmount:    domain.RoundMoney(cmd.Pricing.DiscountAmount),
		Total:             domain.RoundMoney(cmd.Pricing.Total),
		DiscountCode:      cmd.Pricing.DiscountCode,
		Address:           *draft.Address,
		PaymentMethodKind: draft.Payment.Kind,
		PaymentReference:  cmd.PaymentReference,
		CreatedAt:         r.now(),
	}
}

// afterCommit runs best-effort side effects. Failures never undo the order.
func (r *orderRecorder) afterCommit(ctx context.Context, order Order) {
	if r.publisher != nil {
		event := OrderCompletedEvent{
			EventType:         OrderCompletedEventType,
			OrderID:           order.ID,
			SessionID:         order.SessionID,
			AttemptID:         order.AttemptID,
			Total:             domain.FormatMoney(order.Total),
			DiscountCode:      order.DiscountCode,
			PaymentMethodKind: string(order.PaymentMethodKind),
			ItemCount:         len(order.Items),
			CreatedAt:         order.CreatedAt,
		}
		if _, err := r.publisher.PublishOrderCompleted(ctx, event); err != nil {
			r.logger(ctx, "orders.publish_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		}
	}
	if r.archiver != nil {
		if _, err := r.archiver.ArchiveReceipt(ctx, order); err != nil {
			r.logger(ctx, "orders.archive_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		}
	}
}

func validateRecordCommand(cmd RecordOrderCommand) error {
	switch {
	case strings.TrimSpace(cmd.SessionID) == "":
		return integrityViolation("order requires a session id")
	case strings.TrimSpace(cmd.AttemptID) == "":
		return integrityViolation("order requires an attempt id")
	case len(cmd.Draft.Items) == 0:
		return integrityViolation("order requires at least one item")
	case cmd.Draft.Address == nil:
		return integrityViolation("order requires a shipping address")
	case cmd.Draft.Payment == nil:
		return integrityViolation("order requires a payment intent")
	}
	return nil
}

func translateUsageError(code string, err error) error {
	var usageErr *repositories.DiscountUsageError
	if errors.As(err, &usageErr) {
		reason := domain.DiscountRejectedUsageExceeded
		if usageErr.Code == repositories.DiscountUsageUnknownCode {
			reason = domain.DiscountRejectedNotFound
		}
		return &DiscountRejectedError{Code: code, Reason: reason}
	}
	return err
}
