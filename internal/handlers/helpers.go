package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/platform/httpx"
	"github.com/maison-luxe/storefront/internal/platform/requestctx"
	"github.com/maison-luxe/storefront/internal/services"
)

const defaultMaxBodySize = 16 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads a bounded body into dst, rejecting unknown fields. It writes the
// error response itself and reports whether the handler may continue.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		}
		return false
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatMoney(amount domain.Money) string {
	return domain.FormatMoney(amount)
}

// requireSession returns the storefront session bound by the session middleware.
func requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := requestctx.SessionID(r.Context())
	if sessionID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("session_required", "a storefront session is required", http.StatusBadRequest))
		return "", false
	}
	return sessionID, true
}

const (
	inFlightRetryAfter    = 2 * time.Second
	unavailableRetryAfter = 5 * time.Second
)

// writeServiceError maps service errors onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var (
		validation *services.ValidationError
		rejected   *services.DiscountRejectedError
		failure    *services.PaymentFailureError
	)
	switch {
	case errors.As(err, &validation):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "some fields are invalid", http.StatusUnprocessableEntity).
			WithFields(validation.FieldMap()))
	case errors.As(err, &rejected):
		httpx.WriteError(ctx, w, httpx.NewError("discount_rejected", rejected.Reason.Message(), http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"code": rejected.Code, "reason": string(rejected.Reason)}))
	case errors.As(err, &failure):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", failure.Reason, http.StatusPaymentRequired).
			WithDetails(map[string]any{"retryable": failure.Retryable}))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutNotStarted):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_not_started", "checkout has not been started", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "add an item to your cart before checking out", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutCompleted):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_completed", "this checkout is already complete", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentPending):
		httpx.WriteError(ctx, w, httpx.NewError("payment_pending", "a wallet payment is awaiting confirmation", http.StatusConflict))
	case errors.Is(err, services.ErrDispatchInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("payment_in_flight", "a payment is already being processed", http.StatusConflict).
			WithRetryAfter(inFlightRetryAfter))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrIntegrityViolation):
		requestctx.Logger(ctx).Error("checkout integrity violation", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("checkout_integrity_violation", "checkout is in an inconsistent state", http.StatusInternalServerError))
	case errors.Is(err, services.ErrCartUnavailable),
		errors.Is(err, services.ErrCheckoutUnavailable),
		errors.Is(err, services.ErrDiscountUnavailable),
		errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "the storefront is temporarily unavailable", http.StatusServiceUnavailable).
			WithRetryAfter(unavailableRetryAfter))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
