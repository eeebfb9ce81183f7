package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/maison-luxe/storefront/internal/platform/httpx"
	"github.com/maison-luxe/storefront/internal/platform/requestctx"
	"github.com/maison-luxe/storefront/internal/services"
)

// ReceiptLinker hands out short-lived links to archived receipts.
type ReceiptLinker interface {
	ReceiptURL(ctx context.Context, order services.Order) (string, time.Time, error)
}

// OrderHandlers serve completed orders to the session that placed them.
type OrderHandlers struct {
	orders   services.OrderRecorder
	receipts ReceiptLinker
}

// OrderHandlersOption customises order handlers.
type OrderHandlersOption func(*OrderHandlers)

// WithReceiptLinker enables the receipt endpoint.
func WithReceiptLinker(linker ReceiptLinker) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.receipts = linker
	}
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(orders services.OrderRecorder, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{orderId}", h.getOrder)
	r.Get("/{orderId}/receipt", h.getReceipt)
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type receiptResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.receipts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("receipt_unavailable", "receipts are not archived", http.StatusNotFound))
		return
	}
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}

	url, expires, err := h.receipts.ReceiptURL(ctx, order)
	if err != nil {
		requestctx.Logger(ctx).Warn("receipt link failed", zap.String("order_id", order.ID), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("receipt_unavailable", "receipt link could not be created", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, receiptResponse{URL: url, ExpiresAt: formatTime(expires)})
}

func (h *OrderHandlers) loadOrder(w http.ResponseWriter, r *http.Request) (services.Order, bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return services.Order{}, false
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return services.Order{}, false
	}
	order, err := h.orders.GetOrder(ctx, sessionID, strings.TrimSpace(chi.URLParam(r, "orderId")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return services.Order{}, false
	}
	return order, true
}
