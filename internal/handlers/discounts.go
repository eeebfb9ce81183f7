package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maison-luxe/storefront/internal/platform/httpx"
	"github.com/maison-luxe/storefront/internal/services"
)

// DiscountHandlers lists the codes a shopper can currently use.
type DiscountHandlers struct {
	discounts services.DiscountEngine
	clock     func() time.Time
}

// DiscountHandlersOption customises discount handlers.
type DiscountHandlersOption func(*DiscountHandlers)

// WithDiscountClock overrides the clock used to decide which codes are active.
func WithDiscountClock(clock func() time.Time) DiscountHandlersOption {
	return func(h *DiscountHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewDiscountHandlers constructs discount handlers.
func NewDiscountHandlers(discounts services.DiscountEngine, opts ...DiscountHandlersOption) *DiscountHandlers {
	h := &DiscountHandlers{discounts: discounts, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /discounts endpoints.
func (h *DiscountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listActive)
}

type discountPayload struct {
	Code        string `json:"code"`
	Kind        string `json:"kind"`
	Value       string `json:"value"`
	MinPurchase string `json:"minPurchase,omitempty"`
	ActiveUntil string `json:"activeUntil,omitempty"`
}

type discountListResponse struct {
	Items []discountPayload `json:"items"`
}

func (h *DiscountHandlers) listActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discounts_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	discounts, err := h.discounts.ListActive(ctx, h.clock().UTC())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := discountListResponse{Items: make([]discountPayload, 0, len(discounts))}
	for _, d := range discounts {
		entry := discountPayload{Code: d.Code, Kind: string(d.Kind), Value: d.Value.String()}
		if d.MinPurchase != nil {
			entry.MinPurchase = formatMoney(*d.MinPurchase)
		}
		if d.ActiveUntil != nil {
			entry.ActiveUntil = formatTime(*d.ActiveUntil)
		}
		resp.Items = append(resp.Items, entry)
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSONResponse(w, http.StatusOK, resp)
}
