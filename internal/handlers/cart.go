package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/platform/httpx"
	"github.com/maison-luxe/storefront/internal/services"
)

const maxCartBodySize = 8 * 1024

// CartHandlers exposes the session cart.
type CartHandlers struct {
	carts  services.CartStore
	pricer services.Pricer
}

// NewCartHandlers constructs cart handlers. The pricer is optional and only feeds the
// estimate shown next to the cart.
func NewCartHandlers(carts services.CartStore, pricer services.Pricer) *CartHandlers {
	return &CartHandlers{carts: carts, pricer: pricer}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemId}", h.updateQuantity)
	r.Delete("/items/{itemId}", h.removeItem)
}

type cartResponse struct {
	Items     []cartItemPayload `json:"items"`
	ItemCount int               `json:"itemCount"`
	Subtotal  string            `json:"subtotal"`
	Estimate  *pricingPayload   `json:"estimate,omitempty"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

type addCartItemRequest struct {
	ProductID    string `json:"productId"`
	VariantLabel string `json:"variantLabel"`
	DisplayName  string `json:"displayName"`
	UnitPrice    string `json:"unitPrice"`
	Quantity     int    `json:"quantity"`
}

type updateQuantityRequest struct {
	Delta *int `json:"delta"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.Cart(ctx, sessionID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildCartResponse(cart))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	price, err := domain.ParseMoney(strings.TrimSpace(req.UnitPrice))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unitPrice must be a decimal amount", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		SessionID:    sessionID,
		ProductID:    req.ProductID,
		VariantLabel: req.VariantLabel,
		DisplayName:  req.DisplayName,
		UnitPrice:    price,
		Quantity:     req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, h.buildCartResponse(cart))
}

func (h *CartHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Delta == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delta is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, services.UpdateCartQuantityCommand{
		SessionID: sessionID,
		ItemID:    strings.TrimSpace(chi.URLParam(r, "itemId")),
		Delta:     *req.Delta,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildCartResponse(cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(ctx, sessionID, strings.TrimSpace(chi.URLParam(r, "itemId")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildCartResponse(cart))
}

func (h *CartHandlers) buildCartResponse(cart services.Cart) cartResponse {
	resp := cartResponse{
		Items:     buildItemsPayload(cart.Items),
		ItemCount: cart.ItemCount(),
		Subtotal:  formatMoney(cart.Subtotal()),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
	if h.pricer != nil && !cart.IsEmpty() {
		estimate := buildPricingPayload(h.pricer.Price(services.PriceCommand{Items: cart.Items}))
		resp.Estimate = &estimate
	}
	return resp
}
