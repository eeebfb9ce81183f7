package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/platform/httpx"
	"github.com/maison-luxe/storefront/internal/platform/requestctx"
	"github.com/maison-luxe/storefront/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers drive the checkout state machine for the current session.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.begin)
	r.Get("/", h.getSession)
	r.Delete("/", h.cancel)
	r.Post("/proceed", h.proceed)
	r.Post("/shipping", h.submitShipping)
	r.Post("/discount", h.applyDiscount)
	r.Delete("/discount", h.removeDiscount)
	r.Post("/payment", h.submitPayment)
	r.Post("/back", h.goBack)
	r.Get("/summary", h.summary)
}

type checkoutResponse struct {
	Step        string            `json:"step"`
	Items       []cartItemPayload `json:"items"`
	Address     *addressPayload   `json:"shippingAddress,omitempty"`
	Payment     *paymentPayload   `json:"payment,omitempty"`
	Discount    *discountPayload  `json:"discount,omitempty"`
	Pricing     pricingPayload    `json:"pricing"`
	Attempt     string            `json:"attempt,omitempty"`
	RedirectURL string            `json:"redirectUrl,omitempty"`
	LastFailure string            `json:"lastFailure,omitempty"`
	OrderID     string            `json:"orderId,omitempty"`
	Order       *orderPayload     `json:"order,omitempty"`
	UpdatedAt   string            `json:"updatedAt,omitempty"`
}

type paymentPayload struct {
	Method         string `json:"method"`
	CardBrand      string `json:"cardBrand,omitempty"`
	CardLast4      string `json:"cardLast4,omitempty"`
	CardholderName string `json:"cardholderName,omitempty"`
	WalletProvider string `json:"walletProvider,omitempty"`
}

type paymentResponse struct {
	Outcome       string           `json:"outcome"`
	RedirectURL   string           `json:"redirectUrl,omitempty"`
	TransactionID string           `json:"transactionId,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Retryable     bool             `json:"retryable,omitempty"`
	Checkout      checkoutResponse `json:"checkout"`
}

type shippingRequest struct {
	Address addressPayload `json:"address"`
}

type discountRequest struct {
	Code string `json:"code"`
}

type cardRequest struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVC    string `json:"cvc"`
	Name   string `json:"name"`
}

type paymentRequest struct {
	Method         string       `json:"method"`
	Card           *cardRequest `json:"card"`
	WalletProvider string       `json:"walletProvider"`
}

type backRequest struct {
	Step string `json:"step"`
}

func (h *CheckoutHandlers) begin(w http.ResponseWriter, r *http.Request) {
	h.respondWithView(w, r, http.StatusOK, func(sessionID string) (services.CheckoutView, error) {
		return h.checkout.Begin(r.Context(), sessionID)
	})
}

func (h *CheckoutHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	h.respondWithView(w, r, http.StatusOK, func(sessionID string) (services.CheckoutView, error) {
		return h.checkout.Session(r.Context(), sessionID)
	})
}

func (h *CheckoutHandlers) proceed(w http.ResponseWriter, r *http.Request) {
	h.respondWithView(w, r, http.StatusOK, func(sessionID string) (services.CheckoutView, error) {
		return h.checkout.ProceedToShipping(r.Context(), sessionID)
	})
}

func (h *CheckoutHandlers) submitShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	h.respondWithBody(w, r, &req, func(sessionID string) (services.CheckoutView, error) {
		return h.checkout.SubmitShipping(r.Context(), services.SubmitShippingCommand{
			SessionID: sessionID,
			Address:   req.Address.toAddress(),
		})
	})
}

func (h *CheckoutHandlers) applyDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	h.respondWithBody(w, r, &req, func(sessionID string) (services.CheckoutView, error) {
		return h.checkout.ApplyDiscount(r.Context(), sessionID, req.Code)
	})
}

func (h *CheckoutHandlers) removeDiscount(w http.ResponseWriter, r *http.Request) {
	h.respondWithView(w, r, http.StatusOK, func(sessionID string) (services.CheckoutView, error) {
		return h.checkout.RemoveDiscount(r.Context(), sessionID)
	})
}

func (h *CheckoutHandlers) goBack(w http.ResponseWriter, r *http.Request) {
	var req backRequest
	h.respondWithBody(w, r, &req, func(sessionID string) (services.CheckoutView, error) {
		step := domain.CheckoutStep(strings.ToLower(strings.TrimSpace(req.Step)))
		return h.checkout.GoBack(r.Context(), sessionID, step)
	})
}

func (h *CheckoutHandlers) submitPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	selection := services.PaymentSelection{
		Kind:           domain.PaymentMethodKind(strings.ToLower(strings.TrimSpace(req.Method))),
		WalletProvider: req.WalletProvider,
	}
	if req.Card != nil {
		selection.Card = &domain.CardDetails{
			Number: req.Card.Number,
			Expiry: req.Card.Expiry,
			CVC:    req.Card.CVC,
			Name:   req.Card.Name,
		}
	}

	outcome, err := h.checkout.SubmitPayment(ctx, services.SubmitPaymentCommand{
		SessionID: sessionID,
		Selection: selection,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	noteCheckout(ctx, outcome.View)
	requestctx.Annotate(ctx, "payment_method", string(selection.Kind))
	requestctx.Annotate(ctx, "payment_outcome", string(outcome.Result.Outcome))

	status := http.StatusOK
	switch outcome.Result.Outcome {
	case services.DispatchPending:
		status = http.StatusAccepted
	case services.DispatchFailure:
		status = http.StatusPaymentRequired
	}
	writeJSONResponse(w, status, paymentResponse{
		Outcome:       string(outcome.Result.Outcome),
		RedirectURL:   outcome.Result.RedirectURL,
		TransactionID: outcome.Result.TransactionID,
		Reason:        outcome.Result.Reason,
		Retryable:     outcome.Result.Retryable,
		Checkout:      buildCheckoutResponse(outcome.View),
	})
}

func (h *CheckoutHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	pricing, err := h.checkout.Summary(ctx, sessionID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPricingPayload(pricing))
}

func (h *CheckoutHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	if err := h.checkout.Cancel(ctx, sessionID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckoutHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.checkout == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *CheckoutHandlers) respondWithView(w http.ResponseWriter, r *http.Request, status int, call func(sessionID string) (services.CheckoutView, error)) {
	if !h.available(w, r) {
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	view, err := call(sessionID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	noteCheckout(r.Context(), view)
	writeJSONResponse(w, status, buildCheckoutResponse(view))
}

// respondWithBody decodes the request into dst before running call.
func (h *CheckoutHandlers) respondWithBody(w http.ResponseWriter, r *http.Request, dst any, call func(sessionID string) (services.CheckoutView, error)) {
	if !h.available(w, r) {
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, dst) {
		return
	}
	view, err := call(sessionID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	noteCheckout(r.Context(), view)
	writeJSONResponse(w, http.StatusOK, buildCheckoutResponse(view))
}

func buildCheckoutResponse(view services.CheckoutView) checkoutResponse {
	session := view.Session
	resp := checkoutResponse{
		Step:        string(session.Step),
		Items:       buildItemsPayload(session.Draft.Items),
		Pricing:     buildPricingPayload(view.Pricing),
		Attempt:     string(session.Attempt),
		RedirectURL: session.RedirectURL,
		LastFailure: session.LastFailure,
		OrderID:     session.OrderID,
		UpdatedAt:   formatTime(session.UpdatedAt),
	}
	if resp.Step == "" {
		resp.Step = string(domain.CheckoutStepCart)
	}
	if session.Draft.Address != nil {
		address := buildAddressPayload(*session.Draft.Address)
		resp.Address = &address
	}
	if p := session.Draft.Payment; p != nil {
		resp.Payment = &paymentPayload{
			Method:         string(p.Kind),
			CardBrand:      p.CardBrand,
			CardLast4:      p.CardLast4,
			CardholderName: p.CardholderName,
			WalletProvider: p.WalletProvider,
		}
	}
	if d := session.Draft.Discount; d != nil {
		resp.Discount = &discountPayload{Code: d.Code, Kind: string(d.Kind), Value: d.Value.String()}
	}
	if view.Order != nil {
		order := buildOrderPayload(*view.Order)
		resp.Order = &order
	}
	return resp
}

// noteCheckout tags the request log with where the checkout ended up.
func noteCheckout(ctx context.Context, view services.CheckoutView) {
	requestctx.Annotate(ctx, "checkout_step", string(view.Session.Step))
	if view.Order != nil {
		requestctx.Annotate(ctx, "order_id", view.Order.ID)
	}
}
