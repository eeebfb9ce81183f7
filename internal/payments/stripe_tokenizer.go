package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentMethodAPI interface {
	New(params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
}

// StripeTokenizerConfig configures the StripeTokenizer.
type StripeTokenizerConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger

	paymentMethods stripePaymentMethodAPI
}

// StripeTokenizer creates Stripe PaymentMethods from raw card input.
type StripeTokenizer struct {
	api     stripePaymentMethodAPI
	account string
	logger  StripeLogger
}

var _ CardTokenizer = (*StripeTokenizer)(nil)

// NewStripeTokenizer constructs a tokenizer backed by the Stripe PaymentMethods API.
func NewStripeTokenizer(cfg StripeTokenizerConfig) (*StripeTokenizer, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	api := cfg.paymentMethods
	if api == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		api = client.New(apiKey, cfg.Backends).PaymentMethods
	}
	if api == nil {
		return nil, errors.New("stripe: payment methods client is nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeTokenizer{
		api:     api,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

// Tokenize sends the card to Stripe and returns the PaymentMethod id with its brand and last four.
func (t *StripeTokenizer) Tokenize(ctx context.Context, card CardInput) (CardToken, error) {
	if t == nil {
		return CardToken{}, errors.New("stripe: tokenizer is nil")
	}

	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(onlyDigits(card.Number)),
			ExpMonth: stripe.Int64(int64(card.ExpMonth)),
			ExpYear:  stripe.Int64(int64(card.ExpYear)),
			CVC:      stripe.String(strings.TrimSpace(card.CVC)),
		},
	}
	if name := strings.TrimSpace(card.Name); name != "" {
		params.BillingDetails = &stripe.PaymentMethodBillingDetailsParams{Name: stripe.String(name)}
	}
	params.Context = ctx
	if t.account != "" {
		params.SetStripeAccount(t.account)
	}

	pm, err := t.api.New(params)
	if err != nil {
		return CardToken{}, mapStripeError(err)
	}
	if pm == nil || strings.TrimSpace(pm.ID) == "" {
		return CardToken{}, fmt.Errorf("%w: empty payment method", ErrTokenizerUnavailable)
	}

	token := CardToken{Token: strings.TrimSpace(pm.ID), Brand: DetectBrand(card.Number), Last4: Last4(card.Number)}
	if pm.Card != nil {
		if brand := strings.ToLower(strings.TrimSpace(string(pm.Card.Brand))); brand != "" {
			token.Brand = brand
		}
		if last4 := strings.TrimSpace(pm.Card.Last4); last4 != "" {
			token.Last4 = last4
		}
	}

	t.logger(ctx, "payments.stripe.payment_method.created", map[string]any{
		"paymentMethod": token.Token,
		"brand":         token.Brand,
	})
	return token, nil
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return fmt.Errorf("%w: %s", ErrCardDeclined, stripeErr.Msg)
	}
	return fmt.Errorf("%w: %v", ErrTokenizerUnavailable, err)
}
