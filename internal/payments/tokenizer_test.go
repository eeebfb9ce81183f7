package payments

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
)

type fakePaymentMethods struct {
	params *stripe.PaymentMethodParams
	pm     *stripe.PaymentMethod
	err    error
}

func (f *fakePaymentMethods) New(params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	f.params = params
	return f.pm, f.err
}

func TestStripeTokenizerTokenize(t *testing.T) {
	api := &fakePaymentMethods{pm: &stripe.PaymentMethod{
		ID:   "pm_123",
		Card: &stripe.PaymentMethodCard{Brand: stripe.PaymentMethodCardBrandVisa, Last4: "4242"},
	}}
	tokenizer, err := NewStripeTokenizer(StripeTokenizerConfig{paymentMethods: api, AccountID: "acct_1"})
	require.NoError(t, err)

	token, err := tokenizer.Tokenize(context.Background(), CardInput{
		Number: "4242 4242 4242 4242", ExpMonth: 12, ExpYear: 2030, CVC: "123", Name: "A. Shopper",
	})
	require.NoError(t, err)
	assert.Equal(t, CardToken{Token: "pm_123", Brand: "visa", Last4: "4242"}, token)

	require.NotNil(t, api.params.Card)
	assert.Equal(t, "4242424242424242", *api.params.Card.Number)
	assert.Equal(t, int64(2030), *api.params.Card.ExpYear)
	assert.Equal(t, "A. Shopper", *api.params.BillingDetails.Name)
	require.NotNil(t, api.params.StripeAccount)
	assert.Equal(t, "acct_1", *api.params.StripeAccount)
}

func TestStripeTokenizerMapsCardErrors(t *testing.T) {
	declined := &fakePaymentMethods{err: &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."}}
	tokenizer, err := NewStripeTokenizer(StripeTokenizerConfig{paymentMethods: declined})
	require.NoError(t, err)

	_, err = tokenizer.Tokenize(context.Background(), CardInput{Number: "4000000000000002"})
	assert.ErrorIs(t, err, ErrCardDeclined)

	down := &fakePaymentMethods{err: errors.New("dial tcp: timeout")}
	tokenizer, err = NewStripeTokenizer(StripeTokenizerConfig{paymentMethods: down})
	require.NoError(t, err)

	_, err = tokenizer.Tokenize(context.Background(), CardInput{Number: "4000000000000002"})
	assert.ErrorIs(t, err, ErrTokenizerUnavailable)
}

func TestNewStripeTokenizerRequiresKey(t *testing.T) {
	_, err := NewStripeTokenizer(StripeTokenizerConfig{})
	require.Error(t, err)
}

func TestLocalTokenizer(t *testing.T) {
	token, err := NewLocalTokenizer().Tokenize(context.Background(), CardInput{Number: "5555 5555 5555 4444"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token.Token, "tok_local_"))
	assert.Equal(t, "mastercard", token.Brand)
	assert.Equal(t, "4444", token.Last4)
	assert.NotContains(t, token.Token, "5555")
}

func TestDetectBrand(t *testing.T) {
	cases := map[string]string{
		"4111111111111111": "visa",
		"5105105105105100": "mastercard",
		"2221000000000009": "mastercard",
		"378282246310005":  "amex",
		"6011111111111117": "discover",
		"3530111333300000": "jcb",
		"9999999999999999": "unknown",
		"":                 "unknown",
	}
	for number, want := range cases {
		assert.Equal(t, want, DetectBrand(number), number)
	}
}
