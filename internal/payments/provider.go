package payments

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrCardDeclined is returned when the tokenization boundary refuses the card.
	ErrCardDeclined = errors.New("payments: card declined")
	// ErrTokenizerUnavailable is returned when the tokenization boundary cannot be reached.
	ErrTokenizerUnavailable = errors.New("payments: tokenizer unavailable")

	// ErrWalletRejected is returned when the initiation collaborator answers success=false.
	ErrWalletRejected = errors.New("payments: wallet payment rejected")
	// ErrWalletMalformed is returned for undecodable bodies or a success without a payment URL.
	ErrWalletMalformed = errors.New("payments: malformed wallet response")
	// ErrWalletUnavailable covers network errors, non-2xx statuses and an open circuit.
	ErrWalletUnavailable = errors.New("payments: wallet initiation unavailable")
)

// CardInput is raw card data. It never leaves this package except towards the PSP.
type CardInput struct {
	Number   string
	ExpMonth int
	ExpYear  int
	CVC      string
	Name     string
}

// CardToken is the opaque reference that replaces raw card data after tokenization.
type CardToken struct {
	Token string
	Brand string
	Last4 string
}

// CardTokenizer exchanges raw card data for an opaque token.
type CardTokenizer interface {
	Tokenize(ctx context.Context, card CardInput) (CardToken, error)
}

// WalletRequest is the initiation payload. Amount is rendered as a JSON number.
type WalletRequest struct {
	OrderID        string
	PaymentMethod  string
	Provider       string
	Amount         string
	IdempotencyKey string
}

// WalletResponse mirrors the collaborator's body.
type WalletResponse struct {
	Success       bool   `json:"success"`
	PaymentURL    string `json:"paymentUrl,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// WalletInitiator starts a mobile-wallet payment and returns where to redirect the shopper.
type WalletInitiator interface {
	Initiate(ctx context.Context, req WalletRequest) (WalletResponse, error)
}

// DetectBrand returns a lowercase brand hint from the card number prefix, or "unknown".
func DetectBrand(number string) string {
	digits := onlyDigits(number)
	switch {
	case strings.HasPrefix(digits, "4"):
		return "visa"
	case hasPrefixRange(digits, 51, 55, 2), hasPrefixRange(digits, 2221, 2720, 4):
		return "mastercard"
	case strings.HasPrefix(digits, "34"), strings.HasPrefix(digits, "37"):
		return "amex"
	case strings.HasPrefix(digits, "6011"), strings.HasPrefix(digits, "65"):
		return "discover"
	case hasPrefixRange(digits, 3528, 3589, 4):
		return "jcb"
	default:
		return "unknown"
	}
}

// Last4 returns the final four digits of number.
func Last4(number string) string {
	digits := onlyDigits(number)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

func onlyDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasPrefixRange(digits string, low, high, width int) bool {
	if len(digits) < width {
		return false
	}
	prefix := 0
	for _, r := range digits[:width] {
		prefix = prefix*10 + int(r-'0')
	}
	return prefix >= low && prefix <= high
}
