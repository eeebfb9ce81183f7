package services

import (
	"errors"
	"testing"
	"time"

	domain "github.com/maison-luxe/storefront/internal/domain"
)

func validAddress() ShippingAddress {
	return ShippingAddress{
		RecipientName: " Hana Sato ",
		Street:        "1-2-3 Ginza",
		City:          "Chuo-ku",
		Region:        "Tokyo",
		PostalCode:    "104-0061",
		Country:       "jp",
		Phone:         "+81 3-1234-5678",
	}
}

func TestNormalizeShippingAddress(t *testing.T) {
	addr, err := normalizeShippingAddress(validAddress())
	if err != nil {
		t.Fatalf("normalizeShippingAddress: %v", err)
	}
	if addr.RecipientName != "Hana Sato" {
		t.Fatalf("expected trimmed name, got %q", addr.RecipientName)
	}
	if addr.Country != "JP" {
		t.Fatalf("expected canonical country JP, got %q", addr.Country)
	}
}

func TestNormalizeShippingAddress_ReportsEveryField(t *testing.T) {
	_, err := normalizeShippingAddress(ShippingAddress{PostalCode: "!!", Country: "Atlantis", Phone: "call me"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := vErr.FieldMap()
	for _, name := range []string{"recipientName", "street", "city", "region", "postalCode", "country", "phone"} {
		if _, ok := fields[name]; !ok {
			t.Fatalf("expected %s to be reported, got %v", name, fields)
		}
	}
}

func TestNormalizeShippingAddress_PhoneOptional(t *testing.T) {
	addr := validAddress()
	addr.Phone = ""
	if _, err := normalizeShippingAddress(addr); err != nil {
		t.Fatalf("expected phone to be optional, got %v", err)
	}
}

func TestNormalizeCard(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	card, err := normalizeCard(&domain.CardDetails{Number: "4242 4242 4242 4242", Expiry: "03/26", CVC: "123", Name: "Hana Sato"}, now)
	if err != nil {
		t.Fatalf("normalizeCard: %v", err)
	}
	if card.Number != "4242424242424242" || card.ExpMonth != 3 || card.ExpYear != 2026 {
		t.Fatalf("unexpected card input %+v", card)
	}

	cases := map[string]domain.CardDetails{
		"card.number": {Number: "4242 4242 4242 4241", Expiry: "12/30", CVC: "123", Name: "x"},
		"card.expiry": {Number: "4242424242424242", Expiry: "02/26", CVC: "123", Name: "x"},
		"card.cvc":    {Number: "4242424242424242", Expiry: "12/30", CVC: "12a", Name: "x"},
		"card.name":   {Number: "4242424242424242", Expiry: "12/30", CVC: "1234", Name: " "},
	}
	for field, details := range cases {
		details := details
		_, err := normalizeCard(&details, now)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("%s: expected validation error, got %v", field, err)
		}
		if _, ok := vErr.FieldMap()[field]; !ok {
			t.Fatalf("%s: expected field error, got %v", field, vErr.FieldMap())
		}
	}
}

func TestNormalizeCard_RejectsShortAndMalformedNumbers(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, number := range []string{"42424242", "4242-4242-abcd-4242", "", "42424242424242424242"} {
		_, err := normalizeCard(&domain.CardDetails{Number: number, Expiry: "12/30", CVC: "123", Name: "x"}, now)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected %q to be rejected, got %v", number, err)
		}
	}
	if _, err := normalizeCard(nil, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected nil card to be rejected, got %v", err)
	}
}

func TestParseExpiry(t *testing.T) {
	cases := []struct {
		in    string
		month int
		year  int
		ok    bool
	}{
		{"03/26", 3, 2026, true},
		{"3/2027", 3, 2027, true},
		{"12 / 29", 12, 2029, true},
		{"13/26", 0, 0, false},
		{"0326", 0, 0, false},
	}
	for _, tc := range cases {
		month, year, err := parseExpiry(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("%q: expected ok=%v, got %v", tc.in, tc.ok, err)
		}
		if tc.ok && (month != tc.month || year != tc.year) {
			t.Fatalf("%q: expected %d/%d, got %d/%d", tc.in, tc.month, tc.year, month, year)
		}
	}
}
