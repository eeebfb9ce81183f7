package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"

	domain "github.com/maison-luxe/storefront/internal/domain"
	"github.com/maison-luxe/storefront/internal/payments"
)

const (
	maxAddressFieldLen = 200
	minCardDigits      = 12
	maxCardDigits      = 19
)

var (
	postalCodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{1,9}$`)
	phonePattern      = regexp.MustCompile(`^\+?[0-9 ()-]{7,20}$`)
	cvcPattern        = regexp.MustCompile(`^[0-9]{3,4}$`)
	expiryPattern     = regexp.MustCompile(`^(\d{1,2})\s*/\s*(\d{2}|\d{4})$`)
)

// normalizeShippingAddress trims every field and reports all invalid ones at once.
func normalizeShippingAddress(in ShippingAddress) (ShippingAddress, error) {
	addr := ShippingAddress{
		RecipientName: strings.TrimSpace(in.RecipientName),
		Street:        strings.TrimSpace(in.Street),
		City:          strings.TrimSpace(in.City),
		Region:        strings.TrimSpace(in.Region),
		PostalCode:    strings.TrimSpace(in.PostalCode),
		Country:       strings.TrimSpace(in.Country),
		Phone:         strings.TrimSpace(in.Phone),
	}

	var fields fieldErrors
	required := []struct {
		name  string
		value string
	}{
		{"recipientName", addr.RecipientName},
		{"street", addr.Street},
		{"city", addr.City},
		{"region", addr.Region},
		{"postalCode", addr.PostalCode},
		{"country", addr.Country},
	}
	for _, f := range required {
		switch {
		case f.value == "":
			fields.add(f.name, "is required")
		case utf8.RuneCountInString(f.value) > maxAddressFieldLen:
			fields.add(f.name, "is too long")
		}
	}

	if addr.PostalCode != "" && !postalCodePattern.MatchString(addr.PostalCode) {
		fields.add("postalCode", "is not a valid postal code")
	}
	if addr.Country != "" {
		region, err := language.ParseRegion(addr.Country)
		if err != nil || !region.IsCountry() {
			fields.add("country", "must be an ISO 3166 country code")
		} else {
			addr.Country = region.String()
		}
	}
	if addr.Phone != "" && !phonePattern.MatchString(addr.Phone) {
		fields.add("phone", "is not a valid phone number")
	}

	if err := fields.err(); err != nil {
		return ShippingAddress{}, err
	}
	return addr, nil
}

// normalizeCard checks format only: Luhn-valid 12 to 19 digits, an unexpired MM/YY date, a 3 or
// 4 digit CVC and a cardholder name.
func normalizeCard(card *domain.CardDetails, now time.Time) (payments.CardInput, error) {
	var fields fieldErrors
	if card == nil {
		fields.add("card", "is required")
		return payments.CardInput{}, fields.err()
	}

	number, ok := cardDigits(card.Number)
	switch {
	case !ok || number == "":
		fields.add("card.number", "must contain only digits")
	case len(number) < minCardDigits || len(number) > maxCardDigits:
		fields.add("card.number", "must be between 12 and 19 digits")
	case !luhnValid(number):
		fields.add("card.number", "is not a valid card number")
	}

	month, year, err := parseExpiry(card.Expiry)
	if err != nil {
		fields.add("card.expiry", "must be formatted as MM/YY")
	} else if expiryPassed(month, year, now) {
		fields.add("card.expiry", "has passed")
	}

	cvc := strings.TrimSpace(card.CVC)
	if !cvcPattern.MatchString(cvc) {
		fields.add("card.cvc", "must be 3 or 4 digits")
	}

	name := strings.TrimSpace(card.Name)
	if name == "" {
		fields.add("card.name", "is required")
	} else if utf8.RuneCountInString(name) > maxAddressFieldLen {
		fields.add("card.name", "is too long")
	}

	if err := fields.err(); err != nil {
		return payments.CardInput{}, err
	}
	return payments.CardInput{Number: number, ExpMonth: month, ExpYear: year, CVC: cvc, Name: name}, nil
}

// cardDigits strips spaces and dashes and reports whether anything else was present.
func cardDigits(value string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return "", false
		}
	}
	return b.String(), true
}

func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func parseExpiry(value string) (int, int, error) {
	m := expiryPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, 0, strconv.ErrSyntax
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return 0, 0, strconv.ErrRange
	}
	if len(m[2]) == 2 {
		year += 2000
	}
	return month, year, nil
}

// expiryPassed reports whether the card expired before now. Cards are valid through the last
// day of their expiry month.
func expiryPassed(month, year int, now time.Time) bool {
	firstOfNext := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return !now.UTC().Before(firstOfNext)
}
