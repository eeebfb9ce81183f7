package observability

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeString strips control characters and keeps at most limit runes, so request
// data cannot forge log lines.
func sanitizeString(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if limit > 0 && utf8.RuneCountInString(cleaned) > limit {
		cleaned = string([]rune(cleaned)[:limit])
	}
	return cleaned
}

// SanitizeRoute bounds a route pattern for span names and log fields.
func SanitizeRoute(route string) string {
	if route = sanitizeString(route, 180); route == "" {
		return "/"
	}
	return route
}

// SanitizeMethod bounds an HTTP method token.
func SanitizeMethod(method string) string {
	return strings.ToUpper(sanitizeString(method, 10))
}

// MaskSessionID returns a short stable digest of a storefront session id. The id is a
// bearer credential for its cart and checkout, so logs carry only the digest.
func MaskSessionID(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:6])
}
