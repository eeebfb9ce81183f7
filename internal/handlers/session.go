package handlers

import (
	"crypto/rand"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/maison-luxe/storefront/internal/platform/httpx"
	"github.com/maison-luxe/storefront/internal/platform/requestctx"
)

const (
	defaultSessionHeader = "X-Session-ID"
	defaultSessionCookie = "sf_session"
	defaultSessionMaxAge = 30 * 24 * time.Hour
	maxSessionIDLength   = 128
)

type sessionConfig struct {
	header string
	cookie string
	maxAge time.Duration
	mint   func() string
}

// SessionOption customises session resolution.
type SessionOption func(*sessionConfig)

// WithSessionHeader overrides the request header carrying the session id.
func WithSessionHeader(name string) SessionOption {
	return func(cfg *sessionConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.header = name
		}
	}
}

// WithSessionCookie overrides the cookie carrying the session id.
func WithSessionCookie(name string) SessionOption {
	return func(cfg *sessionConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.cookie = name
		}
	}
}

// WithSessionMaxAge sets the lifetime of minted session cookies.
func WithSessionMaxAge(maxAge time.Duration) SessionOption {
	return func(cfg *sessionConfig) {
		if maxAge > 0 {
			cfg.maxAge = maxAge
		}
	}
}

// WithSessionMinter replaces the id generator for new sessions.
func WithSessionMinter(mint func() string) SessionOption {
	return func(cfg *sessionConfig) {
		if mint != nil {
			cfg.mint = mint
		}
	}
}

// SessionMiddleware binds the storefront session to the request context. The header wins
// over the cookie. Requests carrying neither get a freshly minted session, returned in both
// the response header and a cookie so browsers keep their cart.
func SessionMiddleware(opts ...SessionOption) func(http.Handler) http.Handler {
	cfg := sessionConfig{
		header: defaultSessionHeader,
		cookie: defaultSessionCookie,
		maxAge: defaultSessionMaxAge,
		mint: func() string {
			return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get(cfg.header))
			if sessionID == "" {
				if cookie, err := r.Cookie(cfg.cookie); err == nil {
					sessionID = strings.TrimSpace(cookie.Value)
				}
			}

			if sessionID == "" {
				sessionID = cfg.mint()
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.cookie,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(cfg.maxAge / time.Second),
					HttpOnly: true,
					Secure:   r.TLS != nil,
					SameSite: http.SameSiteLaxMode,
				})
			} else if !validSessionID(sessionID) {
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_session", "session id is malformed", http.StatusBadRequest))
				return
			}

			w.Header().Set(cfg.header, sessionID)
			next.ServeHTTP(w, r.WithContext(requestctx.WithSessionID(r.Context(), sessionID)))
		})
	}
}

func validSessionID(value string) bool {
	if len(value) > maxSessionIDLength {
		return false
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
