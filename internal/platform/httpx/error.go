// Package httpx holds the JSON response helpers shared by every handler.
package httpx

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/maison-luxe/storefront/internal/platform/requestctx"
)

// Error is the storefront error envelope:
//
//	{"error": code, "message": ..., "status": ..., "request_id": ..., "trace_id": ...,
//	 "fields": {...}, "retryable": true, ...details}
type Error struct {
	Code    string
	Message string
	Status  int
	Fields  map[string]string
	Details map[string]any
	// RetryAfter, when positive, marks the error retryable and sets the Retry-After header.
	RetryAfter time.Duration
}

// NewError builds an envelope. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: clean(code, 80), Message: clean(message, 512), Status: status}
}

// WithFields attaches per-field validation messages, rendered under "fields".
func (e Error) WithFields(fields map[string]string) Error {
	if len(fields) == 0 {
		return e
	}
	e.Fields = make(map[string]string, len(fields))
	for field, message := range fields {
		e.Fields[field] = clean(message, 256)
	}
	return e
}

// WithDetails merges extra top-level keys. Envelope keys always win over details.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// WithRetryAfter tells the client the same request may succeed after d.
func (e Error) WithRetryAfter(d time.Duration) Error {
	e.RetryAfter = d
	return e
}

// WriteError renders err, stamping the request and trace ids from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := make(map[string]any, len(err.Details)+7)
	for k, v := range err.Details {
		payload[k] = v
	}
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = status
	if id := clean(middleware.GetReqID(ctx), 80); id != "" {
		payload["request_id"] = id
	}
	if id := clean(requestctx.TraceID(ctx), 64); id != "" {
		payload["trace_id"] = id
	}
	if len(err.Fields) > 0 {
		payload["fields"] = err.Fields
	}
	if err.RetryAfter > 0 {
		payload["retryable"] = true
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(err.RetryAfter.Seconds()))))
	}

	WriteJSON(w, status, payload)
}

// WriteJSON encodes payload with the given status. Cart and checkout state is per session,
// so responses are not cacheable unless the caller already set Cache-Control.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	header := w.Header()
	header.Set("Content-Type", "application/json")
	if header.Get("Cache-Control") == "" {
		header.Set("Cache-Control", "no-store")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// clean flattens line breaks and caps length so client input echoed in messages cannot
// forge extra log or header lines.
func clean(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
