package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maison-luxe/storefront/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "trace-1"})
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError("validation_failed", "shipping address is invalid\n", http.StatusUnprocessableEntity).
		WithFields(map[string]string{"postalCode": "required"}).
		WithDetails(map[string]any{"step": "shipping", "error": "ignored"}))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "validation_failed", body["error"], "details never override the envelope")
	assert.Equal(t, "shipping address is invalid", body["message"])
	assert.Equal(t, "trace-1", body["trace_id"])
	assert.Equal(t, "shipping", body["step"])
	assert.Equal(t, map[string]any{"postalCode": "required"}, body["fields"])
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, NewError("boom", "boom", 0).Status)
}

func TestWriteErrorRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(context.Background(), rr, NewError("payment_in_flight", "a payment is already being processed", http.StatusConflict).
		WithRetryAfter(1500*time.Millisecond))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["retryable"])
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}
