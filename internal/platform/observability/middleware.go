package observability

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/maison-luxe/storefront/internal/platform/httpx"
	"github.com/maison-luxe/storefront/internal/platform/requestctx"
)

const completionMessage = "request completed"

var passthrough = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

// InjectLoggerMiddleware binds logger to every request context.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = passthrough
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware writes one completion entry per request and names the server span
// after the matched route. The session is logged masked. Checkout facts the handlers noted
// (step, payment outcome, order id) are appended to the entry and the span.
func RequestLoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = passthrough
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, notes := requestctx.WithNotes(r.Context())
			logger := requestLogger(r.WithContext(ctx))
			ctx = requestctx.WithLogger(ctx, logger)
			r = r.WithContext(ctx)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			panicked := true
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				if panicked && status < http.StatusInternalServerError {
					status = http.StatusInternalServerError
				}
				// chi fills the pattern while routing, so it is only known now.
				route := SanitizeRoute(routePattern(r))

				fields := []zap.Field{
					zap.String("route", route),
					zap.Int("status", status),
					zap.Duration("latency", time.Since(start)),
					zap.Int("bytes", ww.BytesWritten()),
				}
				attrs := []attribute.KeyValue{
					semconv.HTTPResponseStatusCode(status),
					semconv.HTTPRoute(route),
				}
				for _, note := range notes.Sorted() {
					value := sanitizeString(note.Value, 64)
					fields = append(fields, zap.String(note.Key, value))
					attrs = append(attrs, attribute.String("storefront."+note.Key, value))
				}

				span := trace.SpanFromContext(ctx)
				span.SetName(SanitizeMethod(r.Method) + " " + route)
				span.SetAttributes(attrs...)
				if status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(status))
				} else {
					span.SetStatus(codes.Ok, "")
				}

				if ce := logger.Check(completionLevel(status, panicked), completionMessage); ce != nil {
					ce.Write(fields...)
				}
			}()

			next.ServeHTTP(ww, r)
			panicked = false
		})
	}
}

func requestLogger(r *http.Request) *zap.Logger {
	ctx := r.Context()
	traceInfo, _ := requestctx.Trace(ctx)
	logger := requestctx.Logger(ctx).With(
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.String("method", SanitizeMethod(r.Method)),
		zap.String("trace_id", traceInfo.TraceID),
	)
	if session := requestctx.SessionID(ctx); session != "" {
		logger = logger.With(zap.String("session", MaskSessionID(session)))
	}
	if traceInfo.ProjectID != "" && traceInfo.TraceID != "" {
		logger = logger.With(zap.String("logging.googleapis.com/trace",
			fmt.Sprintf("projects/%s/traces/%s", traceInfo.ProjectID, traceInfo.TraceID)))
	}
	if ip := remoteIP(r.RemoteAddr); ip != "" {
		logger = logger.With(zap.String("remote_ip", ip))
	}
	return logger
}

// completionLevel keeps customer-correctable checkout outcomes (a declined payment, a
// rejected code or a field error) at info so warn stays meaningful for client bugs.
func completionLevel(status int, panicked bool) zapcore.Level {
	switch {
	case panicked || status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status == http.StatusPaymentRequired, status == http.StatusUnprocessableEntity:
		return zapcore.InfoLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// RecoveryMiddleware turns a panic into a 500 envelope carrying the request id, and logs
// the stack.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = requestctx.NoopLogger()
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = passthrough
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ctx := r.Context()
				logger := requestctx.Logger(ctx)
				if logger == requestctx.NoopLogger() {
					logger = fallback
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)

				apiErr := httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError)
				if id := middleware.GetReqID(ctx); id != "" {
					apiErr = apiErr.WithDetails(map[string]any{"requestId": id})
				}
				httpx.WriteError(ctx, w, apiErr)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.URL != nil && r.URL.Path != "" {
		return r.URL.Path
	}
	return "/"
}

// remoteIP strips the port. chi's RealIP middleware has already applied forwarding headers.
func remoteIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return sanitizeString(addr, 64)
}
