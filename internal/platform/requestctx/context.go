// Package requestctx carries request-scoped values (logger, trace, storefront session)
// between middleware and handlers.
package requestctx

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey  contextKey = "storefront/requestctx/logger"
	traceContextKey   contextKey = "storefront/requestctx/trace"
	sessionContextKey contextKey = "storefront/requestctx/session"
	notesContextKey   contextKey = "storefront/requestctx/notes"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithSessionID binds the storefront session that owns the cart and checkout.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionContextKey, sessionID)
}

// SessionID returns the bound storefront session, or "" when none was presented.
func SessionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionContextKey).(string)
	return id
}

// Notes collects checkout facts (step reached, payment outcome, order id) that handlers
// learn while serving a request and that the completion log line should carry.
type Notes struct {
	mu     sync.Mutex
	values map[string]string
}

// Note is one recorded key/value pair.
type Note struct {
	Key   string
	Value string
}

// WithNotes attaches an empty Notes holder to the context.
func WithNotes(ctx context.Context) (context.Context, *Notes) {
	if ctx == nil {
		ctx = context.Background()
	}
	notes := &Notes{values: make(map[string]string)}
	return context.WithValue(ctx, notesContextKey, notes), notes
}

// Annotate records key=value on the request notes. Without a holder it does nothing, so
// services and handlers can call it outside HTTP.
func Annotate(ctx context.Context, key, value string) {
	if ctx == nil || key == "" || value == "" {
		return
	}
	notes, ok := ctx.Value(notesContextKey).(*Notes)
	if !ok || notes == nil {
		return
	}
	notes.mu.Lock()
	notes.values[key] = value
	notes.mu.Unlock()
}

// Sorted returns the recorded notes ordered by key.
func (n *Notes) Sorted() []Note {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Note, 0, len(n.values))
	for key, value := range n.values {
		out = append(out, Note{Key: key, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
