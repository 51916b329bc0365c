package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID   = "trace_id"
	attrSpanID    = "span_id"
	attrSessionID = "session_id"
	attrService   = "service"
	attrEnv       = "env"
	attrMode      = "mode"
)

type sessionKey struct{}

// WithSession returns a context whose log records carry the branch session id.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionFromContext returns the session id stored by WithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)

	return id, ok && id != ""
}

// ContextHandler is an [slog.Handler] that adds request context to every
// record: the active span (trace_id, span_id) and the branch session the
// record belongs to (session_id). Identity attributes are attached once at
// construction and stay at the top level when groups are opened.
type ContextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next, pre-attaching the process identity.
func NewContextHandler(next slog.Handler, id Identity) *ContextHandler {
	attrs := []slog.Attr{
		slog.String(attrService, id.Service),
		slog.String(attrMode, string(id.Mode)),
	}

	if id.Environment != "" {
		attrs = append(attrs, slog.String(attrEnv, id.Environment))
	}

	return &ContextHandler{next: next.WithAttrs(attrs)}
}

// Enabled reports whether the wrapped handler accepts level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle adds the context attributes and passes the record on.
func (h *ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(contextAttrs(ctx)...)

	err := h.next.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("context log handler: %w", err)
	}

	return nil
}

// WithAttrs implements [slog.Handler].
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements [slog.Handler].
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if id, ok := SessionFromContext(ctx); ok {
		attrs = append(attrs, slog.String(attrSessionID, id))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	return attrs
}
