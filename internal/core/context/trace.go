package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext carries the ids that tie a ledger call to its HTTP request
// and otel span.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

// NewTraceContext builds a TraceContext, generating any id left empty.
func NewTraceContext(traceID, spanID, requestID string) *TraceContext {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	if spanID == "" {
		spanID = uuid.NewString()[:16]
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &TraceContext{TraceID: traceID, SpanID: spanID, RequestID: requestID}
}

// LogFields returns the ids as zap-style key/value pairs.
func (t *TraceContext) LogFields() []any {
	return []any{"trace_id", t.TraceID, "span_id", t.SpanID, "request_id", t.RequestID}
}

type traceKey struct{}

func WithTrace(ctx context.Context, t *TraceContext) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// GetTrace returns nil outside a traced request (worker loops, tests).
func GetTrace(ctx context.Context) *TraceContext {
	t, _ := ctx.Value(traceKey{}).(*TraceContext)
	return t
}

func GetTraceID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.TraceID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}
