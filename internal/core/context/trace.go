package context

import "context"

// TraceContext identifies one request in logs, spans and error bodies.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// TraceIDs returns the trace and request ids, empty outside a traced request.
func TraceIDs(ctx context.Context) (traceID, requestID string) {
	if t := GetTrace(ctx); t != nil {
		return t.TraceID, t.RequestID
	}
	return "", ""
}
