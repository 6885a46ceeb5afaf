package shared

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/txtask/internal/txn"
)

// Key type for context values
type ContextKey string

// Context keys for various values
const (
	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TxManagerKey is the key for the request's transaction manager
	TxManagerKey ContextKey = "txManager"
)

// SetTraceID adds a new trace ID to the context.
// This is useful for correlating logs and error responses.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, uuid.NewString())
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// WithTxManager stores the request's transaction manager in ctx
func WithTxManager(ctx context.Context, tm *txn.Manager) context.Context {
	return context.WithValue(ctx, TxManagerKey, tm)
}

// TxManagerFrom returns the transaction manager stored by the transaction
// middleware, or nil when the request does not run inside one.
func TxManagerFrom(ctx context.Context) *txn.Manager {
	tm, _ := ctx.Value(TxManagerKey).(*txn.Manager)
	return tm
}
