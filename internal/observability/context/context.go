// Package context carries request-scoped correlation values used by logs and traces.
package context

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type requestIDKey struct{}
type orderIDKey struct{}

// NewRequestID returns a fresh, lexically sortable request identifier.
func NewRequestID() string {
	return ulid.Make().String()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithOrderID tags the context with the order a payment call is acting on.
func WithOrderID(ctx context.Context, orderID string) context.Context {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return ctx
	}
	return context.WithValue(ctx, orderIDKey{}, orderID)
}

func OrderIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(orderIDKey{}).(string); ok {
		return v
	}
	return ""
}
