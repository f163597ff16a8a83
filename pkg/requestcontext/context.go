// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets values, services read them. Keeping this package free of
// net/http lets services import only what they need.
//
// Usage in services (read values):
//
//	accountID := requestcontext.AccountID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	accountIDKey   struct{}
	roleKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// AccountID retrieves the authenticated account ID from the context.
func AccountID(ctx context.Context) string {
	if v, ok := ctx.Value(accountIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithAccountID injects an account ID into the context.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey{}, accountID)
}

// Role retrieves the authenticated role from the context.
func Role(ctx context.Context) string {
	if v, ok := ctx.Value(roleKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRole injects a role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RequestID retrieves the correlation ID from the context.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request time from the context, falling back to the wall
// clock. Services use this instead of time.Now so tests can freeze time.
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return v
	}
	return time.Now()
}

// WithTime injects a fixed time into the context. Used by middleware to pin a
// single request timestamp and by tests to control expiry.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
