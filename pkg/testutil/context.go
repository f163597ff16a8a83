package testutil

import (
	"net/http"
	"time"

	"github.com/laksac24/VeriFy/pkg/requestcontext"
)

// WithAccount injects an authenticated account into the request context,
// simulating what the auth middleware does for a valid bearer token.
func WithAccount(req *http.Request, accountID, role string) *http.Request {
	ctx := requestcontext.WithAccountID(req.Context(), accountID)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}

// WithRequestID injects a correlation ID into the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithFrozenTime pins the request clock, as the request-time middleware does,
// so handlers under test produce deterministic timestamps and expiries.
func WithFrozenTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
