package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/laksac24/VeriFy/pkg/requestcontext"
)

// Claims are the token claims this service issues and verifies.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// HMACVerifier validates tokens signed with a shared HMAC key.
type HMACVerifier struct {
	key []byte
}

func NewHMACVerifier(signingKey string) *HMACVerifier {
	return &HMACVerifier{key: []byte(signingKey)}
}

func (v *HMACVerifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RequireAuth validates the bearer token and injects account ID and role into
// the request context.
func RequireAuth(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized: missing token",
					"request_id", requestcontext.RequestID(ctx))
				writeAuthError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized: invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx))
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx = requestcontext.WithAccountID(ctx, claims.Subject)
			ctx = requestcontext.WithRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route to accounts carrying one of the given roles.
// Must run after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role := requestcontext.Role(ctx)
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			logger.WarnContext(ctx, "forbidden: role not allowed",
				"role", role,
				"request_id", requestcontext.RequestID(ctx))
			writeAuthError(w, http.StatusForbidden, "insufficient role")
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + http.StatusText(status) + `","error_description":"` + description + `"}`))
}
