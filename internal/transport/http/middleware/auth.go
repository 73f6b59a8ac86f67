package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/service"
)

type contextKey string

const IdentityKey contextKey = "identity"

// Auth verifies the Bearer token and stores the caller's identity in the
// request context.
func Auth(auth *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearer(r)
			if !ok {
				http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"Missing or invalid token"}}`, http.StatusUnauthorized)
				return
			}

			ident, err := auth.VerifyToken(tokenStr)
			if err != nil {
				http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"Invalid or expired token"}}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Lifecycle guards the internal API used by the matching system. An empty
// token disables the API entirely.
func Lifecycle(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearer(r)
			if token == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, `{"error":{"code":"FORBIDDEN","message":"Lifecycle access denied"}}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentity extracts the caller identity from request context
func GetIdentity(ctx context.Context) domain.Identity {
	return ctx.Value(IdentityKey).(domain.Identity)
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	return token, ok && token != ""
}
