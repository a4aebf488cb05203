package auth

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a custom type for context keys
type ContextKey string

// UserContextKey is the key for storing user claims in the request context
const UserContextKey ContextKey = "user"

// Middleware returns an HTTP middleware enforcing JWT authentication.
// Requests pass through untouched when authentication is disabled.
func Middleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				// Browsers cannot set headers on websocket upgrades; accept
				// the token as a query parameter there.
				authHeader = "Bearer " + r.URL.Query().Get("token")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				http.Error(w, `{"error": "missing or malformed authorization"}`, http.StatusUnauthorized)
				return
			}

			claims, err := a.ValidateToken(parts[1])
			if err != nil {
				if err == ErrExpiredToken {
					http.Error(w, `{"error": "token has expired"}`, http.StatusUnauthorized)
				} else {
					http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
