// Package auth provides bearer-token middleware for the mutating
// local-file endpoints.
package auth

import (
	"net/http"
	"strings"
)

// Middleware checks requests against a single configured API token.
type Middleware struct {
	token string
}

// NewMiddleware creates auth middleware for the given token. An empty
// token rejects every request (fail closed).
func NewMiddleware(token string) *Middleware {
	return &Middleware{token: token}
}

// RequireAuthFunc wraps an http.HandlerFunc and requires valid authentication.
func (m *Middleware) RequireAuthFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.isAuthenticated(r) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// isAuthenticated checks the request's token headers.
func (m *Middleware) isAuthenticated(r *http.Request) bool {
	if m.token == "" {
		return false
	}

	// X-API-Token for service-to-service calls
	if token := r.Header.Get("X-API-Token"); token != "" {
		return token == m.token
	}

	// Otherwise "Bearer <token>"
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return false
	}
	return parts[1] == m.token
}

// IsEnabled returns true if a token is configured.
func (m *Middleware) IsEnabled() bool {
	return m.token != ""
}
