// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/auth"
)

// Key type for context values
type contextKey string

// AccountIDKey carries the authenticated account ID through the request context
const AccountIDKey contextKey = "account_id"

// TokenValidator validates a session token and returns the account ID.
// Both the JWT service and the account service's API tokens satisfy it.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// AuthMiddleware authenticates HTTP requests against the account service.
// Bearer tokens are tried first as JWT sessions, then as static API tokens.
type AuthMiddleware struct {
	accountService auth.AccountService
	jwtValidator   TokenValidator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(accountService auth.AccountService, jwtValidator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		accountService: accountService,
		jwtValidator:   jwtValidator,
	}
}

// Authenticate is middleware that authenticates requests
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS preflight never carries credentials
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		var accountID string
		var err error

		switch {
		case strings.HasPrefix(authHeader, "Bearer "):
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if m.jwtValidator != nil {
				accountID, err = m.jwtValidator.ValidateToken(token)
			}
			if m.jwtValidator == nil || err != nil {
				accountID, err = m.accountService.ValidateToken(token)
			}
		case strings.HasPrefix(authHeader, "Basic "):
			username, password, ok := r.BasicAuth()
			if !ok {
				http.Error(w, "Invalid Authorization header", http.StatusUnauthorized)
				return
			}
			accountID, err = m.accountService.Authenticate(username, password)
		default:
			http.Error(w, "Unsupported authentication method", http.StatusUnauthorized)
			return
		}

		if err != nil {
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAccountID retrieves the account ID from the request context
func GetAccountID(r *http.Request) (string, bool) {
	accountID, ok := r.Context().Value(AccountIDKey).(string)
	return accountID, ok
}
