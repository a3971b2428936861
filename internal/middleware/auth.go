// Package middleware contains HTTP middleware for the Tradevine API.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack.
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/harlowfield/tradevine/internal/auth"
	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/handler"
	"github.com/harlowfield/tradevine/internal/session"
)

// UserBySessionStore resolves a hashed session token to its user.
// Satisfied by *repository.Queries.
type UserBySessionStore interface {
	GetUserBySessionTokenHash(ctx context.Context, tokenHash string) (*domain.User, error)
}

// AuthMiddleware resolves session cookies to users. Sessions are issued
// by the external auth service; this side only reads them.
type AuthMiddleware struct {
	users  UserBySessionStore
	logger *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(users UserBySessionStore, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{users: users, logger: logger}
}

// WithUser loads the user from the session cookie when present. The
// request continues either way; handlers behind RequireUser enforce
// authentication.
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(session.CookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.users.GetUserBySessionTokenHash(r.Context(), hashToken(cookie.Value))
		if err != nil {
			// Invalid or expired token: proceed unauthenticated. The
			// auth service owns cookie lifecycle, so no clearing here.
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
	})
}

// RequireUser rejects unauthenticated requests with 401. Must run after
// WithUser.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUser(r.Context()) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects authenticated users outside the allowed roles with
// 403. Admins always pass. Must run after RequireUser.
func (m *AuthMiddleware) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.GetUser(r.Context())
			if user == nil {
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}
			if user.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			handler.ForbiddenResponse(w, r, m.logger)
		})
	}
}

// hashToken derives the stored lookup key from a raw session token, so a
// database leak never exposes usable tokens.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Stack composes middleware; the first entry is outermost.
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
