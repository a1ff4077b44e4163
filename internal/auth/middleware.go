package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/gifteo/internal/apperror"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. A package-private type means
// only this package can create a key of type contextKey, so no other
// package can read or shadow the user id by accident.
type contextKey string

const userIDKey contextKey = "userID"

// SessionResolver turns a presented session token into a user id. It
// returns an apperror.ErrUnauthenticated error for every token that does
// not name a live session.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (string, error)
}

const unauthorizedBody = `{"success":false,"message":"valid authentication required"}`

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the session token from the HttpOnly cookie (or an
// "Authorization: Bearer" header for non-browser clients), resolves it and
// stores the user id in the request context.
//
// UNIFORM 401:
// A missing, malformed, expired, revoked or never-issued token all produce
// the same status and body. A client cannot probe which case it hit.
// Only a failure of the session store itself is reported as a 500.
func RequireAuth(resolver SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeUnauthorized(w)
				return
			}

			userID, err := resolver.ResolveSession(r.Context(), token)
			if err != nil {
				if errors.Is(err, apperror.ErrUnauthenticated) {
					writeUnauthorized(w)
					return
				}
				logger.Error("resolving session", slog.String("error", err.Error()))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"success":false,"message":"An internal error occurred"}`))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}

// TokenFromRequest returns the presented session token, or "".
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// WithUserID stores the authenticated user id. Tests use it to build
// requests that skip the middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
//
// Returns ("", false) if the request did not pass through RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
