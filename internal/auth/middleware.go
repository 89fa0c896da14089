package auth

import (
	"context"
	"net/http"

	"github.com/BradenHooton/accountd/internal/models"
	pkghttp "github.com/BradenHooton/accountd/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing session claims in context
	SessionContextKey contextKey = "session"
)

// SessionVerifier is the part of TokenManager the gate depends on
type SessionVerifier interface {
	Verify(token string) (*models.SessionClaims, error)
}

// SessionMiddleware reads the session cookie, verifies it and injects the
// claims into the request context. It never touches the database.
func SessionMiddleware(verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := GetSessionCookie(r)
			if err != nil || token == "" {
				pkghttp.WriteUnauthorized(w, "Unauthorized - no token provided")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Unauthorized - invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), claims)))
		})
	}
}

// WithSession returns a copy of ctx carrying claims
func WithSession(ctx context.Context, claims *models.SessionClaims) context.Context {
	return context.WithValue(ctx, SessionContextKey, claims)
}

// GetSessionFromContext extracts session claims from request context
func GetSessionFromContext(r *http.Request) *models.SessionClaims {
	claims, ok := r.Context().Value(SessionContextKey).(*models.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}
