package middleware

import (
	"errors"
	"net/http"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/handlers/render"
	"github.com/subtrackhq/subtrack/internal/handlers/userctx"
	"github.com/subtrackhq/subtrack/internal/models"
)

type sessionGuard interface {
	// Extract the access token from the request and validate it
	Authenticate(r *http.Request) (models.Principal, error)
}

// SessionAuth guards routes with the access-token cookie trust path
func SessionAuth(guard sessionGuard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := guard.Authenticate(r)
			if err != nil {
				render.Unauthorized(w, authDetail(err))
				return
			}

			ctx := userctx.New(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authDetail maps token errors to client-facing messages without
// leaking anything beyond the taxonomy
func authDetail(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrUnauthenticated):
		return "Authentication required"
	case errors.Is(err, apperrors.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, apperrors.ErrTokenInvalidType):
		return "Invalid token type"
	default:
		return "Invalid token"
	}
}
