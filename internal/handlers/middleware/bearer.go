package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/subtrackhq/subtrack/internal/handlers/render"
	"github.com/subtrackhq/subtrack/internal/handlers/userctx"
	"github.com/subtrackhq/subtrack/internal/identity"
	"github.com/subtrackhq/subtrack/internal/models"
)

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (identity.UserRecord, error)
}

// BearerAuth guards routes with the federated trust path: the bearer
// token is verified directly against the identity provider, bypassing
// local token issuance entirely. Must never be mixed up with the
// cookie-based session guard.
func BearerAuth(verifier idTokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				render.Unauthorized(w, "Authentication required")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))

			record, err := verifier.VerifyIDToken(r.Context(), raw)
			if err != nil {
				// Same message for malformed tokens and provider failures
				render.Unauthorized(w, "Authentication failed")
				return
			}

			principal := models.Principal{
				SubjectID: record.UID,
				Email:     record.Email,
				Scope:     "user",
			}

			ctx := userctx.New(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
