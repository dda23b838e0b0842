package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/handlers/userctx"
	"github.com/subtrackhq/subtrack/internal/identity"
	"github.com/subtrackhq/subtrack/internal/models"
)

type fakeGuard struct {
	principal models.Principal
	err       error
}

func (g fakeGuard) Authenticate(_ *http.Request) (models.Principal, error) {
	return g.principal, g.err
}

func principalEcho(t *testing.T, want models.Principal) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := userctx.FromContext(r.Context())
		require.True(t, ok, "principal should be in context")
		require.Equal(t, want, got)
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionAuth(t *testing.T) {
	t.Parallel()

	t.Run("principal lands in context", func(t *testing.T) {
		principal := models.Principal{SubjectID: "uid-1", Email: "nk@example.com", Scope: "user"}
		h := SessionAuth(fakeGuard{principal: principal})(principalEcho(t, principal))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("error mapping", func(t *testing.T) {
		tests := []struct {
			name   string
			err    error
			detail string
		}{
			{"missing credential", apperrors.ErrUnauthenticated, "Authentication required"},
			{"expired", apperrors.ErrTokenExpired, "Token expired"},
			{"wrong type", apperrors.ErrTokenInvalidType, "Invalid token type"},
			{"malformed", apperrors.ErrTokenMalformed, "Invalid token"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := SessionAuth(fakeGuard{err: tt.err})(http.NotFoundHandler())

				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

				require.Equal(t, http.StatusUnauthorized, rec.Code)
				require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
				require.JSONEq(t, `{"detail": "`+tt.detail+`"}`, rec.Body.String())
			})
		}
	})
}

type fakeVerifier struct {
	record identity.UserRecord
	err    error
}

func (v fakeVerifier) VerifyIDToken(_ context.Context, _ string) (identity.UserRecord, error) {
	return v.record, v.err
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()

	t.Run("verified token lands in context", func(t *testing.T) {
		record := identity.UserRecord{UID: "uid-g", Email: "g@example.com"}
		want := models.Principal{SubjectID: "uid-g", Email: "g@example.com", Scope: "user"}
		h := BearerAuth(fakeVerifier{record: record})(principalEcho(t, want))

		r := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
		r.Header.Set("Authorization", "Bearer some-id-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		h := BearerAuth(fakeVerifier{})(http.NotFoundHandler())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("wrong scheme", func(t *testing.T) {
		h := BearerAuth(fakeVerifier{})(http.NotFoundHandler())

		r := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("verification failure", func(t *testing.T) {
		h := BearerAuth(fakeVerifier{err: apperrors.ErrUnauthenticated})(http.NotFoundHandler())

		r := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
		r.Header.Set("Authorization", "Bearer bogus")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"detail": "Authentication failed"}`, rec.Body.String())
	})
}
