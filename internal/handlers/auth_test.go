package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/subtrackhq/subtrack/internal/handlers/middleware"
	"github.com/subtrackhq/subtrack/internal/logger"
	"github.com/subtrackhq/subtrack/internal/repository/postgres"
	"github.com/subtrackhq/subtrack/internal/service/auth"
	"github.com/subtrackhq/subtrack/internal/service/subscription"
	"github.com/subtrackhq/subtrack/internal/testutil"
)

type testServer struct {
	URL      string
	Client   *http.Client
	Provider *testutil.FakeProvider
	Auth     *auth.AuthService
}

// withTestServer runs the full router over a db transaction with a fake
// identity provider behind it
func withTestServer(dbpool *pgxpool.Pool, t *testing.T, cfg RouterConfig, fn func(ts testServer)) {
	t.Helper()

	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		userRepo := &postgres.UserRepo{DB: tx}
		subRepo := &postgres.SubscriptionRepo{DB: tx}

		session, err := auth.NewSessionManager(auth.SessionConfig{SecretKey: "test-secret-key-that-is-long-enough"})
		require.NoError(t, err, "session manager should be created without errors")

		provider := testutil.NewFakeProvider()

		authService, err := auth.NewService(auth.Config{}, session, provider, userRepo, nil)
		require.NoError(t, err, "auth service starting error")

		subService := subscription.NewService(subRepo)

		h := NewRouter(cfg, authService, subService, provider, logger.NewNoOp())
		srv := httptest.NewServer(h)
		defer srv.Close()

		jar := newCookieJar(t)
		client := &http.Client{Jar: jar}

		fn(testServer{URL: srv.URL, Client: client, Provider: provider, Auth: authService})
	})
}

func postJSON(t *testing.T, client *http.Client, url string, body string) (*http.Response, string) {
	t.Helper()

	resp, err := client.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, string(raw)
}

func getJSON(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	t.Helper()

	resp, err := client.Get(url)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, string(raw)
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var plentyRateLimit = RouterConfig{
	AuthRateLimit: middleware.RateLimitConfig{Requests: 1000, Window: time.Minute},
}

func Test_AuthEndpoints(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("full session flow", func(t *testing.T) {
		withTestServer(pg.Pool, t, plentyRateLimit, func(ts testServer) {
			uid := ts.Provider.AddUser("nk@example.com", "Secur3!pass")

			// Login sets the two token cookies with disjoint paths
			resp, body := postJSON(t, ts.Client, ts.URL+"/auth/login",
				`{"email": "nk@example.com", "password": "Secur3!pass"}`)
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, `"token_type":"bearer"`)
			require.Contains(t, body, uid)

			cookies := resp.Cookies()
			access := cookieByName(cookies, "access_token")
			require.NotNil(t, access)
			require.Equal(t, "/", access.Path)
			require.True(t, access.HttpOnly)

			refresh := cookieByName(cookies, "refresh_token")
			require.NotNil(t, refresh)
			require.Equal(t, "/auth/refresh", refresh.Path, "refresh cookie must never leave its endpoint")

			csrf := cookieByName(cookies, "csrf_token")
			require.NotNil(t, csrf)
			require.False(t, csrf.HttpOnly)

			// The access cookie authenticates /auth/me, no password in sight
			resp, body = getJSON(t, ts.Client, ts.URL+"/auth/me")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.JSONEq(t, `{"subject_id": "`+uid+`", "email": "nk@example.com", "scope": "user"}`, body)
			require.NotContains(t, strings.ToLower(body), "password")

			// Refresh rotates to a new valid pair
			resp, body = postJSON(t, ts.Client, ts.URL+"/auth/refresh", "")
			require.Equalf(t, http.StatusOK, resp.StatusCode, "refresh failed. Body: %s", body)
			rotated := cookieByName(resp.Cookies(), "access_token")
			require.NotNil(t, rotated)

			principal, err := ts.Auth.Session().ValidateAccess(rotated.Value)
			require.NoError(t, err)
			require.Equal(t, uid, principal.SubjectID)
		})
	})

	t.Run("login failures", func(t *testing.T) {
		withTestServer(pg.Pool, t, plentyRateLimit, func(ts testServer) {
			ts.Provider.AddUser("nk@example.com", "Secur3!pass")

			tests := []struct {
				name string
				body string
			}{
				{"wrong password", `{"email": "nk@example.com", "password": "wrong"}`},
				{"unknown email", `{"email": "other@example.com", "password": "Secur3!pass"}`},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					resp, body := postJSON(t, ts.Client, ts.URL+"/auth/login", tt.body)

					require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
					require.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
					require.JSONEq(t, `{"detail": "Invalid credentials"}`, body)
					require.Empty(t, resp.Cookies(), "no cookies on failed login")
				})
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		withTestServer(pg.Pool, t, plentyRateLimit, func(ts testServer) {
			resp, body := postJSON(t, ts.Client, ts.URL+"/auth/register",
				`{"email": "new@example.com", "password": "Secur3!pass"}`)
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, "User created successfully")

			// Weak password is refused with the failing rule
			resp, body = postJSON(t, ts.Client, ts.URL+"/auth/register",
				`{"email": "weak@example.com", "password": "abc123"}`)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.JSONEq(t, `{"detail": "Password must contain at least one special character"}`, body)

			// Duplicate email
			resp, body = postJSON(t, ts.Client, ts.URL+"/auth/register",
				`{"email": "new@example.com", "password": "An0ther!pass"}`)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.JSONEq(t, `{"detail": "Email already registered"}`, body)
		})
	})

	t.Run("logout clears cookies but does not revoke", func(t *testing.T) {
		withTestServer(pg.Pool, t, plentyRateLimit, func(ts testServer) {
			ts.Provider.AddUser("nk@example.com", "Secur3!pass")

			resp, _ := postJSON(t, ts.Client, ts.URL+"/auth/login",
				`{"email": "nk@example.com", "password": "Secur3!pass"}`)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			stolen := cookieByName(resp.Cookies(), "access_token").Value

			resp, body := postJSON(t, ts.Client, ts.URL+"/auth/logout", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.JSONEq(t, `{"message": "Logged out successfully"}`, body)

			for _, c := range resp.Cookies() {
				require.Equalf(t, -1, c.MaxAge, "cookie %q should be deleted", c.Name)
			}

			// The browser lost its session
			resp, _ = getJSON(t, ts.Client, ts.URL+"/auth/me")
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			// But a copied token still validates, logout is client side only
			_, err := ts.Auth.Session().ValidateAccess(stolen)
			require.NoError(t, err)
		})
	})

	t.Run("google login", func(t *testing.T) {
		withTestServer(pg.Pool, t, plentyRateLimit, func(ts testServer) {
			ts.Provider.AddIDToken("google-token", fakeGoogleRecord())

			resp, body := postJSON(t, ts.Client, ts.URL+"/auth/google", `{"token": "google-token"}`)
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, `"user_id":"uid-g"`)

			access := cookieByName(resp.Cookies(), "access_token")
			require.NotNil(t, access)
			require.Nil(t, cookieByName(resp.Cookies(), "refresh_token"), "federated login issues no refresh token")

			resp, body = postJSON(t, ts.Client, ts.URL+"/auth/google", `{"token": "bogus"}`)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.JSONEq(t, `{"detail": "Invalid Google token"}`, body)
		})
	})

	t.Run("forgot password is indistinguishable", func(t *testing.T) {
		withTestServer(pg.Pool, t, plentyRateLimit, func(ts testServer) {
			ts.Provider.AddUser("known@example.com", "Secur3!pass")

			_, knownBody := postJSON(t, ts.Client, ts.URL+"/auth/forgot-password", `{"email": "known@example.com"}`)
			_, unknownBody := postJSON(t, ts.Client, ts.URL+"/auth/forgot-password", `{"email": "unknown@example.com"}`)

			require.JSONEq(t, knownBody, unknownBody, "responses must not reveal registration status")
			require.JSONEq(t, `{"message": "Password reset email sent"}`, knownBody)
		})
	})

	t.Run("login attempts are rate limited", func(t *testing.T) {
		cfg := RouterConfig{AuthRateLimit: middleware.RateLimitConfig{Requests: 5, Window: time.Minute}}
		withTestServer(pg.Pool, t, cfg, func(ts testServer) {
			var last *http.Response
			var lastBody string
			for range 6 {
				last, lastBody = postJSON(t, ts.Client, ts.URL+"/auth/login",
					`{"email": "nk@example.com", "password": "wrong"}`)
			}

			require.Equal(t, http.StatusTooManyRequests, last.StatusCode)
			require.NotEmpty(t, last.Header.Get("Retry-After"))
			require.JSONEq(t, `{"detail": "Too many requests"}`, lastBody)
		})
	})

	t.Run("request validation", func(t *testing.T) {
		withTestServer(pg.Pool, t, plentyRateLimit, func(ts testServer) {
			resp, body := postJSON(t, ts.Client, ts.URL+"/auth/login", `{"email": "not-an-email"}`)

			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Contains(t, body, "Request validation failed")
			require.Contains(t, body, "password")
		})
	})
}
