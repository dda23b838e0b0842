package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/subtrackhq/subtrack/internal/handlers/middleware"
	"github.com/subtrackhq/subtrack/internal/handlers/render"
	"github.com/subtrackhq/subtrack/internal/identity"
	"github.com/subtrackhq/subtrack/internal/logger"
	"github.com/subtrackhq/subtrack/internal/models"
	"github.com/subtrackhq/subtrack/internal/service/auth"
	"github.com/subtrackhq/subtrack/internal/service/subscription"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Rate limit profile for the authentication endpoints.
	// DefaultAuthRateLimit if zero.
	AuthRateLimit middleware.RateLimitConfig

	// Origins allowed to make credentialed cross-origin requests
	AllowedOrigins []string
}

func NewRouter(
	cfg RouterConfig,
	authSvc authService,
	subSvc subscriptionService,
	verifier idTokenVerifier,
	l logger.Logger,
) http.Handler {
	if cfg.AuthRateLimit == (middleware.RateLimitConfig{}) {
		cfg.AuthRateLimit = middleware.DefaultAuthRateLimit
	}

	session := authSvc.Session()
	withSession := middleware.SessionAuth(session)
	withBearer := middleware.BearerAuth(verifier)
	withCSRF := middleware.CSRF(session.CSRFCookieName())
	limited := middleware.RateLimit(cfg.AuthRateLimit)

	authMux := http.NewServeMux()
	authMux.Handle("POST /login", limited(handleLogin(authSvc, l)))
	authMux.Handle("POST /register", limited(handleRegister(authSvc, l)))
	authMux.Handle("POST /refresh", handleTokenRefresh(authSvc, l))
	authMux.Handle("POST /google", limited(handleGoogleLogin(authSvc, l)))
	authMux.Handle("POST /logout", handleLogout(authSvc))
	authMux.Handle("GET /me", withSession(handleUserMe()))
	authMux.Handle("POST /forgot-password", limited(handleForgotPassword(authSvc, l)))
	authMux.Handle("POST /send-verification-email", withSession(handleSendVerificationEmail(authSvc, l)))

	apiMux := http.NewServeMux()
	apiMux.Handle("GET /subscriptions", handleListSubscriptions(subSvc, l))
	apiMux.Handle("POST /subscriptions", handleCreateSubscription(subSvc, l))
	apiMux.Handle("GET /subscriptions/total", handleMonthlyTotal(subSvc, l))
	apiMux.Handle("GET /subscriptions/{id}", handleGetSubscription(subSvc, l))
	apiMux.Handle("PUT /subscriptions/{id}", handleUpdateSubscription(subSvc, l))
	apiMux.Handle("DELETE /subscriptions/{id}", handleDeleteSubscription(subSvc, l))

	root := http.NewServeMux()
	root.Handle("GET /{$}", handleRoot())
	root.Handle("/auth/", http.StripPrefix("/auth", authMux))
	root.Handle("/api/", http.StripPrefix("/api", chain(apiMux, withBearer, withCSRF)))

	return chain(root,
		middleware.LoggerMiddleware(l),
		middleware.SecurityHeaders,
		middleware.CORS(cfg.AllowedOrigins),
	)
}

func handleRoot() http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, response{Message: "SubTrack API - User Authentication Service"})
	})
}

type authService interface {
	// Verify credentials and issue a token pair.
	// Has to fail with apperrors.ErrInvalidCredentials for a wrong
	// password and an unknown email alike
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Validate the password policy and create the account.
	// Has to fail with apperrors.ErrEmailAlreadyExists on duplicates and
	// *apperrors.PolicyError on policy violations
	Register(ctx context.Context, email string, password string) (string, error)

	// Rotate a refresh token into a new pair
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Verify a provider-issued ID token, return a long-lived access token
	// and the subject id
	FederatedLogin(ctx context.Context, idToken string) (models.IssuedToken, string, error)

	// Ask the provider to send a reset email. Must not reveal whether the
	// email is registered
	ForgotPassword(ctx context.Context, email string) error

	SendVerificationEmail(ctx context.Context, email string) error

	// Cookie handling at the boundary
	Session() *auth.SessionManager
}

type subscriptionService interface {
	List(ctx context.Context, userID string) ([]models.Subscription, error)
	Get(ctx context.Context, id uuid.UUID, userID string) (models.Subscription, error)
	Create(ctx context.Context, userID string, params subscription.Params) (models.Subscription, error)
	Update(ctx context.Context, id uuid.UUID, userID string, params subscription.Params) (models.Subscription, error)
	Delete(ctx context.Context, id uuid.UUID, userID string) error
	MonthlyTotal(ctx context.Context, userID string) (decimal.Decimal, error)
}

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (identity.UserRecord, error)
}
