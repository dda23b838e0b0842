package handlers

import (
	"errors"
	"net/http"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/handlers/render"
	"github.com/subtrackhq/subtrack/internal/handlers/userctx"
	"github.com/subtrackhq/subtrack/internal/logger"
)

func handleLogin(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		UserID      string `json:"user_id"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := auth.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				render.Unauthorized(w, "Invalid credentials")
			case errors.Is(err, apperrors.ErrIdentityUnavailable):
				render.Detail(w, "Identity provider unavailable", http.StatusBadGateway)
			default:
				l.Error("login failed", "error", err)
				render.Detail(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		if err := auth.Session().ApplyCookies(w, pair); err != nil {
			l.Error("failed to set auth cookies", "error", err)
			render.Detail(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		principal, _ := auth.Session().ValidateAccess(pair.Access.Value)
		render.JSON(w, response{
			AccessToken: pair.Access.Value,
			TokenType:   "bearer",
			UserID:      principal.SubjectID,
		})
	})
}

func handleRegister(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
		UserID  string `json:"user_id"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		uid, err := auth.Register(r.Context(), data.Email, data.Password)
		if err != nil {
			var policyErr *apperrors.PolicyError
			switch {
			case errors.As(err, &policyErr):
				render.Detail(w, policyErr.Reason, http.StatusBadRequest)
			case errors.Is(err, apperrors.ErrEmailAlreadyExists):
				render.Detail(w, "Email already registered", http.StatusBadRequest)
			case errors.Is(err, apperrors.ErrIdentityUnavailable):
				render.Detail(w, "Identity provider unavailable", http.StatusBadGateway)
			default:
				l.Error("registration failed", "error", err)
				render.Detail(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, response{Message: "User created successfully", UserID: uid})
	})
}

func handleTokenRefresh(auth authService, l logger.Logger) http.Handler {
	type response struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := auth.Session().ReadRefreshToken(r)
		if err != nil {
			render.Unauthorized(w, "Refresh token not found")
			return
		}

		pair, err := auth.Refresh(r.Context(), refresh)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrTokenExpired):
				render.Unauthorized(w, "Token expired")
			case errors.Is(err, apperrors.ErrTokenInvalidType):
				render.Unauthorized(w, "Invalid token type")
			case errors.Is(err, apperrors.ErrRefreshTokenUsed):
				render.Unauthorized(w, "Refresh token already used")
			case errors.Is(err, apperrors.ErrIdentityUnavailable):
				render.Detail(w, "Identity provider unavailable", http.StatusBadGateway)
			default:
				render.Unauthorized(w, "Invalid token")
			}
			return
		}

		if err := auth.Session().ApplyCookies(w, pair); err != nil {
			l.Error("failed to set auth cookies", "error", err)
			render.Detail(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{AccessToken: pair.Access.Value, TokenType: "bearer"})
	})
}

func handleGoogleLogin(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Token string `json:"token" validate:"required"`
	}
	type response struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		UserID      string `json:"user_id"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		token, uid, err := auth.FederatedLogin(r.Context(), data.Token)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrIdentityUnavailable):
				render.Detail(w, "Identity provider unavailable", http.StatusBadGateway)
			default:
				render.Unauthorized(w, "Invalid Google token")
			}
			return
		}

		auth.Session().ApplyAccessCookie(w, token)
		render.JSON(w, response{AccessToken: token.Value, TokenType: "bearer", UserID: uid})
	})
}

// handleLogout deletes the auth cookies. Previously issued tokens stay
// valid until expiry, there is no server side session to tear down.
func handleLogout(auth authService) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Session().ClearCookies(w)
		render.JSON(w, response{Message: "Logged out successfully"})
	})
}

func handleUserMe() http.Handler {
	type response struct {
		SubjectID string `json:"subject_id"`
		Email     string `json:"email"`
		Scope     string `json:"scope"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := userctx.FromContext(r.Context())
		if !ok {
			render.Unauthorized(w, "Authentication required")
			return
		}

		render.JSON(w, response{
			SubjectID: principal.SubjectID,
			Email:     principal.Email,
			Scope:     principal.Scope,
		})
	})
}

// handleForgotPassword responds identically whether or not the email is
// registered, so the endpoint cannot be used to probe for accounts
func handleForgotPassword(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := auth.ForgotPassword(r.Context(), data.Email); err != nil {
			l.Warn("failed to request password reset", "error", err)
		}

		render.JSON(w, response{Message: "Password reset email sent"})
	})
}

func handleSendVerificationEmail(auth authService, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := userctx.FromContext(r.Context())
		if !ok {
			render.Unauthorized(w, "Authentication required")
			return
		}

		if err := auth.SendVerificationEmail(r.Context(), principal.Email); err != nil {
			l.Warn("failed to send verification email", "error", err)
			render.Detail(w, "Failed to send verification email", http.StatusBadGateway)
			return
		}

		render.JSON(w, response{Message: "Verification email sent"})
	})
}
