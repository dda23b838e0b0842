package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/identity"
	"github.com/subtrackhq/subtrack/internal/logger"
	"github.com/subtrackhq/subtrack/internal/models"
	"github.com/subtrackhq/subtrack/internal/repository"
)

// Password check modes. Plaintext comparison is not a mode.
const (
	// Identity provider verifies the password (default)
	PasswordCheckDelegated = "delegated"

	// Bcrypt comparison against the mirrored hash. Development only:
	// config validation rejects it in production.
	PasswordCheckLocal = "local"
)

const defaultFederatedAccessTTL = 30 * 24 * time.Hour

type Config struct {
	// PasswordCheckDelegated (default) or PasswordCheckLocal
	PasswordCheck string

	// Hasher for the local mode. Defaults to BcryptHasher.
	Hasher PasswordHasher

	// Access token lifetime for federated logins, which get no refresh
	// token. Defaults to 30 days.
	FederatedAccessTTL time.Duration
}

// AuthService glues the identity provider, the user mirror and the
// session manager into login, registration and rotation flows
type AuthService struct {
	session  *SessionManager
	provider identity.Provider
	users    repository.UserRepo
	logger   logger.Logger

	passwordCheck string
	hasher        PasswordHasher
	federatedTTL  time.Duration
}

func NewService(cfg Config, session *SessionManager, provider identity.Provider, users repository.UserRepo, l logger.Logger) (*AuthService, error) {
	if session == nil || provider == nil || users == nil {
		return nil, errors.New("session manager, identity provider and user repo must not be nil")
	}
	if l == nil {
		l = logger.NewNoOp()
	}

	if cfg.PasswordCheck == "" {
		cfg.PasswordCheck = PasswordCheckDelegated
	}
	if cfg.PasswordCheck != PasswordCheckDelegated && cfg.PasswordCheck != PasswordCheckLocal {
		return nil, fmt.Errorf("unknown password check mode: %q", cfg.PasswordCheck)
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	if cfg.FederatedAccessTTL == 0 {
		cfg.FederatedAccessTTL = defaultFederatedAccessTTL
	}

	return &AuthService{
		session:       session,
		provider:      provider,
		users:         users,
		logger:        l,
		passwordCheck: cfg.PasswordCheck,
		hasher:        hasher,
		federatedTTL:  cfg.FederatedAccessTTL,
	}, nil
}

// Session exposes the manager for cookie handling at the boundary
func (s *AuthService) Session() *SessionManager {
	return s.session
}

// Login verifies credentials and issues a token pair.
// Fails with apperrors.ErrInvalidCredentials for a wrong password and an
// unknown email alike, so accounts cannot be enumerated.
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	var user models.User
	var err error

	switch s.passwordCheck {
	case PasswordCheckLocal:
		user, err = s.loginLocal(ctx, email, password)
	default:
		user, err = s.loginDelegated(ctx, email, password)
	}
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.session.Issue(ctx, user, ScopeUser)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while issuing token pair. Err: %w", err)
	}

	return pair, nil
}

func (s *AuthService) loginDelegated(ctx context.Context, email string, password string) (models.User, error) {
	uid, err := s.provider.VerifyPassword(ctx, email, password)
	if err != nil {
		return models.User{}, err
	}

	record, err := s.provider.GetUser(ctx, uid)
	if err != nil {
		return models.User{}, err
	}

	// Refresh the mirror so later lookups see current provider state
	user, err := s.users.Upsert(ctx, recordToUser(record))
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (s *AuthService) loginLocal(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// Hide the difference between unknown email and wrong password
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	return user, nil
}

// Register validates the password policy, creates the account at the
// provider and mirrors it locally. Returns the new subject id.
func (s *AuthService) Register(ctx context.Context, email string, password string) (string, error) {
	if err := ValidatePassword(password, email); err != nil {
		return "", err
	}

	uid, err := s.provider.CreateUser(ctx, email, password)
	if err != nil {
		return "", err
	}

	user := models.User{ID: uid, Email: email}
	if s.passwordCheck == PasswordCheckLocal {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return "", fmt.Errorf("can't use this as password, error=%w", err)
		}
		user.PasswordHash = hash
	}

	if _, err := s.users.Upsert(ctx, user); err != nil {
		return "", err
	}

	// Verification email failure must not fail the registration
	if err := s.provider.SendEmailVerification(ctx, email); err != nil {
		s.logger.Warn("failed to send verification email", "error", err)
	}

	return uid, nil
}

// FederatedLogin verifies a provider-issued ID token and returns a
// long-lived access token. No refresh token for this path.
func (s *AuthService) FederatedLogin(ctx context.Context, idToken string) (models.IssuedToken, string, error) {
	record, err := s.provider.VerifyIDToken(ctx, idToken)
	if err != nil {
		return models.IssuedToken{}, "", err
	}

	user, err := s.users.Upsert(ctx, recordToUser(record))
	if err != nil {
		return models.IssuedToken{}, "", err
	}

	token, err := s.session.IssueAccess(ctx, user, ScopeUser, s.federatedTTL)
	if err != nil {
		return models.IssuedToken{}, "", fmt.Errorf("error while issuing access token. Err: %w", err)
	}

	return token, user.ID, nil
}

// Refresh rotates a refresh token into a brand-new pair. The subject is
// re-resolved through the provider, so deactivated accounts and changed
// emails are picked up at rotation time.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	claims, err := s.session.CheckRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	record, err := s.provider.GetUser(ctx, claims.Subject)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.users.Upsert(ctx, recordToUser(record))
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.session.Rotate(ctx, claims, user, ScopeUser)
	if err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// ForgotPassword asks the provider to send a reset email. Whether the
// email is registered stays invisible to the caller.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	return s.provider.SendPasswordReset(ctx, email)
}

// SendVerificationEmail re-sends the verification email for an
// authenticated user
func (s *AuthService) SendVerificationEmail(ctx context.Context, email string) error {
	return s.provider.SendEmailVerification(ctx, email)
}

func recordToUser(r identity.UserRecord) models.User {
	return models.User{
		ID:            r.UID,
		Email:         r.Email,
		Name:          r.Name,
		PhotoURL:      r.PhotoURL,
		EmailVerified: r.EmailVerified,
	}
}
