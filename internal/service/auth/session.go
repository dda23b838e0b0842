package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/models"
	"github.com/subtrackhq/subtrack/internal/repository"
)

const (
	// MinSecretLen is the minimum signing secret length in bytes.
	// Anything shorter is rejected at startup.
	MinSecretLen = 32

	defaultSigningMethod = "HS256"
	defaultAccessTTL     = 30 * time.Minute
	defaultRefreshTTL    = 7 * 24 * time.Hour

	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
	csrfCookieName    = "csrf_token"

	// In production the access cookie carries __Host-, which browsers
	// only accept with Secure, Path=/ and no Domain attribute. The
	// refresh cookie is scoped to /auth/refresh and __Host- forbids a
	// non-root Path, so it carries __Secure- instead.
	hostCookiePrefix   = "__Host-"
	secureCookiePrefix = "__Secure-"

	// The refresh credential is scoped to its endpoint only, so it is
	// never sent on ordinary API calls
	refreshCookiePath = "/auth/refresh"
)

// Refresh rotation modes
const (
	// Rotation is additive: the presented token stays valid until expiry.
	// Concurrent rotations of the same token may all succeed, which is a
	// documented replay-tolerant property of the stateless design.
	RotationStateless = "stateless"

	// Every refresh token is recorded server-side and consumed exactly
	// once. Gives hard revocation at the cost of a store round trip.
	RotationSingleUse = "single_use"
)

// ScopeUser is the scope granted to ordinary logins
const ScopeUser = "user"

type SessionConfig struct {
	// Secret key to sign tokens
	// Required, at least MinSecretLen bytes
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Production toggles Secure cookies and the cookie name prefixes
	Production bool

	// RotationStateless (default) or RotationSingleUse
	RotationMode string

	// Required when RotationMode is RotationSingleUse
	Store RefreshStore
}

// RefreshStore is the persistence surface of the single use mode: the
// token ledger plus a transaction boundary, so consuming the presented
// token and recording its replacement happen atomically
type RefreshStore interface {
	Refresh() repository.RefreshTokenRepo
	InTx(ctx context.Context, fn func(repository.Storage) error) error
}

// SessionManager issues token pairs, validates access tokens, rotates
// refresh tokens and owns the cookie policy
type SessionManager struct {
	codec TokenCodec

	accessTTL  time.Duration
	refreshTTL time.Duration

	production   bool
	rotationMode string
	store        RefreshStore
}

func NewSessionManager(cfg SessionConfig) (*SessionManager, error) {
	if len(cfg.SecretKey) < MinSecretLen {
		return nil, fmt.Errorf("secret key must be at least %d bytes long", MinSecretLen)
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if alg == nil {
		return nil, fmt.Errorf("unknown signing method: %q", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTTL)

	if cfg.RotationMode == "" {
		cfg.RotationMode = RotationStateless
	}
	switch cfg.RotationMode {
	case RotationStateless:
	case RotationSingleUse:
		if cfg.Store == nil {
			return nil, errors.New("single use rotation requires a refresh token store")
		}
	default:
		return nil, fmt.Errorf("unknown rotation mode: %q", cfg.RotationMode)
	}

	return &SessionManager{
		codec:        TokenCodec{key: []byte(cfg.SecretKey), alg: alg},
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		production:   cfg.Production,
		rotationMode: cfg.RotationMode,
		store:        cfg.Store,
	}, nil
}

// Issue encodes one access and one refresh claim with independent expiry.
// The pair is produced together and never reissued independently for the
// same login event.
func (m *SessionManager) Issue(ctx context.Context, user models.User, scope string) (models.TokenPair, error) {
	pair, record, err := m.encodePair(user, scope)
	if err != nil {
		return models.TokenPair{}, err
	}

	if m.rotationMode == RotationSingleUse {
		if err := m.store.Refresh().Save(ctx, record); err != nil {
			return models.TokenPair{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
		}
	}

	return pair, nil
}

// Rotate issues the replacement pair for an already checked refresh
// token. In single use mode the presented token is consumed and the
// replacement recorded in one transaction, so a failure between the two
// never leaves a session with its only refresh token spent.
func (m *SessionManager) Rotate(ctx context.Context, prior Claims, user models.User, scope string) (models.TokenPair, error) {
	if m.rotationMode != RotationSingleUse {
		return m.Issue(ctx, user, scope)
	}

	jti, err := uuid.Parse(prior.ID)
	if err != nil {
		return models.TokenPair{}, apperrors.ErrTokenMalformed
	}

	pair, record, err := m.encodePair(user, scope)
	if err != nil {
		return models.TokenPair{}, err
	}

	err = m.store.InTx(ctx, func(s repository.Storage) error {
		if _, err := s.Refresh().GetAndMarkUsed(ctx, jti); err != nil {
			return err
		}
		return s.Refresh().Save(ctx, record)
	})
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh rotation failed: %w", err)
	}

	return pair, nil
}

func (m *SessionManager) encodePair(user models.User, scope string) (models.TokenPair, models.RefreshToken, error) {
	var pair models.TokenPair
	var record models.RefreshToken
	now := time.Now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	access, err := m.codec.Encode(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiresAt),
		},
		Email:     user.Email,
		Scope:     scope,
		TokenType: TokenTypeAccess,
	})
	if err != nil {
		return pair, record, err
	}

	refreshID := uuid.New()
	refresh, err := m.codec.Encode(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshID.String(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExpiresAt),
		},
		TokenType: TokenTypeRefresh,
	})
	if err != nil {
		return pair, record, err
	}

	pair = models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: refreshExpiresAt},
	}
	record = models.RefreshToken{
		ID:        refreshID,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: refreshExpiresAt,
		UsedAt:    nil,
	}

	return pair, record, nil
}

// IssueAccess encodes a single access token with a custom lifetime.
// Used by the federated login path which gets no refresh token.
func (m *SessionManager) IssueAccess(ctx context.Context, user models.User, scope string, ttl time.Duration) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	access, err := m.codec.Encode(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:     user.Email,
		Scope:     scope,
		TokenType: TokenTypeAccess,
	})
	if err != nil {
		return models.IssuedToken{}, err
	}

	return models.IssuedToken{Value: access, ExpiresAt: expiresAt}, nil
}

// ValidateAccess decodes an access token and returns the principal.
// Fails with ErrUnauthenticated when the token is missing, ErrTokenExpired
// when lapsed and ErrTokenInvalidType when a refresh token is presented.
func (m *SessionManager) ValidateAccess(token string) (models.Principal, error) {
	if token == "" {
		return models.Principal{}, apperrors.ErrUnauthenticated
	}

	claims, err := m.codec.Decode(token)
	if err != nil {
		return models.Principal{}, err
	}

	if claims.TokenType != TokenTypeAccess {
		return models.Principal{}, apperrors.ErrTokenInvalidType
	}

	return models.Principal{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Scope:     claims.Scope,
	}, nil
}

// CheckRefresh validates a refresh token for rotation. The ledger is not
// touched here: in single use mode the token is consumed by Rotate, after
// the subject has been re-resolved.
func (m *SessionManager) CheckRefresh(ctx context.Context, token string) (Claims, error) {
	if token == "" {
		return Claims{}, apperrors.ErrUnauthenticated
	}

	claims, err := m.codec.Decode(token)
	if err != nil {
		return claims, err
	}

	if claims.TokenType != TokenTypeRefresh {
		return claims, apperrors.ErrTokenInvalidType
	}

	if m.rotationMode == RotationSingleUse {
		if _, err := uuid.Parse(claims.ID); err != nil {
			return claims, apperrors.ErrTokenMalformed
		}
	}

	return claims, nil
}

// Authenticate extracts the access token cookie and validates it
func (m *SessionManager) Authenticate(r *http.Request) (models.Principal, error) {
	token, err := m.ReadAccessToken(r)
	if err != nil {
		return models.Principal{}, err
	}

	return m.ValidateAccess(token)
}

func (m *SessionManager) AccessCookieName() string {
	if m.production {
		return hostCookiePrefix + accessCookieName
	}
	return accessCookieName
}

func (m *SessionManager) RefreshCookieName() string {
	if m.production {
		return secureCookiePrefix + refreshCookieName
	}
	return refreshCookieName
}

// CSRFCookieName is never prefixed: browser scripts read it to echo the
// value in the X-CSRF-Token header
func (m *SessionManager) CSRFCookieName() string {
	return csrfCookieName
}

// ApplyCookies sets the access, refresh and csrf cookies on the response.
// Access cookie is scoped to the whole site, refresh to its endpoint only.
func (m *SessionManager) ApplyCookies(w http.ResponseWriter, pair models.TokenPair) error {
	http.SetCookie(w, m.cookie(m.AccessCookieName(), pair.Access.Value, "/", pair.Access.ExpiresAt))
	http.SetCookie(w, m.cookie(m.RefreshCookieName(), pair.Refresh.Value, refreshCookiePath, pair.Refresh.ExpiresAt))

	csrf, err := newCSRFToken()
	if err != nil {
		return err
	}
	c := m.cookie(m.CSRFCookieName(), csrf, "/", pair.Refresh.ExpiresAt)
	c.HttpOnly = false // double submit value, must be readable by scripts
	http.SetCookie(w, c)

	return nil
}

// ApplyAccessCookie sets the access cookie only (federated login path)
func (m *SessionManager) ApplyAccessCookie(w http.ResponseWriter, token models.IssuedToken) {
	http.SetCookie(w, m.cookie(m.AccessCookieName(), token.Value, "/", token.ExpiresAt))
}

// ClearCookies deletes all auth cookies. Names and paths must match the
// ones used at set time exactly: a mismatched path is a no-op deletion.
func (m *SessionManager) ClearCookies(w http.ResponseWriter) {
	expire := func(name string, path string) {
		c := m.cookie(name, "", path, time.Time{})
		c.MaxAge = -1
		http.SetCookie(w, c)
	}

	expire(m.AccessCookieName(), "/")
	expire(m.RefreshCookieName(), refreshCookiePath)
	expire(m.CSRFCookieName(), "/")
}

// ReadAccessToken returns the access token cookie value
func (m *SessionManager) ReadAccessToken(r *http.Request) (string, error) {
	c, err := r.Cookie(m.AccessCookieName())
	if err != nil {
		return "", apperrors.ErrUnauthenticated
	}
	return c.Value, nil
}

// ReadRefreshToken returns the refresh token cookie value
func (m *SessionManager) ReadRefreshToken(r *http.Request) (string, error) {
	c, err := r.Cookie(m.RefreshCookieName())
	if err != nil {
		return "", apperrors.ErrUnauthenticated
	}
	return c.Value, nil
}

func (m *SessionManager) cookie(name string, value string, path string, expiresAt time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   m.production,
		SameSite: http.SameSiteStrictMode,
	}
	if !expiresAt.IsZero() {
		c.MaxAge = int(time.Until(expiresAt).Seconds())
	}

	return c
}

func newCSRFToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating csrf token. Err: %w", err)
	}
	return hex.EncodeToString(b), nil
}
