package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/identity"
	"github.com/subtrackhq/subtrack/internal/models"
	"github.com/subtrackhq/subtrack/internal/testutil"
)

// memUserRepo is an in-memory user mirror
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]models.User // by id
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]models.User)}
}

func (r *memUserRepo) Upsert(_ context.Context, user models.User) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[user.ID]; ok && user.PasswordHash == "" {
		user.PasswordHash = existing.PasswordHash
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, apperrors.ErrUserNotFound
}

type authFixture struct {
	service  *AuthService
	provider *testutil.FakeProvider
	users    *memUserRepo
	session  *SessionManager
}

func newAuthFixture(t *testing.T, cfg Config) authFixture {
	t.Helper()

	session, err := NewSessionManager(SessionConfig{SecretKey: testSecretKey})
	require.NoError(t, err)

	provider := testutil.NewFakeProvider()
	users := newMemUserRepo()

	service, err := NewService(cfg, session, provider, users, nil)
	require.NoError(t, err)

	return authFixture{service: service, provider: provider, users: users, session: session}
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	t.Run("delegated ok", func(t *testing.T) {
		f := newAuthFixture(t, Config{})
		uid := f.provider.AddUser("nk@example.com", "Secur3!pass")

		pair, err := f.service.Login(t.Context(), "nk@example.com", "Secur3!pass")
		require.NoError(t, err)

		principal, err := f.session.ValidateAccess(pair.Access.Value)
		require.NoError(t, err)
		require.Equal(t, uid, principal.SubjectID)

		// Login mirrors the provider record locally
		user, err := f.users.GetByID(t.Context(), uid)
		require.NoError(t, err)
		require.Equal(t, "nk@example.com", user.Email)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newAuthFixture(t, Config{})
		f.provider.AddUser("nk@example.com", "Secur3!pass")

		_, err := f.service.Login(t.Context(), "nk@example.com", "wrong")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("unknown email fails the same way", func(t *testing.T) {
		f := newAuthFixture(t, Config{})

		_, err := f.service.Login(t.Context(), "who@example.com", "whatever")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("local mode compares the stored hash", func(t *testing.T) {
		f := newAuthFixture(t, Config{PasswordCheck: PasswordCheckLocal})

		uid, err := f.service.Register(t.Context(), "nk@example.com", "Secur3!pass")
		require.NoError(t, err)

		pair, err := f.service.Login(t.Context(), "nk@example.com", "Secur3!pass")
		require.NoError(t, err)

		principal, err := f.session.ValidateAccess(pair.Access.Value)
		require.NoError(t, err)
		require.Equal(t, uid, principal.SubjectID)

		_, err = f.service.Login(t.Context(), "nk@example.com", "wrong")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("unknown mode rejected at construction", func(t *testing.T) {
		session, err := NewSessionManager(SessionConfig{SecretKey: testSecretKey})
		require.NoError(t, err)

		_, err = NewService(Config{PasswordCheck: "plaintext"}, session, testutil.NewFakeProvider(), newMemUserRepo(), nil)
		require.Error(t, err)
	})
}

func TestAuthService_Register(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		f := newAuthFixture(t, Config{})

		uid, err := f.service.Register(t.Context(), "nk@example.com", "Secur3!pass")
		require.NoError(t, err)
		require.NotEmpty(t, uid)

		user, err := f.users.GetByID(t.Context(), uid)
		require.NoError(t, err)
		require.Equal(t, "nk@example.com", user.Email)
		require.Empty(t, user.PasswordHash, "delegated mode must not store a hash")

		require.Equal(t, []string{"nk@example.com"}, f.provider.VerifSent)
	})

	t.Run("policy violation", func(t *testing.T) {
		f := newAuthFixture(t, Config{})

		_, err := f.service.Register(t.Context(), "nk@example.com", "abc123")
		require.ErrorIs(t, err, apperrors.ErrPasswordPolicy)

		_, err = f.users.GetByEmail(t.Context(), "nk@example.com")
		require.ErrorIs(t, err, apperrors.ErrUserNotFound, "no account should be created")
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newAuthFixture(t, Config{})
		f.provider.AddUser("nk@example.com", "Secur3!pass")

		_, err := f.service.Register(t.Context(), "nk@example.com", "An0ther!pass")
		require.ErrorIs(t, err, apperrors.ErrEmailAlreadyExists)
	})

	t.Run("local mode stores a hash", func(t *testing.T) {
		f := newAuthFixture(t, Config{PasswordCheck: PasswordCheckLocal})

		uid, err := f.service.Register(t.Context(), "nk@example.com", "Secur3!pass")
		require.NoError(t, err)

		user, err := f.users.GetByID(t.Context(), uid)
		require.NoError(t, err)
		require.NotEmpty(t, user.PasswordHash)
		require.NotContains(t, user.PasswordHash, "Secur3!pass")
	})
}

func TestAuthService_FederatedLogin(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		f := newAuthFixture(t, Config{})
		f.provider.AddIDToken("google-token", identity.UserRecord{
			UID:   "uid-g",
			Email: "g@example.com",
			Name:  "G",
		})

		token, uid, err := f.service.FederatedLogin(t.Context(), "google-token")
		require.NoError(t, err)
		require.Equal(t, "uid-g", uid)

		principal, err := f.session.ValidateAccess(token.Value)
		require.NoError(t, err)
		require.Equal(t, "uid-g", principal.SubjectID)

		// First federated login creates the mirror row
		user, err := f.users.GetByID(t.Context(), "uid-g")
		require.NoError(t, err)
		require.Equal(t, "G", user.Name)
	})

	t.Run("invalid token", func(t *testing.T) {
		f := newAuthFixture(t, Config{})

		_, _, err := f.service.FederatedLogin(t.Context(), "bogus")
		require.Error(t, err)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	t.Parallel()

	t.Run("rotates to a fresh pair", func(t *testing.T) {
		f := newAuthFixture(t, Config{})
		uid := f.provider.AddUser("nk@example.com", "Secur3!pass")

		pair, err := f.service.Login(t.Context(), "nk@example.com", "Secur3!pass")
		require.NoError(t, err)

		rotated, err := f.service.Refresh(t.Context(), pair.Refresh.Value)
		require.NoError(t, err)

		principal, err := f.session.ValidateAccess(rotated.Access.Value)
		require.NoError(t, err)
		require.Equal(t, uid, principal.SubjectID)
	})

	t.Run("access token is rejected", func(t *testing.T) {
		f := newAuthFixture(t, Config{})
		f.provider.AddUser("nk@example.com", "Secur3!pass")

		pair, err := f.service.Login(t.Context(), "nk@example.com", "Secur3!pass")
		require.NoError(t, err)

		_, err = f.service.Refresh(t.Context(), pair.Access.Value)
		require.ErrorIs(t, err, apperrors.ErrTokenInvalidType)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		f := newAuthFixture(t, Config{})

		_, err := f.service.Refresh(t.Context(), "garbage")
		require.ErrorIs(t, err, apperrors.ErrTokenMalformed)
	})
}

func TestAuthService_PasswordEmails(t *testing.T) {
	t.Parallel()

	t.Run("forgot password is indistinguishable", func(t *testing.T) {
		f := newAuthFixture(t, Config{})
		f.provider.AddUser("known@example.com", "Secur3!pass")

		require.NoError(t, f.service.ForgotPassword(t.Context(), "known@example.com"))
		require.NoError(t, f.service.ForgotPassword(t.Context(), "unknown@example.com"))
	})

	t.Run("verification email", func(t *testing.T) {
		f := newAuthFixture(t, Config{})

		require.NoError(t, f.service.SendVerificationEmail(t.Context(), "nk@example.com"))
		require.Equal(t, []string{"nk@example.com"}, f.provider.VerifSent)
	})
}
