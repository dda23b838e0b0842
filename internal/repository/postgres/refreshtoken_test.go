package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/models"
	"github.com/subtrackhq/subtrack/internal/testutil"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func Test_RefreshTokenRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	saveUser := func(t *testing.T, tx pgx.Tx, id string) {
		t.Helper()
		repo := UserRepo{DB: tx}
		_, err := repo.Upsert(t.Context(), models.User{ID: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}

	token := models.RefreshToken{
		ID:        uuid.New(),
		UserID:    "uid-1",
		CreatedAt: mustParseTime("2024-01-01 19:00:01Z"),
		ExpiresAt: mustParseTime("2200-01-01 03:00:02Z"),
		UsedAt:    nil,
	}

	t.Run("save token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			saveUser(t, tx, "uid-1")
			repo := RefreshTokenRepo{DB: tx}

			err := repo.Save(t.Context(), token)

			require.NoError(t, err)
		})
	})

	t.Run("mark token used", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			saveUser(t, tx, "uid-1")
			repo := RefreshTokenRepo{DB: tx}
			require.NoError(t, repo.Save(t.Context(), token))

			got, err := repo.GetAndMarkUsed(t.Context(), token.ID)

			require.NoError(t, err, "No error must be happen when marking used existed token")
			require.NotNil(t, got.UsedAt, "token must marked used")
			require.WithinDuration(t, time.Now(), *got.UsedAt, 50*time.Millisecond, "should marked as used close to now() enough")
			require.Equal(t, token.UserID, got.UserID)
			require.WithinDuration(t, token.CreatedAt, got.CreatedAt, 0)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, 0)
		})
	})

	t.Run("second mark fails and keeps original used time", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			saveUser(t, tx, "uid-1")
			repo := RefreshTokenRepo{DB: tx}
			require.NoError(t, repo.Save(t.Context(), token))

			first, err := repo.GetAndMarkUsed(t.Context(), token.ID)
			require.NoError(t, err)

			second, err := repo.GetAndMarkUsed(t.Context(), token.ID)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenUsed)
			require.NotNil(t, second.UsedAt)
			require.Equal(t, *first.UsedAt, *second.UsedAt, "usedAt must not be overwritten")
		})
	})

	t.Run("mark used not existed token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			_, err := repo.GetAndMarkUsed(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("delete expired", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			saveUser(t, tx, "uid-1")
			repo := RefreshTokenRepo{DB: tx}

			expired := token
			expired.ID = uuid.New()
			expired.ExpiresAt = mustParseTime("2024-02-01 00:00:00Z")
			require.NoError(t, repo.Save(t.Context(), expired))
			require.NoError(t, repo.Save(t.Context(), token))

			deleted, err := repo.DeleteExpired(t.Context(), time.Now())

			require.NoError(t, err)
			require.Equal(t, int64(1), deleted, "only the expired token should be deleted")

			_, err = repo.GetAndMarkUsed(t.Context(), token.ID)
			require.NoError(t, err, "the live token should survive the sweep")
		})
	})
}
