package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/models"
)

type UserRepo struct {
	DB DBTX
}

const upsertUser = `-- name: UpsertUser
INSERT INTO users (id, email, name, photo_url, email_verified, password_hash)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET email = EXCLUDED.email,
    name = EXCLUDED.name,
    photo_url = EXCLUDED.photo_url,
    email_verified = EXCLUDED.email_verified,
    password_hash = EXCLUDED.password_hash
RETURNING id, email, name, photo_url, email_verified, password_hash, created_at
`

func (r *UserRepo) Upsert(ctx context.Context, user models.User) (models.User, error) {
	rows, _ := r.DB.Query(ctx, upsertUser,
		user.ID, user.Email, user.Name, user.PhotoURL, user.EmailVerified, user.PasswordHash)
	saved, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// Same email under a different subject id
			return saved, apperrors.ErrEmailAlreadyExists
		}

		return saved, fmt.Errorf("db error: %w", err)
	}

	return saved, nil
}

const getUserByID = `-- name: getUserByID
SELECT id, email, name, photo_url, email_verified, password_hash, created_at
FROM users
WHERE id = $1
`

func (r *UserRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const getUserByEmail = `-- name: getUserByEmail
SELECT id, email, name, photo_url, email_verified, password_hash, created_at
FROM users
WHERE email = $1
`

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PhotoURL, &u.EmailVerified, &u.PasswordHash, &u.CreatedAt)
	return u, err
}
