package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/subtrackhq/subtrack/internal/models"
)

// User repository interface
// Stores a local mirror of identity provider records
type UserRepo interface {
	// Insert user or refresh mirrored fields if the id is known already
	Upsert(ctx context.Context, user models.User) (models.User, error)

	// Get user by provider subject id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
}

// RefreshToken repository interface
// Used only by the single-use rotation mode
type RefreshTokenRepo interface {
	// Save issued refresh token metadata
	Save(ctx context.Context, token models.RefreshToken) error

	// Return the token by jti and mark it used in the same statement
	// If the token is already used, must not overwrite the existing usedAt
	// and must return apperrors.ErrRefreshTokenUsed
	// If the token is unknown must return apperrors.ErrRefreshTokenNotFound
	GetAndMarkUsed(ctx context.Context, id uuid.UUID) (models.RefreshToken, error)

	// Remove tokens that expired before the given time
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Subscription repository interface
type SubscriptionRepo interface {
	Create(ctx context.Context, sub models.Subscription) (models.Subscription, error)

	// If subscription not found must return apperrors.ErrSubscriptionNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.Subscription, error)

	ListByUser(ctx context.Context, userID string) ([]models.Subscription, error)
	ListActiveByUser(ctx context.Context, userID string) ([]models.Subscription, error)

	// If subscription not found must return apperrors.ErrSubscriptionNotFound
	Update(ctx context.Context, sub models.Subscription) (models.Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Storage aggregates repositories working over the same connection
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Subscription() SubscriptionRepo

	InTx(ctx context.Context, fn func(Storage) error) error
}
