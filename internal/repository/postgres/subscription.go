package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/models"
)

type SubscriptionRepo struct {
	DB DBTX
}

const createSubscription = `-- name: CreateSubscription
INSERT INTO subscriptions (id, user_id, service_name, cost, billing_cycle, next_renewal_date, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, user_id, service_name, cost, billing_cycle, next_renewal_date, status, created_at, updated_at
`

func (r *SubscriptionRepo) Create(ctx context.Context, sub models.Subscription) (models.Subscription, error) {
	rows, _ := r.DB.Query(ctx, createSubscription,
		sub.ID, sub.UserID, sub.ServiceName, sub.Cost, sub.BillingCycle,
		sub.NextRenewalDate, sub.Status, sub.CreatedAt, sub.UpdatedAt)
	saved, err := pgx.CollectOneRow(rows, rowToSubscription)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}

	return saved, nil
}

const getSubscriptionByID = `-- name: getSubscriptionByID
SELECT id, user_id, service_name, cost, billing_cycle, next_renewal_date, status, created_at, updated_at
FROM subscriptions
WHERE id = $1
`

func (r *SubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Subscription, error) {
	rows, _ := r.DB.Query(ctx, getSubscriptionByID, id)
	sub, err := pgx.CollectOneRow(rows, rowToSubscription)

	switch {
	case err == nil:
		return sub, nil
	case errors.Is(err, pgx.ErrNoRows):
		return sub, apperrors.ErrSubscriptionNotFound
	default:
		return sub, fmt.Errorf("db error: %w", err)
	}
}

const listSubscriptionsByUser = `-- name: listSubscriptionsByUser
SELECT id, user_id, service_name, cost, billing_cycle, next_renewal_date, status, created_at, updated_at
FROM subscriptions
WHERE user_id = $1
ORDER BY created_at
`

func (r *SubscriptionRepo) ListByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	rows, _ := r.DB.Query(ctx, listSubscriptionsByUser, userID)
	subs, err := pgx.CollectRows(rows, rowToSubscription)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return subs, nil
}

const listActiveSubscriptionsByUser = `-- name: listActiveSubscriptionsByUser
SELECT id, user_id, service_name, cost, billing_cycle, next_renewal_date, status, created_at, updated_at
FROM subscriptions
WHERE user_id = $1 AND status = 'Active'
ORDER BY created_at
`

func (r *SubscriptionRepo) ListActiveByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	rows, _ := r.DB.Query(ctx, listActiveSubscriptionsByUser, userID)
	subs, err := pgx.CollectRows(rows, rowToSubscription)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return subs, nil
}

const updateSubscription = `-- name: UpdateSubscription
UPDATE subscriptions
SET service_name = $2,
    cost = $3,
    billing_cycle = $4,
    next_renewal_date = $5,
    status = $6,
    updated_at = $7
WHERE id = $1
RETURNING id, user_id, service_name, cost, billing_cycle, next_renewal_date, status, created_at, updated_at
`

func (r *SubscriptionRepo) Update(ctx context.Context, sub models.Subscription) (models.Subscription, error) {
	rows, _ := r.DB.Query(ctx, updateSubscription,
		sub.ID, sub.ServiceName, sub.Cost, sub.BillingCycle,
		sub.NextRenewalDate, sub.Status, sub.UpdatedAt)
	saved, err := pgx.CollectOneRow(rows, rowToSubscription)

	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, pgx.ErrNoRows):
		return saved, apperrors.ErrSubscriptionNotFound
	default:
		return saved, fmt.Errorf("db error: %w", err)
	}
}

const deleteSubscription = `-- name: DeleteSubscription
DELETE FROM subscriptions
WHERE id = $1
`

func (r *SubscriptionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deleteSubscription, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrSubscriptionNotFound
	}

	return nil
}

func rowToSubscription(row pgx.CollectableRow) (models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.ServiceName, &s.Cost, &s.BillingCycle,
		&s.NextRenewalDate, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
