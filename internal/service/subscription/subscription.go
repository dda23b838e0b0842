package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/models"
	"github.com/subtrackhq/subtrack/internal/repository"
)

var monthsPerYear = decimal.NewFromInt(12)

// Params carries the client-editable subscription fields
type Params struct {
	ServiceName     string
	Cost            decimal.Decimal
	BillingCycle    string
	NextRenewalDate string
	Status          string
}

type Service struct {
	repo repository.SubscriptionRepo
}

func NewService(repo repository.SubscriptionRepo) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, userID string) ([]models.Subscription, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns the subscription if it belongs to the user.
// Records of other users are reported as not found, not as forbidden,
// so their existence is not revealed.
func (s *Service) Get(ctx context.Context, id uuid.UUID, userID string) (models.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return sub, err
	}
	if sub.UserID != userID {
		return models.Subscription{}, apperrors.ErrSubscriptionNotFound
	}

	return sub, nil
}

func (s *Service) Create(ctx context.Context, userID string, params Params) (models.Subscription, error) {
	now := time.Now().Truncate(time.Second)

	sub, err := s.repo.Create(ctx, models.Subscription{
		ID:              uuid.New(),
		UserID:          userID,
		ServiceName:     params.ServiceName,
		Cost:            params.Cost,
		BillingCycle:    params.BillingCycle,
		NextRenewalDate: params.NextRenewalDate,
		Status:          params.Status,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return sub, fmt.Errorf("error while creating subscription. Err: %w", err)
	}

	return sub, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, userID string, params Params) (models.Subscription, error) {
	current, err := s.Get(ctx, id, userID)
	if err != nil {
		return models.Subscription{}, err
	}

	current.ServiceName = params.ServiceName
	current.Cost = params.Cost
	current.BillingCycle = params.BillingCycle
	current.NextRenewalDate = params.NextRenewalDate
	current.Status = params.Status
	current.UpdatedAt = time.Now().Truncate(time.Second)

	return s.repo.Update(ctx, current)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}

	err := s.repo.Delete(ctx, id)
	if err != nil && !errors.Is(err, apperrors.ErrSubscriptionNotFound) {
		return fmt.Errorf("error while deleting subscription. Err: %w", err)
	}

	return err
}

// MonthlyTotal sums active subscriptions normalized to a monthly cost:
// yearly plans contribute a twelfth of their price. Rounded to cents.
func (s *Service) MonthlyTotal(ctx context.Context, userID string) (decimal.Decimal, error) {
	subs, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, sub := range subs {
		cost := sub.Cost
		if sub.BillingCycle == models.BillingCycleYearly {
			cost = cost.Div(monthsPerYear)
		}
		total = total.Add(cost)
	}

	return total.Round(2), nil
}
