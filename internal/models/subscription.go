package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	BillingCycleMonthly = "Monthly"
	BillingCycleYearly  = "Yearly"

	SubscriptionActive    = "Active"
	SubscriptionCancelled = "Cancelled"
)

type Subscription struct {
	ID              uuid.UUID
	UserID          string
	ServiceName     string
	Cost            decimal.Decimal
	BillingCycle    string
	NextRenewalDate string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
