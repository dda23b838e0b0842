package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/handlers/render"
	"github.com/subtrackhq/subtrack/internal/handlers/userctx"
	"github.com/subtrackhq/subtrack/internal/logger"
	"github.com/subtrackhq/subtrack/internal/models"
	"github.com/subtrackhq/subtrack/internal/service/subscription"
)

type subscriptionRequest struct {
	UserID          string          `json:"user_id" validate:"required"`
	ServiceName     string          `json:"service_name" validate:"required,min=1,max=100"`
	Cost            decimal.Decimal `json:"cost" validate:"required"`
	BillingCycle    string          `json:"billing_cycle" validate:"required,oneof=Monthly Yearly"`
	NextRenewalDate string          `json:"next_renewal_date" validate:"required"`
	Status          string          `json:"status" validate:"required,oneof=Active Cancelled"`
}

type subscriptionResponse struct {
	SubscriptionID  uuid.UUID       `json:"subscription_id"`
	UserID          string          `json:"user_id"`
	ServiceName     string          `json:"service_name"`
	Cost            decimal.Decimal `json:"cost"`
	BillingCycle    string          `json:"billing_cycle"`
	NextRenewalDate string          `json:"next_renewal_date"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// subscriptionError maps service errors to the boundary format. Records
// owned by somebody else surface as not found; the ownership rejection
// on writes is the only 403.
func subscriptionError(w http.ResponseWriter, err error, l logger.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrSubscriptionNotFound):
		render.Detail(w, "Subscription not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrForbidden):
		render.Detail(w, "Unauthorized", http.StatusForbidden)
	default:
		l.Error("subscription request failed", "error", err)
		render.Detail(w, "Internal server error", http.StatusInternalServerError)
	}
}

func subscriptionToResponse(sub models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		SubscriptionID:  sub.ID,
		UserID:          sub.UserID,
		ServiceName:     sub.ServiceName,
		Cost:            sub.Cost,
		BillingCycle:    sub.BillingCycle,
		NextRenewalDate: sub.NextRenewalDate,
		Status:          sub.Status,
		CreatedAt:       sub.CreatedAt,
		UpdatedAt:       sub.UpdatedAt,
	}
}

func handleListSubscriptions(subs subscriptionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := userctx.FromContext(r.Context())
		if !ok {
			render.Unauthorized(w, "Authentication required")
			return
		}

		list, err := subs.List(r.Context(), principal.SubjectID)
		if err != nil {
			subscriptionError(w, err, l)
			return
		}

		response := make([]subscriptionResponse, 0, len(list))
		for _, sub := range list {
			response = append(response, subscriptionToResponse(sub))
		}

		render.JSON(w, response)
	})
}

func handleGetSubscription(subs subscriptionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := userctx.FromContext(r.Context())
		if !ok {
			render.Unauthorized(w, "Authentication required")
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.Detail(w, "Subscription not found", http.StatusNotFound)
			return
		}

		sub, err := subs.Get(r.Context(), id, principal.SubjectID)
		if err != nil {
			subscriptionError(w, err, l)
			return
		}

		render.JSON(w, subscriptionToResponse(sub))
	})
}

func handleCreateSubscription(subs subscriptionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := userctx.FromContext(r.Context())
		if !ok {
			render.Unauthorized(w, "Authentication required")
			return
		}

		data, err := render.BindAndValidate[subscriptionRequest](w, r)
		if err != nil {
			return
		}

		// The body carries a user id, it must match the authenticated subject
		if data.UserID != principal.SubjectID {
			subscriptionError(w, apperrors.ErrForbidden, l)
			return
		}

		sub, err := subs.Create(r.Context(), principal.SubjectID, subscription.Params{
			ServiceName:     data.ServiceName,
			Cost:            data.Cost,
			BillingCycle:    data.BillingCycle,
			NextRenewalDate: data.NextRenewalDate,
			Status:          data.Status,
		})
		if err != nil {
			subscriptionError(w, err, l)
			return
		}

		render.JSON(w, subscriptionToResponse(sub))
	})
}

func handleUpdateSubscription(subs subscriptionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := userctx.FromContext(r.Context())
		if !ok {
			render.Unauthorized(w, "Authentication required")
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.Detail(w, "Subscription not found", http.StatusNotFound)
			return
		}

		data, err := render.BindAndValidate[subscriptionRequest](w, r)
		if err != nil {
			return
		}

		if data.UserID != principal.SubjectID {
			subscriptionError(w, apperrors.ErrForbidden, l)
			return
		}

		sub, err := subs.Update(r.Context(), id, principal.SubjectID, subscription.Params{
			ServiceName:     data.ServiceName,
			Cost:            data.Cost,
			BillingCycle:    data.BillingCycle,
			NextRenewalDate: data.NextRenewalDate,
			Status:          data.Status,
		})
		if err != nil {
			subscriptionError(w, err, l)
			return
		}

		render.JSON(w, subscriptionToResponse(sub))
	})
}

func handleDeleteSubscription(subs subscriptionService, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := userctx.FromContext(r.Context())
		if !ok {
			render.Unauthorized(w, "Authentication required")
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.Detail(w, "Subscription not found", http.StatusNotFound)
			return
		}

		err = subs.Delete(r.Context(), id, principal.SubjectID)
		if err != nil {
			subscriptionError(w, err, l)
			return
		}

		render.JSON(w, response{Message: "Subscription deleted successfully"})
	})
}

func handleMonthlyTotal(subs subscriptionService, l logger.Logger) http.Handler {
	type response struct {
		Total decimal.Decimal `json:"total"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := userctx.FromContext(r.Context())
		if !ok {
			render.Unauthorized(w, "Authentication required")
			return
		}

		total, err := subs.MonthlyTotal(r.Context(), principal.SubjectID)
		if err != nil {
			subscriptionError(w, err, l)
			return
		}

		render.JSON(w, response{Total: total})
	})
}
