package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/storage"
)

// PlanSynchronizer keeps the standing plans that out-of-band schedulers use
// to renew packs and book weekly classes.
type PlanSynchronizer struct {
	store storage.Store
	log   *logger.Logger
}

func NewPlanSynchronizer(store storage.Store, log *logger.Logger) *PlanSynchronizer {
	return &PlanSynchronizer{store: store, log: log}
}

// Sync upserts the plan a settled payment calls for, if any.
func (p *PlanSynchronizer) Sync(ctx context.Context, payment *models.Payment, session *models.ClassSession) (*models.StandingPlan, error) {
	switch {
	case payment.BookingType == models.BookingRecurring:
		return p.UpsertWeeklyBookingPlan(ctx, payment, session)
	case payment.BookingType == models.BookingPack && payment.AutoRenew:
		return p.UpsertPackAutoRenewPlan(ctx, payment, session)
	}
	return nil, nil
}

func basePlan(kind models.PlanKind, payment *models.Payment, session *models.ClassSession) *models.StandingPlan {
	return &models.StandingPlan{
		ID:                uuid.NewString(),
		StudioID:          payment.StudioID,
		ClientID:          payment.ClientID,
		Kind:              kind,
		ClassTypeID:       session.ClassTypeID,
		TeacherID:         session.TeacherID,
		LocationID:        session.LocationID,
		Amount:            payment.Amount,
		Currency:          payment.Currency,
		GatewayCustomerID: payment.GatewayCustomerID,
		PaymentMethodID:   payment.PaymentMethodID,
		DayOfWeek:         int(session.StartTime.Weekday()),
		StartTime:         session.StartTime.Format("15:04"),
		LastPaymentID:     payment.ID,
		Active:            true,
	}
}

// UpsertPackAutoRenewPlan records the saved payment method used to buy the
// next pack once the client's credits run out.
func (p *PlanSynchronizer) UpsertPackAutoRenewPlan(ctx context.Context, payment *models.Payment, session *models.ClassSession) (*models.StandingPlan, error) {
	plan := basePlan(models.PlanPackAutoRenew, payment, session)
	plan.PackSize = payment.Credits()

	if err := p.store.UpsertStandingPlan(ctx, plan); err != nil {
		return nil, err
	}
	p.log.LogBooking("PLAN", session.ID, fmt.Sprintf("Pack auto-renew plan (%d credits) synced for client %s", plan.PackSize, plan.ClientID))
	return plan, nil
}

// UpsertWeeklyBookingPlan records the subscription that books the same class
// slot every week.
func (p *PlanSynchronizer) UpsertWeeklyBookingPlan(ctx context.Context, payment *models.Payment, session *models.ClassSession) (*models.StandingPlan, error) {
	plan := basePlan(models.PlanWeeklyRecurring, payment, session)
	plan.SubscriptionID = payment.SubscriptionID

	next := session.StartTime.AddDate(0, 0, 7)
	if payment.NextChargeAt != nil {
		next = *payment.NextChargeAt
	}
	next = next.UTC().Truncate(time.Second)
	plan.NextChargeAt = &next

	if err := p.store.UpsertStandingPlan(ctx, plan); err != nil {
		return nil, err
	}
	p.log.LogBooking("PLAN", session.ID, fmt.Sprintf("Weekly plan synced for client %s, next charge %s", plan.ClientID, next.Format(time.RFC3339)))
	return plan, nil
}
