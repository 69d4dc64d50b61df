package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

const effectsTimeout = 30 * time.Second

// afterBooked runs the post-settlement side effects in the background. None of
// them can undo the booking; failures are logged.
func (s *BookingService) afterBooked(ctx context.Context, studio *models.Studio, session *models.ClassSession, payment *models.Payment, booking *models.Booking) {
	s.effects.Add(1)
	go func() {
		defer s.effects.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), effectsTimeout)
		defer cancel()

		ctx, span := tracer.Start(ctx, "booking.after_booked")
		defer span.End()

		if plan, err := s.plans.Sync(ctx, payment, session); err != nil {
			s.log.Error("PLAN", fmt.Sprintf("Standing plan sync failed for payment %s: %v", payment.ID, err))
		} else if plan != nil {
			s.publish(models.EventPlanUpserted, payment, booking.ID, string(plan.Kind))
		}

		s.recordConversion(ctx, payment)
		s.notify(ctx, studio, session, payment, booking)
		s.publish(models.EventBookingConfirmed, payment, booking.ID, "")
	}()
}

func (s *BookingService) recordConversion(ctx context.Context, payment *models.Payment) {
	if payment.TrackingCode == "" {
		return
	}
	err := s.store.RecordConversion(ctx, &models.Conversion{
		ID:           uuid.NewString(),
		StudioID:     payment.StudioID,
		TrackingCode: payment.TrackingCode,
		PaymentID:    payment.ID,
		ClientID:     payment.ClientID,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
	})
	if err != nil {
		s.log.Error("ATTRIBUTION", fmt.Sprintf("Conversion for %s not recorded: %v", payment.TrackingCode, err))
	}
}

func (s *BookingService) notify(ctx context.Context, studio *models.Studio, session *models.ClassSession, payment *models.Payment, booking *models.Booking) {
	if s.notifier == nil {
		return
	}
	client, err := s.store.GetClient(ctx, payment.ClientID)
	if err != nil {
		s.log.Error("NOTIFY", fmt.Sprintf("Client %s not loaded for confirmation: %v", payment.ClientID, err))
		return
	}

	n := &models.BookingNotification{
		BookingID:    booking.ID,
		StudioName:   studio.Name,
		ClientEmail:  client.Email,
		ClientName:   strings.TrimSpace(client.FirstName + " " + client.LastName),
		ClassName:    payment.ClassName,
		TeacherName:  payment.TeacherName,
		LocationName: payment.LocationName,
		StartTime:    session.StartTime,
		PaidAmount:   payment.MajorAmount().StringFixed(2),
		Currency:     strings.ToUpper(payment.Currency),
		BookingType:  string(payment.BookingType),
		CreditsAdded: payment.Credits() - 1,
	}
	if err := s.notifier.NotifyBookingConfirmed(ctx, n); err != nil {
		s.log.Error("NOTIFY", fmt.Sprintf("Confirmation for booking %s not sent: %v", booking.ID, err))
	}
}
