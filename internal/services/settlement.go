package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/redis"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/storage"
)

// Outcome is the result of one settlement attempt under the session lock.
type Outcome string

const (
	OutcomeNotFound      Outcome = "NOT_FOUND"
	OutcomeStarted       Outcome = "STARTED"
	OutcomeAlreadyBooked Outcome = "ALREADY_BOOKED"
	OutcomeDuplicate     Outcome = "DUPLICATE"
	OutcomeFull          Outcome = "FULL"
	OutcomeBooked        Outcome = "BOOKED"
	// OutcomeClosed is a replay for a payment whose booking has since been
	// cancelled or attended. The payment was already applied once.
	OutcomeClosed        Outcome = "CLOSED"
)

// Seated reports whether the payment ended up holding a booking.
func (o Outcome) Seated() bool {
	return o == OutcomeBooked || o == OutcomeAlreadyBooked
}

// Compensable reports whether a captured payment must be refunded.
func (o Outcome) Compensable() bool {
	switch o {
	case OutcomeNotFound, OutcomeStarted, OutcomeDuplicate, OutcomeFull:
		return true
	}
	return false
}

// Err is the caller-facing error of an unseated outcome.
func (o Outcome) Err() error {
	switch o {
	case OutcomeClosed:
		return ErrBookingClosed
	case OutcomeNotFound:
		return ErrSessionNotFound
	case OutcomeStarted:
		return ErrSessionStarted
	case OutcomeDuplicate:
		return ErrDuplicateBooking
	case OutcomeFull:
		return ErrSessionFull
	}
	return nil
}

const refundTimeout = 30 * time.Second

// Confirm settles a payment the client has completed. It is safe to call
// repeatedly with the same inputs: a settled payment returns its booking and
// a refunded one returns the conflict that caused the refund.
func (s *BookingService) Confirm(ctx context.Context, studioSlug string, req *models.ConfirmRequest) (resp *models.ConfirmResponse, err error) {
	ctx, span := tracer.Start(ctx, "booking.confirm")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if req.PaymentIntentID == "" || req.PaymentID == "" {
		return nil, ErrMissingFields
	}
	span.SetAttributes(
		attribute.String("studio", studioSlug),
		attribute.String("payment_id", req.PaymentID),
		attribute.String("payment_intent_id", req.PaymentIntentID),
	)

	studio, err := s.studio(ctx, studioSlug)
	if err != nil {
		return nil, err
	}
	payment, err := s.store.GetPayment(ctx, req.PaymentID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && payment.StudioID != studio.ID) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment.GatewayIntentID != req.PaymentIntentID {
		s.log.LogSecurity("INTENT_MISMATCH", fmt.Sprintf("Payment %s confirmed with intent %s, recorded %s",
			payment.ID, req.PaymentIntentID, payment.GatewayIntentID))
		return nil, ErrPaymentMismatch
	}

	// A refunded payment, or one whose refund already failed, is never refunded again.
	if payment.Status == models.PaymentRefunded || payment.RefundFailedAt != nil {
		s.log.LogPayment("REPLAY", payment.ID, fmt.Sprintf("Payment already compensated (%s)", payment.RefundReason))
		return nil, replayError(payment.RefundReason)
	}

	intent, err := s.gateway.RetrievePaymentIntent(ctx, studio.GatewayAccountID, payment.GatewayIntentID)
	if err != nil {
		return nil, err
	}
	if !intent.Succeeded() {
		s.log.LogPayment("CONFIRM", payment.ID, fmt.Sprintf("Intent %s is %s, not settling", intent.ID, intent.Status))
		return nil, ErrPaymentNotCompleted
	}

	wasPending := payment.Status == models.PaymentPending
	if err := s.store.MarkPaymentSucceeded(ctx, payment.ID, intent.ChargeID, intent.PaymentMethodID); err != nil {
		return nil, fmt.Errorf("failed to mark payment succeeded: %w", err)
	}
	payment.Status = models.PaymentSucceeded
	payment.GatewayChargeID = intent.ChargeID
	if intent.PaymentMethodID != "" {
		payment.PaymentMethodID = intent.PaymentMethodID
	}
	if wasPending {
		s.publish(models.EventPaymentSucceeded, payment, "", "")
	}

	outcome, booking, session, err := s.settle(ctx, payment)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	s.log.LogBooking("SETTLE", payment.ClassSessionID, fmt.Sprintf("Payment %s settled as %s", payment.ID, outcome))

	if outcome.Compensable() {
		s.compensate(ctx, studio, payment, outcome)
		return nil, outcome.Err()
	}
	if !outcome.Seated() {
		return nil, outcome.Err()
	}

	if outcome == OutcomeBooked {
		s.afterBooked(ctx, studio, session, payment, booking)
	}

	price, _ := booking.PaidAmount.Float64()
	var date time.Time
	if session != nil {
		date = session.StartTime
	}
	return &models.ConfirmResponse{
		Success: true,
		Booking: models.BookingSummary{
			ID:        booking.ID,
			ClassName: payment.ClassName,
			Date:      date,
			Location:  payment.LocationName,
			Teacher:   payment.TeacherName,
			Price:     price,
		},
	}, nil
}

func replayError(reason string) error {
	if err := Outcome(reason).Err(); err != nil {
		return err
	}
	return ErrPaymentNotCompleted
}

// settle runs the authoritative read-decide-write for one payment while
// holding the session lock and the session row lock.
func (s *BookingService) settle(ctx context.Context, payment *models.Payment) (Outcome, *models.Booking, *models.ClassSession, error) {
	release, err := s.locker.Acquire(ctx, payment.ClassSessionID)
	if err != nil {
		if errors.Is(err, redis.ErrLockTimeout) {
			return "", nil, nil, fmt.Errorf("%w: %v", ErrSettlementBusy, err)
		}
		return "", nil, nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	defer release()

	var (
		outcome Outcome
		booking *models.Booking
		session *models.ClassSession
	)
	err = s.store.InSessionTx(ctx, payment.ClassSessionID, func(ctx context.Context, tx storage.SessionTx) error {
		session = tx.Session()

		// A payment applies at most once, so its own booking is checked before
		// anything that could lead to a refund.
		own, err := tx.FindBookingByPayment(ctx, payment.ID)
		switch {
		case err == nil && own.Status.Active():
			outcome, booking = OutcomeAlreadyBooked, own
			return nil
		case err == nil:
			outcome, booking = OutcomeClosed, own
			return nil
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		if session == nil {
			outcome = OutcomeNotFound
			return nil
		}
		if session.HasStarted(s.now()) {
			outcome = OutcomeStarted
			return nil
		}

		if _, err := tx.FindActiveBooking(ctx, payment.ClientID); err == nil {
			outcome = OutcomeDuplicate
			return nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		active, err := tx.CountActiveBookings(ctx)
		if err != nil {
			return err
		}
		if active >= session.Capacity {
			outcome = OutcomeFull
			return nil
		}

		booking = &models.Booking{
			ID:             uuid.NewString(),
			StudioID:       payment.StudioID,
			ClientID:       payment.ClientID,
			ClassSessionID: session.ID,
			Status:         models.BookingConfirmed,
			PaymentID:      payment.ID,
			PaidAmount:     PaidPerCredit(payment),
		}
		if err := tx.CreateBooking(ctx, booking); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				outcome, booking = OutcomeDuplicate, nil
				return nil
			}
			return err
		}
		if extra := payment.Credits() - 1; extra > 0 {
			if err := tx.AddClientCredits(ctx, payment.ClientID, extra); err != nil {
				return err
			}
		}
		outcome = OutcomeBooked
		return nil
	})
	if err != nil {
		// No outcome was reached; the payment stays SUCCEEDED and a retry settles it.
		s.log.Error("SETTLEMENT", fmt.Sprintf("Ledger transaction failed for payment %s: %v", payment.ID, err))
		return "", nil, nil, fmt.Errorf("failed to settle payment: %w", err)
	}
	return outcome, booking, session, nil
}

// compensate refunds a captured payment that could not be seated. A failed
// refund leaves the payment SUCCEEDED for manual follow-up and is never retried here.
func (s *BookingService) compensate(ctx context.Context, studio *models.Studio, payment *models.Payment, outcome Outcome) {
	reason := string(outcome)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()

	refund, err := s.gateway.Refund(ctx, studio.GatewayAccountID, payment.GatewayIntentID, "refund-"+payment.ID)
	if err != nil {
		s.log.LogIntegrity(studio.Slug, payment.GatewayIntentID, reason,
			fmt.Sprintf("Compensating refund failed for payment %s (%d %s): %v", payment.ID, payment.Amount, payment.Currency, err))
		if markErr := s.store.MarkRefundFailed(ctx, payment.ID, reason, err.Error()); markErr != nil {
			s.log.Error("SETTLEMENT", fmt.Sprintf("Failed to record refund failure for payment %s: %v", payment.ID, markErr))
		}
		s.publish(models.EventPaymentRefundFailed, payment, "", reason)
		return
	}

	record := models.RefundRecord{ID: refund.ID, Amount: refund.Amount, At: s.now(), Reason: reason}
	if err := s.store.MarkPaymentRefunded(ctx, payment.ID, record); err != nil {
		s.log.LogIntegrity(studio.Slug, payment.GatewayIntentID, reason,
			fmt.Sprintf("Refund %s issued but payment %s not marked refunded: %v", refund.ID, payment.ID, err))
		return
	}

	s.log.LogPayment("REFUND", payment.ID, fmt.Sprintf("Refunded %d %s (%s)", refund.Amount, payment.Currency, reason))
	s.publish(models.EventPaymentRefunded, payment, "", reason)
}

// HandleSettlementRequest settles a payment from the webhook pipeline. Only
// failures worth retrying are returned; conflicts were already compensated.
func (s *BookingService) HandleSettlementRequest(ctx context.Context, req *models.SettlementRequest) error {
	_, err := s.Confirm(ctx, req.StudioSlug, &models.ConfirmRequest{
		PaymentIntentID: req.PaymentIntentID,
		PaymentID:       req.PaymentID,
	})
	switch KindOf(err) {
	case KindNotFound, KindValidation, KindConflict:
		s.log.Warn("SETTLEMENT", fmt.Sprintf("Settlement request for payment %s ended with: %v", req.PaymentID, err))
		return nil
	}
	return err
}
