package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/gateway"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

func TestConfirm_BooksSingleClass(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(resp.PaymentIntentID)

	out, err := f.confirm(resp)
	require.NoError(t, err)
	f.svc.Wait()

	assert.True(t, out.Success)
	assert.Equal(t, "Reformer Flow", out.Booking.ClassName)
	assert.Equal(t, "Maya Ortiz", out.Booking.Teacher)
	assert.Equal(t, "Studio A", out.Booking.Location)
	assert.Equal(t, f.start, out.Booking.Date)
	assert.Equal(t, 20.0, out.Booking.Price)

	p := f.payment(t, resp.PaymentID)
	assert.Equal(t, models.PaymentSucceeded, p.Status)
	assert.Equal(t, "ch_"+resp.PaymentIntentID, p.GatewayChargeID)

	bookings := f.store.Bookings(sessionID)
	require.Len(t, bookings, 1)
	assert.Equal(t, models.BookingConfirmed, bookings[0].Status)
	assert.Equal(t, resp.PaymentID, bookings[0].PaymentID)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "ana@example.com", f.notifier.sent[0].ClientEmail)
	assert.Equal(t, "20.00", f.notifier.sent[0].PaidAmount)
	assert.Contains(t, f.events.types(), models.EventPaymentSucceeded)
	assert.Contains(t, f.events.types(), models.EventBookingConfirmed)
	assert.Zero(t, f.gw.refundCount())
}

func TestConfirm_PackCreditsAndPaidAmount(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingPack, 10, false)
	f.gw.succeed(resp.PaymentIntentID)

	out, err := f.confirm(resp)
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, 16.0, out.Booking.Price)

	bookings := f.store.Bookings(sessionID)
	require.Len(t, bookings, 1)
	assert.Equal(t, "16", bookings[0].PaidAmount.String())

	p := f.payment(t, resp.PaymentID)
	client, err := f.store.GetClient(context.Background(), p.ClientID)
	require.NoError(t, err)
	assert.Equal(t, 9, client.Credits)

	// Not auto-renewing, so no standing plan.
	assert.Empty(t, f.store.Plans(p.ClientID))
}

func TestConfirm_IsIdempotent(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingPack, 5, false)
	f.gw.succeed(resp.PaymentIntentID)

	first, err := f.confirm(resp)
	require.NoError(t, err)
	second, err := f.confirm(resp)
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, first.Booking.ID, second.Booking.ID)
	assert.Len(t, f.store.Bookings(sessionID), 1)
	assert.Zero(t, f.gw.refundCount())

	p := f.payment(t, resp.PaymentID)
	client, err := f.store.GetClient(context.Background(), p.ClientID)
	require.NoError(t, err)
	assert.Equal(t, 4, client.Credits)
	assert.Len(t, f.notifier.sent, 1)
}

func TestConfirm_ReplayAfterClassStartedKeepsBooking(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(resp.PaymentIntentID)

	first, err := f.confirm(resp)
	require.NoError(t, err)
	f.svc.Wait()

	f.svc.now = func() time.Time { return f.start.Add(time.Minute) }
	second, err := f.confirm(resp)
	require.NoError(t, err)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)

	assert.Zero(t, f.gw.refundCount())
	assert.Equal(t, models.PaymentSucceeded, f.payment(t, resp.PaymentID).Status)
	bookings := f.store.Bookings(sessionID)
	require.Len(t, bookings, 1)
	assert.Equal(t, models.BookingConfirmed, bookings[0].Status)
}

func TestConfirm_ReplayAfterSessionRemovedKeepsBooking(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(resp.PaymentIntentID)

	first, err := f.confirm(resp)
	require.NoError(t, err)
	f.svc.Wait()

	f.store.DeleteClassSession(sessionID)
	second, err := f.confirm(resp)
	require.NoError(t, err)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)
	assert.True(t, second.Booking.Date.IsZero())

	assert.Zero(t, f.gw.refundCount())
	assert.Equal(t, models.PaymentSucceeded, f.payment(t, resp.PaymentID).Status)
	assert.Len(t, f.store.Bookings(sessionID), 1)
}

func TestConfirm_ReplayAfterBookingCancelledAppliesOnce(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingPack, 10, false)
	f.gw.succeed(resp.PaymentIntentID)

	_, err := f.confirm(resp)
	require.NoError(t, err)
	f.svc.Wait()

	bookings := f.store.Bookings(sessionID)
	require.Len(t, bookings, 1)
	cancelled := *bookings[0]
	cancelled.Status = models.BookingCancelled
	f.store.PutBooking(&cancelled)

	_, err = f.confirm(resp)
	assert.ErrorIs(t, err, ErrBookingClosed)
	assert.Equal(t, KindConflict, KindOf(err))
	f.svc.Wait()

	assert.Len(t, f.store.Bookings(sessionID), 1)
	assert.Zero(t, f.gw.refundCount())
	assert.Equal(t, models.PaymentSucceeded, f.payment(t, resp.PaymentID).Status)

	client, err := f.store.GetClient(context.Background(), cancelled.ClientID)
	require.NoError(t, err)
	assert.Equal(t, 9, client.Credits)
	assert.Len(t, f.notifier.sent, 1)
}

func TestConfirm_PaymentNotCompleted(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)

	_, err := f.confirm(resp)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "Payment not completed", err.Error())

	assert.Equal(t, models.PaymentPending, f.payment(t, resp.PaymentID).Status)
	assert.Empty(t, f.store.Bookings(sessionID))
	assert.Zero(t, f.gw.refundCount())
}

func TestConfirm_GatewayErrorDoesNotMutate(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(resp.PaymentIntentID)
	f.gw.retrieveErr = fmt.Errorf("%w: timeout", gateway.ErrGateway)

	_, err := f.confirm(resp)
	assert.Equal(t, KindGateway, KindOf(err))
	assert.Equal(t, models.PaymentPending, f.payment(t, resp.PaymentID).Status)
	assert.Empty(t, f.store.Bookings(sessionID))
}

func TestConfirm_SessionStartedRefunds(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(resp.PaymentIntentID)
	f.svc.now = func() time.Time { return f.start.Add(time.Minute) }

	_, err := f.confirm(resp)
	assert.ErrorIs(t, err, ErrSessionStarted)

	p := f.payment(t, resp.PaymentID)
	assert.Equal(t, models.PaymentRefunded, p.Status)
	assert.NotEmpty(t, p.RefundID)
	assert.Equal(t, int64(2000), p.RefundAmount)
	assert.Equal(t, string(OutcomeStarted), p.RefundReason)
	assert.NotNil(t, p.RefundedAt)
	assert.Empty(t, f.store.Bookings(sessionID))
	assert.Contains(t, f.events.types(), models.EventPaymentRefunded)
}

func TestConfirm_SessionRemovedRefunds(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(resp.PaymentIntentID)
	f.store.DeleteClassSession(sessionID)

	_, err := f.confirm(resp)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, models.PaymentRefunded, f.payment(t, resp.PaymentID).Status)
}

func TestConfirm_ReplayAfterRefundDoesNotRefundTwice(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(resp.PaymentIntentID)
	f.svc.now = func() time.Time { return f.start.Add(time.Minute) }

	_, err := f.confirm(resp)
	require.ErrorIs(t, err, ErrSessionStarted)
	_, err = f.confirm(resp)
	assert.ErrorIs(t, err, ErrSessionStarted)

	assert.Equal(t, 1, f.gw.refundCount())
}

func TestConfirm_CapacityRace(t *testing.T) {
	f := newFixture(t, 1)
	a := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	b := f.checkout(t, "ben@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(a.PaymentIntentID)
	f.gw.succeed(b.PaymentIntentID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, resp := range []*models.CheckoutResponse{a, b} {
		wg.Add(1)
		go func(i int, resp *models.CheckoutResponse) {
			defer wg.Done()
			_, errs[i] = f.confirm(resp)
		}(i, resp)
	}
	wg.Wait()
	f.svc.Wait()

	var booked, full int
	for _, err := range errs {
		switch {
		case err == nil:
			booked++
		case errors.Is(err, ErrSessionFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, booked)
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, f.activeBookings())
	assert.Equal(t, 1, f.gw.refundCount())

	statuses := map[models.PaymentStatus]int{}
	for _, resp := range []*models.CheckoutResponse{a, b} {
		statuses[f.payment(t, resp.PaymentID).Status]++
	}
	assert.Equal(t, 1, statuses[models.PaymentSucceeded])
	assert.Equal(t, 1, statuses[models.PaymentRefunded])
}

func TestConfirm_ManyConcurrentConfirmationsRespectCapacity(t *testing.T) {
	const capacity = 3
	f := newFixture(t, capacity)

	var checkouts []*models.CheckoutResponse
	for i := 0; i < 8; i++ {
		resp := f.checkout(t, fmt.Sprintf("client%d@example.com", i), models.BookingSingle, 0, false)
		f.gw.succeed(resp.PaymentIntentID)
		checkouts = append(checkouts, resp)
	}

	var wg sync.WaitGroup
	for _, resp := range checkouts {
		wg.Add(2)
		go func(resp *models.CheckoutResponse) {
			defer wg.Done()
			_, _ = f.confirm(resp)
		}(resp)
		go func(resp *models.CheckoutResponse) {
			defer wg.Done()
			_, _ = f.confirm(resp)
		}(resp)
	}
	wg.Wait()
	f.svc.Wait()

	assert.Equal(t, capacity, f.activeBookings())
	assert.Equal(t, len(checkouts)-capacity, f.gw.refundCount())

	// Every succeeded payment holds exactly one booking.
	held := map[string]int{}
	for _, b := range f.store.Bookings(sessionID) {
		held[b.PaymentID]++
	}
	for _, resp := range checkouts {
		p := f.payment(t, resp.PaymentID)
		switch p.Status {
		case models.PaymentSucceeded:
			assert.Equal(t, 1, held[p.ID])
		case models.PaymentRefunded:
			assert.Zero(t, held[p.ID])
		default:
			t.Fatalf("payment %s left %s", p.ID, p.Status)
		}
	}
}

func TestConfirm_DuplicatePaymentForSameClientIsRefunded(t *testing.T) {
	f := newFixture(t, 5)
	first := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	second := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(first.PaymentIntentID)
	f.gw.succeed(second.PaymentIntentID)

	_, err := f.confirm(first)
	require.NoError(t, err)
	_, err = f.confirm(second)
	assert.ErrorIs(t, err, ErrDuplicateBooking)
	f.svc.Wait()

	assert.Equal(t, 1, f.activeBookings())
	assert.Equal(t, models.PaymentRefunded, f.payment(t, second.PaymentID).Status)
	assert.Equal(t, string(OutcomeDuplicate), f.payment(t, second.PaymentID).RefundReason)
}

func TestConfirm_RefundFailureIsLeftForReconciliation(t *testing.T) {
	f := newFixture(t, 1)
	a := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	b := f.checkout(t, "ben@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(a.PaymentIntentID)
	f.gw.succeed(b.PaymentIntentID)

	_, err := f.confirm(a)
	require.NoError(t, err)

	f.gw.refundErr = fmt.Errorf("%w: charge_already_refunded", gateway.ErrGateway)
	_, err = f.confirm(b)
	assert.ErrorIs(t, err, ErrSessionFull)
	f.svc.Wait()

	p := f.payment(t, b.PaymentID)
	assert.Equal(t, models.PaymentSucceeded, p.Status)
	assert.NotNil(t, p.RefundFailedAt)
	assert.Equal(t, string(OutcomeFull), p.RefundReason)
	assert.Contains(t, p.RefundError, "charge_already_refunded")

	logs := f.logs.String()
	assert.Contains(t, logs, "INTEGRITY")
	assert.Contains(t, logs, b.PaymentIntentID)
	assert.Contains(t, logs, studioSlug)
	assert.Contains(t, f.events.types(), models.EventPaymentRefundFailed)

	report, err := f.svc.Reconciliation(context.Background(), studioSlug)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, b.PaymentID, report[0].ID)

	// No automatic retry on a repeated confirmation.
	f.gw.refundErr = nil
	_, err = f.confirm(b)
	assert.ErrorIs(t, err, ErrSessionFull)
	assert.Zero(t, f.gw.refundCount())
}

func TestConfirm_LockTimeoutFailsClosed(t *testing.T) {
	f := newFixture(t, 5)
	f.svc.locker = timeoutLocker{}
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(resp.PaymentIntentID)

	_, err := f.confirm(resp)
	assert.ErrorIs(t, err, ErrSettlementBusy)
	assert.Equal(t, KindInternal, KindOf(err))

	assert.Empty(t, f.store.Bookings(sessionID))
	assert.Zero(t, f.gw.refundCount())
	assert.Equal(t, models.PaymentSucceeded, f.payment(t, resp.PaymentID).Status)
}

func TestConfirm_LedgerFailureDoesNotRefund(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(resp.PaymentIntentID)
	f.svc.store = failingTxStore{f.store}

	_, err := f.confirm(resp)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Zero(t, f.gw.refundCount())
	assert.Equal(t, models.PaymentSucceeded, f.payment(t, resp.PaymentID).Status)

	// A retry against a healthy ledger settles it.
	f.svc.store = f.store
	_, err = f.confirm(resp)
	require.NoError(t, err)
	f.svc.Wait()
	assert.Equal(t, 1, f.activeBookings())
}

func TestConfirm_RejectsCrossWiredRequests(t *testing.T) {
	f := newFixture(t, 5)
	a := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)
	b := f.checkout(t, "ben@example.com", models.BookingSingle, 0, false)
	f.gw.succeed(a.PaymentIntentID)

	_, err := f.svc.Confirm(context.Background(), studioSlug, &models.ConfirmRequest{
		PaymentIntentID: a.PaymentIntentID, PaymentID: b.PaymentID,
	})
	assert.ErrorIs(t, err, ErrPaymentMismatch)

	f.store.PutStudio(&models.Studio{ID: "studio-2", Slug: "other", GatewayAccountID: "acct_2", GatewayChargesEnabled: true})
	_, err = f.svc.Confirm(context.Background(), "other", &models.ConfirmRequest{
		PaymentIntentID: a.PaymentIntentID, PaymentID: a.PaymentID,
	})
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	_, err = f.svc.Confirm(context.Background(), studioSlug, &models.ConfirmRequest{PaymentID: a.PaymentID})
	assert.ErrorIs(t, err, ErrMissingFields)

	assert.Empty(t, f.store.Bookings(sessionID))
	assert.Equal(t, models.PaymentPending, f.payment(t, a.PaymentID).Status)
}

func TestConfirm_AutoRenewPackSyncsPlan(t *testing.T) {
	f := newFixture(t, 5)
	resp, err := f.svc.Checkout(context.Background(), studioSlug, &models.CheckoutRequest{
		ClassSessionID: sessionID, ClientEmail: "ana@example.com", BookingType: models.BookingPack,
		PackSize: 5, AutoRenew: true, TrackingCode: "IG-SPRING",
	})
	require.NoError(t, err)
	f.gw.succeed(resp.PaymentIntentID)

	_, err = f.confirm(resp)
	require.NoError(t, err)
	f.svc.Wait()

	p := f.payment(t, resp.PaymentID)
	plans := f.store.Plans(p.ClientID)
	require.Len(t, plans, 1)
	assert.Equal(t, models.PlanPackAutoRenew, plans[0].Kind)
	assert.Equal(t, 5, plans[0].PackSize)
	assert.Equal(t, "pm_card", plans[0].PaymentMethodID)
	assert.Equal(t, resp.PaymentID, plans[0].LastPaymentID)

	conv, ok := f.store.Conversion(resp.PaymentID)
	require.True(t, ok)
	assert.Equal(t, "IG-SPRING", conv.TrackingCode)
	assert.Equal(t, int64(9000), conv.Amount)
	assert.Contains(t, f.events.types(), models.EventPlanUpserted)
}

func TestConfirm_RecurringSyncsWeeklyPlan(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingRecurring, 0, false)
	f.gw.succeed(resp.PaymentIntentID)

	_, err := f.confirm(resp)
	require.NoError(t, err)
	f.svc.Wait()

	p := f.payment(t, resp.PaymentID)
	plans := f.store.Plans(p.ClientID)
	require.Len(t, plans, 1)
	plan := plans[0]
	assert.Equal(t, models.PlanWeeklyRecurring, plan.Kind)
	assert.Equal(t, resp.SubscriptionID, plan.SubscriptionID)
	assert.Equal(t, int(f.start.Weekday()), plan.DayOfWeek)
	assert.Equal(t, f.start.Format("15:04"), plan.StartTime)
	require.NotNil(t, plan.NextChargeAt)
	assert.True(t, plan.NextChargeAt.Equal(*p.NextChargeAt))
}

func TestHandleSettlementRequest(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)

	req := &models.SettlementRequest{StudioSlug: studioSlug, PaymentIntentID: resp.PaymentIntentID, PaymentID: resp.PaymentID}

	// Not yet paid: a business outcome, nothing to retry.
	assert.NoError(t, f.svc.HandleSettlementRequest(context.Background(), req))

	f.gw.succeed(resp.PaymentIntentID)
	assert.NoError(t, f.svc.HandleSettlementRequest(context.Background(), req))
	f.svc.Wait()
	assert.Equal(t, 1, f.activeBookings())

	f.gw.retrieveErr = fmt.Errorf("%w: unavailable", gateway.ErrGateway)
	assert.Error(t, f.svc.HandleSettlementRequest(context.Background(), req))
}

func TestGetPaymentScopedToStudio(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.checkout(t, "ana@example.com", models.BookingSingle, 0, false)

	p, err := f.svc.GetPayment(context.Background(), studioSlug, resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, resp.PaymentIntentID, p.GatewayIntentID)

	f.store.PutStudio(&models.Studio{ID: "studio-2", Slug: "other"})
	_, err = f.svc.GetPayment(context.Background(), "other", resp.PaymentID)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrap: %w", ErrStudioNotFound)))
	assert.Equal(t, KindConflict, KindOf(ErrSessionFull))
	assert.Equal(t, KindValidation, KindOf(ErrPaymentMismatch))
	assert.Equal(t, KindGateway, KindOf(fmt.Errorf("%w: boom", gateway.ErrGateway)))
	assert.Equal(t, KindInternal, KindOf(errors.New("disk full")))
	assert.Equal(t, KindInternal, KindOf(ErrSettlementBusy))
}

func TestOutcome(t *testing.T) {
	assert.True(t, OutcomeBooked.Seated())
	assert.True(t, OutcomeAlreadyBooked.Seated())
	assert.False(t, OutcomeFull.Seated())
	assert.NoError(t, OutcomeBooked.Err())
	assert.ErrorIs(t, OutcomeDuplicate.Err(), ErrDuplicateBooking)
	assert.ErrorIs(t, replayError("garbage"), ErrPaymentNotCompleted)
	assert.False(t, OutcomeClosed.Seated())
	assert.False(t, OutcomeClosed.Compensable())
	assert.True(t, OutcomeStarted.Compensable())
	assert.ErrorIs(t, OutcomeClosed.Err(), ErrBookingClosed)
}
