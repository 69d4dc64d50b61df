package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/gateway"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/redis"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/storage"
)

var tracer = otel.Tracer("studio-booking/services")

// EventPublisher receives domain events; the Kafka producer implements it.
type EventPublisher interface {
	PublishBookingEvent(event *models.BookingEvent) error
}

// Notifier delivers booking confirmations.
type Notifier interface {
	NotifyBookingConfirmed(ctx context.Context, n *models.BookingNotification) error
}

// BookingService runs checkout and settlement for every studio.
type BookingService struct {
	store    storage.Store
	gateway  gateway.Gateway
	locker   redis.Locker
	events   EventPublisher
	notifier Notifier
	plans    *PlanSynchronizer
	log      *logger.Logger

	now     func() time.Time
	effects sync.WaitGroup
}

func NewBookingService(store storage.Store, gw gateway.Gateway, locker redis.Locker, events EventPublisher, notifier Notifier, log *logger.Logger) *BookingService {
	return &BookingService{
		store:    store,
		gateway:  gw,
		locker:   locker,
		events:   events,
		notifier: notifier,
		plans:    NewPlanSynchronizer(store, log),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Wait blocks until post-settlement side effects started so far have finished.
func (s *BookingService) Wait() {
	s.effects.Wait()
}

func (s *BookingService) studio(ctx context.Context, slug string) (*models.Studio, error) {
	studio, err := s.store.GetStudioBySlug(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrStudioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load studio: %w", err)
	}
	return studio, nil
}

// GetPayment returns a studio's payment for status polling.
func (s *BookingService) GetPayment(ctx context.Context, studioSlug, paymentID string) (*models.Payment, error) {
	studio, err := s.studio(ctx, studioSlug)
	if err != nil {
		return nil, err
	}
	payment, err := s.store.GetPayment(ctx, paymentID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && payment.StudioID != studio.ID) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return payment, nil
}

// Reconciliation lists payments that were charged, could not be seated and
// could not be refunded. Each needs a manual refund.
func (s *BookingService) Reconciliation(ctx context.Context, studioSlug string) ([]*models.Payment, error) {
	studio, err := s.studio(ctx, studioSlug)
	if err != nil {
		return nil, err
	}
	return s.store.ListRefundFailures(ctx, studio.ID)
}

func (s *BookingService) publish(eventType string, payment *models.Payment, bookingID, reason string) {
	if s.events == nil {
		return
	}
	event := &models.BookingEvent{
		Type:           eventType,
		StudioID:       payment.StudioID,
		PaymentID:      payment.ID,
		PaymentIntent:  payment.GatewayIntentID,
		BookingID:      bookingID,
		ClassSessionID: payment.ClassSessionID,
		ClientID:       payment.ClientID,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		Reason:         reason,
		Timestamp:      s.now(),
	}
	if err := s.events.PublishBookingEvent(event); err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for payment %s: %v", eventType, payment.ID, err))
	}
}
