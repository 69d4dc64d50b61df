package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/gateway"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/storage"
)

// Checkout validates a booking request, opens a payment intent or weekly
// subscription with the gateway and records a PENDING payment. The capacity
// and duplicate checks here are advisory; settlement repeats them under lock.
func (s *BookingService) Checkout(ctx context.Context, studioSlug string, req *models.CheckoutRequest) (resp *models.CheckoutResponse, err error) {
	ctx, span := tracer.Start(ctx, "booking.checkout")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if req.ClassSessionID == "" || strings.TrimSpace(req.ClientEmail) == "" {
		return nil, ErrMissingFields
	}
	if len(req.TrackingCode) > models.MaxTrackingCodeLen {
		return nil, ErrTrackingCodeTooLong
	}
	if req.BookingType == "" {
		req.BookingType = models.BookingSingle
	}
	if !req.BookingType.Valid() {
		return nil, ErrInvalidBookingType
	}
	span.SetAttributes(
		attribute.String("studio", studioSlug),
		attribute.String("class_session_id", req.ClassSessionID),
		attribute.String("booking_type", string(req.BookingType)),
	)

	studio, err := s.studio(ctx, studioSlug)
	if err != nil {
		return nil, err
	}
	if !studio.CanCharge() {
		return nil, ErrPaymentsUnavailable
	}

	session, err := s.store.GetClassSession(ctx, studio.ID, req.ClassSessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load class session: %w", err)
	}
	if session.HasStarted(s.now()) {
		return nil, ErrSessionStarted
	}
	active, err := s.store.CountActiveBookings(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	if active >= session.Capacity {
		return nil, ErrSessionFull
	}

	if session.ClassType == nil {
		return nil, fmt.Errorf("class session %s has no class type", session.ID)
	}
	quote, err := QuoteBooking(session.ClassType.Price, req.BookingType, req.PackSize)
	if err != nil {
		return nil, err
	}

	client, err := s.resolveClient(ctx, studio, req)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.FindActiveBooking(ctx, client.ID, session.ID); err == nil {
		return nil, ErrDuplicateBooking
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing booking: %w", err)
	}

	customerID, err := s.ensureCustomer(ctx, studio, client)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:                uuid.NewString(),
		StudioID:          studio.ID,
		ClientID:          client.ID,
		ClassSessionID:    session.ID,
		Amount:            quote.MinorUnits(),
		Currency:          studio.Currency,
		Status:            models.PaymentPending,
		BookingType:       req.BookingType,
		CreditsPurchased:  quote.Credits,
		UnitPrice:         quote.UnitPrice,
		AutoRenew:         req.BookingType == models.BookingRecurring || (req.BookingType == models.BookingPack && req.AutoRenew),
		ClassName:         session.ClassName(),
		TeacherName:       session.TeacherName(),
		LocationName:      session.LocationName(),
		TrackingCode:      strings.TrimSpace(req.TrackingCode),
		GatewayCustomerID: customerID,
	}
	metadata := paymentMetadata(studio, payment)

	var clientSecret string
	if req.BookingType == models.BookingRecurring {
		clientSecret, err = s.openSubscription(ctx, studio, session, payment, metadata)
	} else {
		clientSecret, err = s.openIntent(ctx, studio, session, payment, metadata)
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.SavePayment(ctx, payment); err != nil {
		if payment.SubscriptionID != "" {
			s.cancelOrphan(ctx, studio, payment.SubscriptionID)
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	s.log.LogPayment("CHECKOUT", payment.ID, fmt.Sprintf("%s checkout for session %s: %d %s, %d credit(s), intent %s",
		payment.BookingType, session.ID, payment.Amount, payment.Currency, payment.CreditsPurchased, payment.GatewayIntentID))

	amount, _ := payment.MajorAmount().Float64()
	return &models.CheckoutResponse{
		ClientSecret:     clientSecret,
		PaymentIntentID:  payment.GatewayIntentID,
		PaymentID:        payment.ID,
		Amount:           amount,
		Currency:         payment.Currency,
		BookingType:      payment.BookingType,
		CreditsPurchased: payment.CreditsPurchased,
		AutoRenew:        payment.AutoRenew,
		SubscriptionID:   payment.SubscriptionID,
	}, nil
}

func (s *BookingService) resolveClient(ctx context.Context, studio *models.Studio, req *models.CheckoutRequest) (*models.Client, error) {
	email := strings.ToLower(strings.TrimSpace(req.ClientEmail))

	client, err := s.store.FindClientByEmail(ctx, studio.ID, email)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}

	client, err = s.store.CreateClient(ctx, &models.Client{
		ID:        uuid.NewString(),
		StudioID:  studio.ID,
		Email:     email,
		FirstName: strings.TrimSpace(req.ClientFirstName),
		LastName:  strings.TrimSpace(req.ClientLastName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	s.log.Info("CLIENT", fmt.Sprintf("Client %s registered with studio %s", client.ID, studio.Slug))
	return client, nil
}

// ensureCustomer creates the gateway customer once and remembers it on the client.
func (s *BookingService) ensureCustomer(ctx context.Context, studio *models.Studio, client *models.Client) (string, error) {
	if client.GatewayCustomerID != "" {
		return client.GatewayCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, studio.GatewayAccountID, gateway.CustomerRequest{
		Email:    client.Email,
		Name:     strings.TrimSpace(client.FirstName + " " + client.LastName),
		Metadata: map[string]string{gateway.MetaClientID: client.ID, gateway.MetaStudio: studio.Slug},
	})
	if err != nil {
		return "", err
	}
	if err := s.store.SetClientCustomerID(ctx, client.ID, customerID); err != nil {
		return "", fmt.Errorf("failed to save gateway customer: %w", err)
	}
	client.GatewayCustomerID = customerID
	return customerID, nil
}

func paymentMetadata(studio *models.Studio, p *models.Payment) map[string]string {
	meta := map[string]string{
		gateway.MetaPaymentID:      p.ID,
		gateway.MetaStudio:         studio.Slug,
		gateway.MetaClassSessionID: p.ClassSessionID,
		gateway.MetaClientID:       p.ClientID,
		gateway.MetaBookingType:    string(p.BookingType),
		gateway.MetaCredits:        strconv.Itoa(p.CreditsPurchased),
		gateway.MetaClassName:      p.ClassName,
		gateway.MetaTeacherName:    p.TeacherName,
		gateway.MetaLocationName:   p.LocationName,
	}
	if p.TrackingCode != "" {
		meta[gateway.MetaTrackingCode] = p.TrackingCode
	}
	return meta
}

func describe(session *models.ClassSession, p *models.Payment) string {
	switch p.BookingType {
	case models.BookingPack:
		return fmt.Sprintf("%d-class pack: %s", p.CreditsPurchased, session.ClassName())
	case models.BookingRecurring:
		return fmt.Sprintf("Weekly %s with %s", session.ClassName(), session.TeacherName())
	}
	return fmt.Sprintf("%s on %s", session.ClassName(), session.StartTime.Format("Mon 2 Jan 15:04"))
}

func (s *BookingService) openIntent(ctx context.Context, studio *models.Studio, session *models.ClassSession, p *models.Payment, meta map[string]string) (string, error) {
	intent, err := s.gateway.CreatePaymentIntent(ctx, studio.GatewayAccountID, gateway.IntentRequest{
		Amount:            p.Amount,
		Currency:          p.Currency,
		CustomerID:        p.GatewayCustomerID,
		Description:       describe(session, p),
		SaveForOffSession: p.BookingType == models.BookingPack && p.AutoRenew,
		Metadata:          meta,
	})
	if err != nil {
		return "", err
	}
	p.GatewayIntentID = intent.ID
	return intent.ClientSecret, nil
}

// openSubscription starts a weekly subscription whose first invoice the client
// pays now. A live subscription for the same class blocks a second one.
func (s *BookingService) openSubscription(ctx context.Context, studio *models.Studio, session *models.ClassSession, p *models.Payment, meta map[string]string) (string, error) {
	existing, err := s.gateway.ListSubscriptions(ctx, studio.GatewayAccountID, p.GatewayCustomerID)
	if err != nil {
		return "", err
	}
	for _, sub := range existing {
		if sub.Live() && sub.Metadata[gateway.MetaClassSessionID] == session.ID {
			return "", ErrDuplicateSubscription
		}
	}

	sub, err := s.gateway.CreateSubscription(ctx, studio.GatewayAccountID, gateway.SubscriptionRequest{
		CustomerID:  p.GatewayCustomerID,
		Currency:    p.Currency,
		ProductName: describe(session, p),
		UnitAmount:  p.Amount,
		Interval:    gateway.IntervalWeek,
		Metadata:    meta,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubscriptionInit, err)
	}

	if sub.ClientSecret == "" || sub.PaymentIntentID == "" {
		s.log.Warn("CHECKOUT", fmt.Sprintf("Subscription %s has no payable first invoice, cancelling", sub.ID))
		s.cancelOrphan(ctx, studio, sub.ID)
		return "", ErrSubscriptionInit
	}
	// The invoice intent is what the webhook sees, so it needs the booking metadata too.
	if err := s.gateway.TagPaymentIntent(ctx, studio.GatewayAccountID, sub.PaymentIntentID, meta); err != nil {
		s.log.Warn("CHECKOUT", fmt.Sprintf("Could not tag intent %s of subscription %s, cancelling: %v", sub.PaymentIntentID, sub.ID, err))
		s.cancelOrphan(ctx, studio, sub.ID)
		return "", fmt.Errorf("%w: %v", ErrSubscriptionInit, err)
	}

	p.GatewayIntentID = sub.PaymentIntentID
	p.SubscriptionID = sub.ID
	if !sub.CurrentPeriodEnd.IsZero() {
		next := sub.CurrentPeriodEnd
		p.NextChargeAt = &next
	}
	return sub.ClientSecret, nil
}

func (s *BookingService) cancelOrphan(ctx context.Context, studio *models.Studio, subscriptionID string) {
	if err := s.gateway.CancelSubscription(ctx, studio.GatewayAccountID, subscriptionID); err != nil {
		s.log.Error("CHECKOUT", fmt.Sprintf("Orphaned subscription %s on %s could not be cancelled: %v", subscriptionID, studio.GatewayAccountID, err))
	}
}
