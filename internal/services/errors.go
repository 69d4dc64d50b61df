package services

import (
	"errors"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/gateway"
)

// Validation errors: bad input or unknown resources. Nothing has been written.
var (
	ErrMissingFields       = errors.New("Missing required fields")
	ErrInvalidEmail        = errors.New("Invalid email address")
	ErrTrackingCodeTooLong = errors.New("Tracking code must be at most 100 characters")
	ErrStudioNotFound      = errors.New("Studio not found")
	ErrSessionNotFound     = errors.New("Class session not found")
	ErrPaymentNotFound     = errors.New("Payment not found")
	ErrPaymentMismatch     = errors.New("Payment does not match this payment intent")
	ErrInvalidBookingType  = errors.New("Invalid booking type")
	ErrInvalidPackSize     = errors.New("Invalid pack size")
	ErrPaymentsUnavailable = errors.New("This studio is not set up to accept payments yet")
)

// State conflicts: the request was valid but the class cannot take it.
var (
	ErrSessionStarted        = errors.New("This class has already started")
	ErrSessionFull           = errors.New("This class is full")
	ErrDuplicateBooking      = errors.New("You are already booked into this class")
	ErrDuplicateSubscription = errors.New("You already have a recurring booking for this class")
	ErrPaymentNotCompleted   = errors.New("Payment not completed")
	ErrBookingClosed         = errors.New("This payment was already used for a booking that is no longer active")
)

// Gateway and transient failures.
var (
	ErrSubscriptionInit = errors.New("Could not start the recurring booking")
	ErrSettlementBusy   = errors.New("This class is busy, please retry in a moment")
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindGateway
)

// KindOf classifies err for the HTTP layer.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrStudioNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrPaymentNotFound):
		return KindNotFound
	case errors.Is(err, ErrMissingFields),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrTrackingCodeTooLong),
		errors.Is(err, ErrPaymentMismatch),
		errors.Is(err, ErrInvalidBookingType),
		errors.Is(err, ErrInvalidPackSize),
		errors.Is(err, ErrPaymentsUnavailable):
		return KindValidation
	case errors.Is(err, ErrSessionStarted),
		errors.Is(err, ErrSessionFull),
		errors.Is(err, ErrDuplicateBooking),
		errors.Is(err, ErrDuplicateSubscription),
		errors.Is(err, ErrPaymentNotCompleted),
		errors.Is(err, ErrBookingClosed),
		errors.Is(err, ErrSubscriptionInit):
		return KindConflict
	case errors.Is(err, gateway.ErrGateway):
		return KindGateway
	}
	return KindInternal
}

var public = []error{
	ErrMissingFields, ErrInvalidEmail, ErrTrackingCodeTooLong, ErrStudioNotFound, ErrSessionNotFound, ErrPaymentNotFound,
	ErrPaymentMismatch, ErrInvalidBookingType, ErrInvalidPackSize, ErrPaymentsUnavailable,
	ErrSessionStarted, ErrSessionFull, ErrDuplicateBooking, ErrDuplicateSubscription,
	ErrPaymentNotCompleted, ErrBookingClosed, ErrSubscriptionInit, ErrSettlementBusy,
}

// PublicMessage returns the caller-facing text of a known error, or "" when
// err carries internal detail that must not leak.
func PublicMessage(err error) string {
	for _, e := range public {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return ""
}
