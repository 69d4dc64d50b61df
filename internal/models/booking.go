package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingNoShow    BookingStatus = "NO_SHOW"
)

// ActiveBookingStatuses are the statuses that occupy a seat.
var ActiveBookingStatuses = []BookingStatus{BookingConfirmed, BookingPending}

func (s BookingStatus) Active() bool {
	return s == BookingConfirmed || s == BookingPending
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID             string          `json:"id" bun:"id,pk"`
	StudioID       string          `json:"studioId" bun:"studio_id"`
	ClientID       string          `json:"clientId" bun:"client_id"`
	ClassSessionID string          `json:"classSessionId" bun:"class_session_id"`
	Status         BookingStatus   `json:"status" bun:"status"`
	PaymentID      string          `json:"paymentId,omitempty" bun:"payment_id,nullzero"`
	PaidAmount     decimal.Decimal `json:"paidAmount" bun:"paid_amount,type:decimal(10,2)"`
	CreatedAt      time.Time       `json:"createdAt" bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt      time.Time       `json:"updatedAt" bun:"updated_at,nullzero,default:current_timestamp"`
}
