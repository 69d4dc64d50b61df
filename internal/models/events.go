package models

import "time"

const (
	EventPaymentSucceeded    = "payment.succeeded"
	EventPaymentRefunded     = "payment.refunded"
	EventPaymentRefundFailed = "payment.refund_failed"
	EventBookingConfirmed    = "booking.confirmed"
	EventPlanUpserted        = "plan.upserted"
)

// BookingEvent is published to Kafka for downstream consumers.
type BookingEvent struct {
	Type           string    `json:"type"`
	StudioID       string    `json:"studio_id"`
	PaymentID      string    `json:"payment_id"`
	PaymentIntent  string    `json:"payment_intent_id,omitempty"`
	BookingID      string    `json:"booking_id,omitempty"`
	ClassSessionID string    `json:"class_session_id,omitempty"`
	ClientID       string    `json:"client_id,omitempty"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// SettlementRequest asks the settlement worker to confirm a payment. It is
// produced by the Stripe webhook and consumed from Kafka.
type SettlementRequest struct {
	StudioSlug      string    `json:"studio"`
	PaymentIntentID string    `json:"payment_intent_id"`
	PaymentID       string    `json:"payment_id"`
	EventID         string    `json:"event_id,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
}

// BookingNotification is the payload of a confirmation email job.
type BookingNotification struct {
	BookingID    string    `json:"booking_id"`
	StudioName   string    `json:"studio_name"`
	ClientEmail  string    `json:"client_email"`
	ClientName   string    `json:"client_name"`
	ClassName    string    `json:"class_name"`
	TeacherName  string    `json:"teacher_name"`
	LocationName string    `json:"location_name"`
	StartTime    time.Time `json:"start_time"`
	PaidAmount   string    `json:"paid_amount"`
	Currency     string    `json:"currency"`
	BookingType  string    `json:"booking_type"`
	CreditsAdded int       `json:"credits_added"`
}
