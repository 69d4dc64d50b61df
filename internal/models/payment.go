package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

var paymentStatusRank = map[PaymentStatus]int{
	PaymentPending:   0,
	PaymentSucceeded: 1,
	PaymentRefunded:  2,
}

// CanMoveTo reports whether next is reachable from s. Status only ever moves
// forward; staying put is allowed so repeated confirmations are harmless.
func (s PaymentStatus) CanMoveTo(next PaymentStatus) bool {
	from, ok := paymentStatusRank[s]
	if !ok {
		return false
	}
	to, ok := paymentStatusRank[next]
	if !ok {
		return false
	}
	return to == from || to == from+1
}

type BookingType string

const (
	BookingSingle    BookingType = "single"
	BookingPack      BookingType = "pack"
	BookingRecurring BookingType = "recurring"
)

func (t BookingType) Valid() bool {
	switch t {
	case BookingSingle, BookingPack, BookingRecurring:
		return true
	}
	return false
}

// Payment is one checkout attempt. Everything settlement needs to act is
// stored here as typed columns; gateway metadata is only a copy.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID             string        `json:"id" bun:"id,pk"`
	StudioID       string        `json:"studioId" bun:"studio_id"`
	ClientID       string        `json:"clientId" bun:"client_id"`
	ClassSessionID string        `json:"classSessionId" bun:"class_session_id"`
	Amount         int64         `json:"amount" bun:"amount"` // minor units
	Currency       string        `json:"currency" bun:"currency"`
	Status         PaymentStatus `json:"status" bun:"status"`

	BookingType      BookingType     `json:"bookingType" bun:"booking_type"`
	CreditsPurchased int             `json:"creditsPurchased" bun:"credits_purchased"`
	UnitPrice        decimal.Decimal `json:"unitPrice" bun:"unit_price,type:decimal(10,2)"`
	AutoRenew        bool            `json:"autoRenew" bun:"auto_renew"`
	ClassName        string          `json:"className" bun:"class_name"`
	TeacherName      string          `json:"teacherName" bun:"teacher_name"`
	LocationName     string          `json:"locationName" bun:"location_name"`
	TrackingCode     string          `json:"trackingCode,omitempty" bun:"tracking_code,nullzero"`

	GatewayIntentID   string     `json:"paymentIntentId" bun:"gateway_intent_id"`
	GatewayChargeID   string     `json:"chargeId,omitempty" bun:"gateway_charge_id,nullzero"`
	GatewayCustomerID string     `json:"-" bun:"gateway_customer_id,nullzero"`
	PaymentMethodID   string     `json:"-" bun:"payment_method_id,nullzero"`
	SubscriptionID    string     `json:"subscriptionId,omitempty" bun:"subscription_id,nullzero"`
	NextChargeAt      *time.Time `json:"nextChargeAt,omitempty" bun:"next_charge_at,nullzero"`

	RefundID       string     `json:"refundId,omitempty" bun:"refund_id,nullzero"`
	RefundAmount   int64      `json:"refundAmount,omitempty" bun:"refund_amount"`
	RefundedAt     *time.Time `json:"refundedAt,omitempty" bun:"refunded_at,nullzero"`
	RefundReason   string     `json:"refundReason,omitempty" bun:"refund_reason,nullzero"`
	RefundFailedAt *time.Time `json:"refundFailedAt,omitempty" bun:"refund_failed_at,nullzero"`
	RefundError    string     `json:"refundError,omitempty" bun:"refund_error,nullzero"`

	CreatedAt time.Time `json:"createdAt" bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt time.Time `json:"updatedAt" bun:"updated_at,nullzero,default:current_timestamp"`
}

// MajorAmount converts the stored minor-unit amount to a decimal (factor 100).
func (p *Payment) MajorAmount() decimal.Decimal {
	return decimal.New(p.Amount, -2)
}

// Credits is never below one; every payment pays for at least the booking it creates.
func (p *Payment) Credits() int {
	if p.CreditsPurchased < 1 {
		return 1
	}
	return p.CreditsPurchased
}

// RefundRecord is what the gateway reported for a compensating refund.
type RefundRecord struct {
	ID     string
	Amount int64
	At     time.Time
	Reason string
}
