package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type PlanKind string

const (
	PlanPackAutoRenew   PlanKind = "PACK_AUTO_RENEW"
	PlanWeeklyRecurring PlanKind = "WEEKLY_RECURRING"
)

// StandingPlan lets schedulers outside the request path charge or book on the
// client's behalf later. One row exists per (studio, client, kind, class signature).
type StandingPlan struct {
	bun.BaseModel `bun:"table:standing_plans,alias:sp"`

	ID          string   `json:"id" bun:"id,pk"`
	StudioID    string   `json:"studioId" bun:"studio_id"`
	ClientID    string   `json:"clientId" bun:"client_id"`
	Kind        PlanKind `json:"kind" bun:"kind"`
	ClassTypeID string   `json:"classTypeId" bun:"class_type_id"`
	TeacherID   string   `json:"teacherId" bun:"teacher_id"`
	LocationID  string   `json:"locationId" bun:"location_id"`

	PackSize int    `json:"packSize,omitempty" bun:"pack_size"`
	Amount   int64  `json:"amount" bun:"amount"`
	Currency string `json:"currency" bun:"currency"`

	GatewayCustomerID string     `json:"-" bun:"gateway_customer_id,nullzero"`
	PaymentMethodID   string     `json:"-" bun:"payment_method_id,nullzero"`
	SubscriptionID    string     `json:"subscriptionId,omitempty" bun:"subscription_id,nullzero"`
	DayOfWeek         int        `json:"dayOfWeek" bun:"day_of_week"`
	StartTime         string     `json:"startTime" bun:"start_time"` // HH:MM in the session's location
	NextChargeAt      *time.Time `json:"nextChargeAt,omitempty" bun:"next_charge_at,nullzero"`
	LastPaymentID     string     `json:"lastPaymentId" bun:"last_payment_id"`
	Active            bool       `json:"active" bun:"active"`

	CreatedAt time.Time `json:"createdAt" bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt time.Time `json:"updatedAt" bun:"updated_at,nullzero,default:current_timestamp"`
}

// Signature is the upsert key of the plan.
func (p *StandingPlan) Signature() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", p.StudioID, p.ClientID, p.Kind, p.ClassTypeID, p.TeacherID, p.LocationID)
}

// Conversion attributes a settled payment to a marketing tracking code.
type Conversion struct {
	bun.BaseModel `bun:"table:conversions,alias:cv"`

	ID           string    `json:"id" bun:"id,pk"`
	StudioID     string    `json:"studioId" bun:"studio_id"`
	TrackingCode string    `json:"trackingCode" bun:"tracking_code"`
	PaymentID    string    `json:"paymentId" bun:"payment_id"`
	ClientID     string    `json:"clientId" bun:"client_id"`
	Amount       int64     `json:"amount" bun:"amount"`
	Currency     string    `json:"currency" bun:"currency"`
	CreatedAt    time.Time `json:"createdAt" bun:"created_at,nullzero,default:current_timestamp"`
}
