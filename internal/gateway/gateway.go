// Package gateway wraps the external payment processor. Every call is made on
// behalf of a studio's connected account.
package gateway

import (
	"context"
	"errors"
	"time"
)

var ErrGateway = errors.New("payment gateway error")

const (
	IntentSucceeded = "succeeded"
	IntervalWeek    = "week"
)

// Metadata keys copied onto gateway objects. The ledger stays authoritative.
const (
	MetaPaymentID      = "payment_id"
	MetaStudio         = "studio"
	MetaClassSessionID = "class_session_id"
	MetaClientID       = "client_id"
	MetaBookingType    = "booking_type"
	MetaCredits        = "credits_purchased"
	MetaClassName      = "class_name"
	MetaTeacherName    = "teacher_name"
	MetaLocationName   = "location_name"
	MetaTrackingCode   = "tracking_code"
)

type CustomerRequest struct {
	Email    string
	Name     string
	Metadata map[string]string
}

type IntentRequest struct {
	Amount      int64
	Currency    string
	CustomerID  string
	Description string
	// SaveForOffSession asks the gateway to keep the payment method for later charges.
	SaveForOffSession bool
	Metadata          map[string]string
}

type Intent struct {
	ID              string
	ClientSecret    string
	Status          string
	Amount          int64
	ChargeID        string
	PaymentMethodID string
	CustomerID      string
	Metadata        map[string]string
}

func (i *Intent) Succeeded() bool { return i.Status == IntentSucceeded }

type SubscriptionRequest struct {
	CustomerID  string
	Currency    string
	ProductName string
	UnitAmount  int64
	Interval    string
	Metadata    map[string]string
}

type Subscription struct {
	ID               string
	Status           string
	PaymentIntentID  string
	ClientSecret     string
	CurrentPeriodEnd time.Time
	Metadata         map[string]string
}

// Live reports whether the subscription still stands or may still become active.
func (s *Subscription) Live() bool {
	switch s.Status {
	case "active", "trialing", "past_due", "unpaid", "incomplete":
		return true
	}
	return false
}

type Refund struct {
	ID     string
	Amount int64
	Status string
}

type Gateway interface {
	CreateCustomer(ctx context.Context, account string, req CustomerRequest) (string, error)
	CreatePaymentIntent(ctx context.Context, account string, req IntentRequest) (*Intent, error)
	RetrievePaymentIntent(ctx context.Context, account, intentID string) (*Intent, error)
	TagPaymentIntent(ctx context.Context, account, intentID string, metadata map[string]string) error
	CreateSubscription(ctx context.Context, account string, req SubscriptionRequest) (*Subscription, error)
	ListSubscriptions(ctx context.Context, account, customerID string) ([]*Subscription, error)
	CancelSubscription(ctx context.Context, account, subscriptionID string) error
	// Refund returns the full captured amount of the intent. The idempotency key
	// makes a repeated call return the original refund.
	Refund(ctx context.Context, account, intentID, idempotencyKey string) (*Refund, error)
}
