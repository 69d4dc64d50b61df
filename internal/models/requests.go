package models

import "time"

// MaxTrackingCodeLen matches payments.tracking_code.
const MaxTrackingCodeLen = 100

// CheckoutRequest is the body of POST /booking/:studio/create-payment-intent.
type CheckoutRequest struct {
	ClassSessionID  string      `json:"classSessionId" binding:"required"`
	ClientEmail     string      `json:"clientEmail" binding:"required,email"`
	ClientFirstName string      `json:"clientFirstName"`
	ClientLastName  string      `json:"clientLastName"`
	TrackingCode    string      `json:"trackingCode,omitempty" binding:"max=100"`
	BookingType     BookingType `json:"bookingType"`
	PackSize        int         `json:"packSize,omitempty"`
	AutoRenew       bool        `json:"autoRenew,omitempty"`
}

type CheckoutResponse struct {
	ClientSecret     string      `json:"clientSecret"`
	PaymentIntentID  string      `json:"paymentIntentId"`
	PaymentID        string      `json:"paymentId"`
	Amount           float64     `json:"amount"`
	Currency         string      `json:"currency"`
	BookingType      BookingType `json:"bookingType"`
	CreditsPurchased int         `json:"creditsPurchased"`
	AutoRenew        bool        `json:"autoRenew"`
	SubscriptionID   string      `json:"subscriptionId,omitempty"`
}

// ConfirmRequest is the body of POST /booking/:studio/confirm-payment.
type ConfirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
	PaymentID       string `json:"paymentId" binding:"required"`
}

type BookingSummary struct {
	ID        string    `json:"id"`
	ClassName string    `json:"className"`
	Date      time.Time `json:"date"`
	Location  string    `json:"location"`
	Teacher   string    `json:"teacher"`
	Price     float64   `json:"price"`
}

type ConfirmResponse struct {
	Success bool           `json:"success"`
	Booking BookingSummary `json:"booking"`
}

type PaymentStatusResponse struct {
	PaymentID       string        `json:"paymentId"`
	PaymentIntentID string        `json:"paymentIntentId"`
	Status          PaymentStatus `json:"status"`
	Amount          float64       `json:"amount"`
	Currency        string        `json:"currency"`
	BookingType     BookingType   `json:"bookingType"`
	RefundID        string        `json:"refundId,omitempty"`
	RefundReason    string        `json:"refundReason,omitempty"`
	RefundedAt      *time.Time    `json:"refundedAt,omitempty"`
}
