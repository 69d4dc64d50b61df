package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookEvent is the subset of a Stripe event the booking flow acts on.
type WebhookEvent struct {
	ID       string
	Type     string
	Account  string
	IntentID string
	Status   string
	Metadata map[string]string
}

// ParseWebhook verifies the Stripe-Signature header and decodes payment intent events.
// Events for other object types come back with an empty IntentID.
func ParseWebhook(payload []byte, signature, secret string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Account: event.Account,
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	var object struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return nil, fmt.Errorf("failed to decode event object: %w", err)
	}
	if object.Object != "payment_intent" {
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	out.IntentID = pi.ID
	out.Status = string(pi.Status)
	out.Metadata = pi.Metadata
	return out, nil
}
