package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
)

var ErrClientInitFailed = errors.New("failed to initialize Stripe client")

var tracer = otel.Tracer("studio-booking/gateway")

// StripeGateway talks to Stripe on behalf of connected accounts.
type StripeGateway struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrClientInitFailed
	}

	sc := client.New(secretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGateway{client: sc, log: log}, nil
}

func (g *StripeGateway) span(ctx context.Context, name, account string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "stripe."+name, trace.WithAttributes(attribute.String("stripe.account", account)))
}

func (g *StripeGateway) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	g.log.Error("STRIPE", fmt.Sprintf("%s failed: %v", op, err))
	return fmt.Errorf("%w: %s: %v", ErrGateway, op, err)
}

func scoped(ctx context.Context, account string) stripe.Params {
	p := stripe.Params{Context: ctx}
	if account != "" {
		p.SetStripeAccount(account)
	}
	return p
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, account string, req CustomerRequest) (string, error) {
	ctx, span := g.span(ctx, "customers.create", account)
	defer span.End()

	params := &stripe.CustomerParams{
		Params: scoped(ctx, account),
		Email:  stripe.String(req.Email),
		Name:   stripe.String(req.Name),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	cus, err := g.client.Customers.New(params)
	if err != nil {
		return "", g.fail(span, "create customer", err)
	}
	g.log.Info("STRIPE", fmt.Sprintf("Customer %s created on %s", cus.ID, account))
	return cus.ID, nil
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, account string, req IntentRequest) (*Intent, error) {
	ctx, span := g.span(ctx, "payment_intents.create", account)
	defer span.End()

	params := &stripe.PaymentIntentParams{
		Params:      scoped(ctx, account),
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Customer:    stripe.String(req.CustomerID),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.SaveForOffSession {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return nil, g.fail(span, "create payment intent", err)
	}

	g.log.LogPayment("INTENT", req.Metadata[MetaPaymentID], fmt.Sprintf("Payment intent %s created for %d %s", pi.ID, req.Amount, req.Currency))
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) RetrievePaymentIntent(ctx context.Context, account, intentID string) (*Intent, error) {
	ctx, span := g.span(ctx, "payment_intents.retrieve", account)
	defer span.End()

	params := &stripe.PaymentIntentParams{Params: scoped(ctx, account)}
	pi, err := g.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, g.fail(span, "retrieve payment intent", err)
	}
	span.SetAttributes(attribute.String("stripe.intent_status", string(pi.Status)))
	return intentFromStripe(pi), nil
}

// TagPaymentIntent copies metadata onto an intent the gateway created for us,
// such as the first invoice payment of a subscription.
func (g *StripeGateway) TagPaymentIntent(ctx context.Context, account, intentID string, metadata map[string]string) error {
	ctx, span := g.span(ctx, "payment_intents.update", account)
	defer span.End()

	params := &stripe.PaymentIntentParams{Params: scoped(ctx, account)}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if _, err := g.client.PaymentIntents.Update(intentID, params); err != nil {
		return g.fail(span, "update payment intent", err)
	}
	return nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	in := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Metadata:     pi.Metadata,
	}
	if pi.LatestCharge != nil {
		in.ChargeID = pi.LatestCharge.ID
	}
	if pi.PaymentMethod != nil {
		in.PaymentMethodID = pi.PaymentMethod.ID
	}
	if pi.Customer != nil {
		in.CustomerID = pi.Customer.ID
	}
	return in
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, account string, req SubscriptionRequest) (*Subscription, error) {
	ctx, span := g.span(ctx, "subscriptions.create", account)
	defer span.End()

	product, err := g.client.Products.New(&stripe.ProductParams{
		Params: scoped(ctx, account),
		Name:   stripe.String(req.ProductName),
	})
	if err != nil {
		return nil, g.fail(span, "create product", err)
	}

	params := subscriptionParams(ctx, account, req, product.ID)
	sub, err := g.client.Subscriptions.New(params)
	if err != nil {
		return nil, g.fail(span, "create subscription", err)
	}

	out := subscriptionFromStripe(sub)
	g.log.Info("STRIPE", fmt.Sprintf("Subscription %s created (status %s, intent %q)", out.ID, out.Status, out.PaymentIntentID))
	return out, nil
}

// subscriptionParams asks for a weekly price on productID whose first invoice
// stays open until the client pays it.
func subscriptionParams(ctx context.Context, account string, req SubscriptionRequest, productID string) *stripe.SubscriptionParams {
	params := &stripe.SubscriptionParams{
		Params:   scoped(ctx, account),
		Customer: stripe.String(req.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{{
			PriceData: &stripe.SubscriptionItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				Product:    stripe.String(productID),
				UnitAmount: stripe.Int64(req.UnitAmount),
				Recurring: &stripe.SubscriptionItemPriceDataRecurringParams{
					Interval: stripe.String(req.Interval),
				},
			},
		}},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.AddExpand("latest_invoice.confirmation_secret")
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

func subscriptionFromStripe(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Metadata: sub.Metadata,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC()
	}
	if inv := sub.LatestInvoice; inv != nil && inv.ConfirmationSecret != nil {
		out.ClientSecret = inv.ConfirmationSecret.ClientSecret
		out.PaymentIntentID = intentIDFromClientSecret(out.ClientSecret)
	}
	return out
}

// intentIDFromClientSecret extracts "pi_123" from "pi_123_secret_abc".
func intentIDFromClientSecret(secret string) string {
	idx := strings.Index(secret, "_secret_")
	if idx <= 0 || !strings.HasPrefix(secret, "pi_") {
		return ""
	}
	return secret[:idx]
}

func (g *StripeGateway) ListSubscriptions(ctx context.Context, account, customerID string) ([]*Subscription, error) {
	ctx, span := g.span(ctx, "subscriptions.list", account)
	defer span.End()

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	if account != "" {
		params.SetStripeAccount(account)
	}

	var out []*Subscription
	it := g.client.Subscriptions.List(params)
	for it.Next() {
		out = append(out, subscriptionFromStripe(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, g.fail(span, "list subscriptions", err)
	}
	return out, nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, account, subscriptionID string) error {
	ctx, span := g.span(ctx, "subscriptions.cancel", account)
	defer span.End()

	_, err := g.client.Subscriptions.Cancel(subscriptionID, &stripe.SubscriptionCancelParams{
		Params: scoped(ctx, account),
	})
	if err != nil {
		return g.fail(span, "cancel subscription", err)
	}
	g.log.Warn("STRIPE", fmt.Sprintf("Subscription %s cancelled", subscriptionID))
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, account, intentID, idempotencyKey string) (*Refund, error) {
	ctx, span := g.span(ctx, "refunds.create", account)
	defer span.End()

	params := &stripe.RefundParams{
		Params:        scoped(ctx, account),
		PaymentIntent: stripe.String(intentID),
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	re, err := g.client.Refunds.New(params)
	if err != nil {
		return nil, g.fail(span, "refund", err)
	}

	g.log.LogPayment("REFUND", intentID, fmt.Sprintf("Refund %s issued for %d", re.ID, re.Amount))
	return &Refund{ID: re.ID, Amount: re.Amount, Status: string(re.Status)}, nil
}
