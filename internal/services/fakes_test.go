package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/gateway"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/redis"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/storage"
)

type fakeGateway struct {
	mu sync.Mutex

	seq           int
	customers     int
	intents       map[string]*gateway.Intent
	intentReqs    []gateway.IntentRequest
	subscriptions []*gateway.Subscription
	cancelled     []string
	refunds       []string
	refundKeys    map[string]*gateway.Refund

	refundErr    error
	retrieveErr  error
	noSubSecret  bool
	subCreateErr error
	tagErr       error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents:    make(map[string]*gateway.Intent),
		refundKeys: make(map[string]*gateway.Refund),
	}
}

func (g *fakeGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *fakeGateway) CreateCustomer(_ context.Context, _ string, _ gateway.CustomerRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customers++
	return g.next("cus"), nil
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, _ string, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.next("pi")
	in := &gateway.Intent{
		ID:           id,
		ClientSecret: id + "_secret_test",
		Status:       "requires_payment_method",
		Amount:       req.Amount,
		CustomerID:   req.CustomerID,
		Metadata:     req.Metadata,
	}
	g.intents[id] = in
	g.intentReqs = append(g.intentReqs, req)
	cp := *in
	return &cp, nil
}

func (g *fakeGateway) RetrievePaymentIntent(_ context.Context, _ string, intentID string) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	in, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("%w: no such intent %s", gateway.ErrGateway, intentID)
	}
	cp := *in
	return &cp, nil
}

func (g *fakeGateway) TagPaymentIntent(_ context.Context, _ string, intentID string, metadata map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tagErr != nil {
		return g.tagErr
	}
	in, ok := g.intents[intentID]
	if !ok {
		return fmt.Errorf("%w: no such intent %s", gateway.ErrGateway, intentID)
	}
	if in.Metadata == nil {
		in.Metadata = make(map[string]string)
	}
	for k, v := range metadata {
		in.Metadata[k] = v
	}
	return nil
}

func (g *fakeGateway) CreateSubscription(_ context.Context, _ string, req gateway.SubscriptionRequest) (*gateway.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.subCreateErr != nil {
		return nil, g.subCreateErr
	}
	sub := &gateway.Subscription{
		ID:               g.next("sub"),
		Status:           "incomplete",
		CurrentPeriodEnd: time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second),
		Metadata:         req.Metadata,
	}
	if !g.noSubSecret {
		id := g.next("pi")
		g.intents[id] = &gateway.Intent{ID: id, ClientSecret: id + "_secret_test", Status: "requires_payment_method", Amount: req.UnitAmount}
		sub.PaymentIntentID = id
		sub.ClientSecret = id + "_secret_test"
	}
	g.subscriptions = append(g.subscriptions, sub)
	cp := *sub
	return &cp, nil
}

func (g *fakeGateway) ListSubscriptions(_ context.Context, _ string, _ string) ([]*gateway.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*gateway.Subscription, 0, len(g.subscriptions))
	for _, sub := range g.subscriptions {
		cp := *sub
		out = append(out, &cp)
	}
	return out, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, _ string, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancelled = append(g.cancelled, id)
	for _, sub := range g.subscriptions {
		if sub.ID == id {
			sub.Status = "canceled"
		}
	}
	return nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, intentID, key string) (*gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.refundErr != nil {
		return nil, g.refundErr
	}
	if re, ok := g.refundKeys[key]; ok {
		return re, nil
	}
	in := g.intents[intentID]
	re := &gateway.Refund{ID: g.next("re"), Amount: in.Amount, Status: "succeeded"}
	g.refundKeys[key] = re
	g.refunds = append(g.refunds, intentID)
	return re, nil
}

// succeed simulates the client completing payment.
func (g *fakeGateway) succeed(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	in := g.intents[intentID]
	in.Status = gateway.IntentSucceeded
	in.ChargeID = "ch_" + intentID
	in.PaymentMethodID = "pm_card"
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.BookingEvent
}

func (p *recordingPublisher) PublishBookingEvent(event *models.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*models.BookingNotification
}

func (n *recordingNotifier) NotifyBookingConfirmed(_ context.Context, msg *models.BookingNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type timeoutLocker struct{}

func (timeoutLocker) Acquire(context.Context, string) (func(), error) {
	return nil, redis.ErrLockTimeout
}

// failingTxStore makes every settlement transaction fail.
type failingTxStore struct {
	*storage.InMemoryStore
}

func (s failingTxStore) InSessionTx(context.Context, string, func(context.Context, storage.SessionTx) error) error {
	return errors.New("deadlock found when trying to get lock")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	store    *storage.InMemoryStore
	gw       *fakeGateway
	events   *recordingPublisher
	notifier *recordingNotifier
	logs     *syncBuffer
	svc      *BookingService
	start    time.Time
}

const (
	studioSlug = "zen-pilates"
	sessionID  = "cs-1"
)

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()

	store := storage.NewInMemoryStore()
	store.PutStudio(&models.Studio{
		ID: "studio-1", Slug: studioSlug, Name: "Zen Pilates", Currency: "usd",
		GatewayAccountID: "acct_1", GatewayChargesEnabled: true,
	})
	store.PutClassType(&models.ClassType{ID: "ct-1", StudioID: "studio-1", Name: "Reformer Flow", Price: decimal.NewFromInt(20)})
	store.PutTeacher(&models.Teacher{ID: "t-1", StudioID: "studio-1", FirstName: "Maya", LastName: "Ortiz"})
	store.PutLocation(&models.Location{ID: "l-1", StudioID: "studio-1", Name: "Studio A"})

	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Minute)
	store.PutClassSession(&models.ClassSession{
		ID: sessionID, StudioID: "studio-1", ClassTypeID: "ct-1", TeacherID: "t-1", LocationID: "l-1",
		StartTime: start, EndTime: start.Add(time.Hour), Capacity: capacity,
	})

	f := &fixture{
		store:    store,
		gw:       newFakeGateway(),
		events:   &recordingPublisher{},
		notifier: &recordingNotifier{},
		logs:     &syncBuffer{},
		start:    start,
	}
	f.svc = NewBookingService(store, f.gw, redis.NewLocalLock(time.Second), f.events, f.notifier, logger.NewWithWriter(f.logs))
	return f
}

func (f *fixture) checkout(t *testing.T, email string, bookingType models.BookingType, packSize int, autoRenew bool) *models.CheckoutResponse {
	t.Helper()
	resp, err := f.svc.Checkout(context.Background(), studioSlug, &models.CheckoutRequest{
		ClassSessionID:  sessionID,
		ClientEmail:     email,
		ClientFirstName: "Test",
		ClientLastName:  "Client",
		BookingType:     bookingType,
		PackSize:        packSize,
		AutoRenew:       autoRenew,
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	return resp
}

func (f *fixture) confirm(resp *models.CheckoutResponse) (*models.ConfirmResponse, error) {
	return f.svc.Confirm(context.Background(), studioSlug, &models.ConfirmRequest{
		PaymentIntentID: resp.PaymentIntentID,
		PaymentID:       resp.PaymentID,
	})
}

func (f *fixture) payment(t *testing.T, id string) *models.Payment {
	t.Helper()
	p, err := f.store.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("payment %s: %v", id, err)
	}
	return p
}

func (f *fixture) activeBookings() int {
	n, _ := f.store.CountActiveBookings(context.Background(), sessionID)
	return n
}
