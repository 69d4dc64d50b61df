package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

// InMemoryStore is a ledger for tests and local development. Session
// transactions are serialized per class session and buffer their writes
// until the callback returns nil, mirroring the MySQL row lock.
type InMemoryStore struct {
	mutex sync.RWMutex

	studios     map[string]*models.Studio
	classTypes  map[string]*models.ClassType
	teachers    map[string]*models.Teacher
	locations   map[string]*models.Location
	sessions    map[string]*models.ClassSession
	clients     map[string]*models.Client
	payments    map[string]*models.Payment
	bookings    map[string]*models.Booking
	plans       map[string]*models.StandingPlan
	conversions map[string]*models.Conversion

	sessionLocks map[string]*sync.Mutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		studios:      make(map[string]*models.Studio),
		classTypes:   make(map[string]*models.ClassType),
		teachers:     make(map[string]*models.Teacher),
		locations:    make(map[string]*models.Location),
		sessions:     make(map[string]*models.ClassSession),
		clients:      make(map[string]*models.Client),
		payments:     make(map[string]*models.Payment),
		bookings:     make(map[string]*models.Booking),
		plans:        make(map[string]*models.StandingPlan),
		conversions:  make(map[string]*models.Conversion),
		sessionLocks: make(map[string]*sync.Mutex),
	}
}

// Seed helpers. The scheduling side of the product owns these rows.

func (s *InMemoryStore) PutStudio(studio *models.Studio) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cp := *studio
	s.studios[studio.ID] = &cp
}

func (s *InMemoryStore) PutClassType(ct *models.ClassType) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cp := *ct
	s.classTypes[ct.ID] = &cp
}

func (s *InMemoryStore) PutTeacher(t *models.Teacher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cp := *t
	s.teachers[t.ID] = &cp
}

func (s *InMemoryStore) PutLocation(l *models.Location) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cp := *l
	s.locations[l.ID] = &cp
}

func (s *InMemoryStore) PutClassSession(cs *models.ClassSession) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cp := *cs
	cp.ClassType, cp.Teacher, cp.Location = nil, nil, nil
	s.sessions[cs.ID] = &cp
}

func (s *InMemoryStore) DeleteClassSession(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.sessions, id)
}

func (s *InMemoryStore) PutClient(c *models.Client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cp := *c
	s.clients[c.ID] = &cp
}

func (s *InMemoryStore) PutBooking(b *models.Booking) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cp := *b
	s.bookings[b.ID] = &cp
}

// Bookings returns every booking for a class session, oldest first.
func (s *InMemoryStore) Bookings(sessionID string) []*models.Booking {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []*models.Booking
	for _, b := range s.bookings {
		if b.ClassSessionID == sessionID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Plans returns every standing plan for a client.
func (s *InMemoryStore) Plans(clientID string) []*models.StandingPlan {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []*models.StandingPlan
	for _, p := range s.plans {
		if p.ClientID == clientID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

func (s *InMemoryStore) Conversion(paymentID string) (*models.Conversion, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	c, ok := s.conversions[paymentID]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

func (s *InMemoryStore) GetStudioBySlug(_ context.Context, slug string) (*models.Studio, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, st := range s.studios {
		if st.Slug == slug {
			cp := *st
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// hydrate copies a session and attaches its relations. Caller holds the read lock.
func (s *InMemoryStore) hydrate(cs *models.ClassSession) *models.ClassSession {
	cp := *cs
	if ct, ok := s.classTypes[cs.ClassTypeID]; ok {
		v := *ct
		cp.ClassType = &v
	}
	if t, ok := s.teachers[cs.TeacherID]; ok {
		v := *t
		cp.Teacher = &v
	}
	if l, ok := s.locations[cs.LocationID]; ok {
		v := *l
		cp.Location = &v
	}
	return &cp
}

func (s *InMemoryStore) GetClassSession(_ context.Context, studioID, sessionID string) (*models.ClassSession, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	cs, ok := s.sessions[sessionID]
	if !ok || cs.StudioID != studioID {
		return nil, ErrNotFound
	}
	return s.hydrate(cs), nil
}

func (s *InMemoryStore) countActiveLocked(sessionID string) int {
	n := 0
	for _, b := range s.bookings {
		if b.ClassSessionID == sessionID && b.Status.Active() {
			n++
		}
	}
	return n
}

func (s *InMemoryStore) findActiveLocked(clientID, sessionID string) *models.Booking {
	for _, b := range s.bookings {
		if b.ClientID == clientID && b.ClassSessionID == sessionID && b.Status.Active() {
			cp := *b
			return &cp
		}
	}
	return nil
}

func (s *InMemoryStore) CountActiveBookings(_ context.Context, sessionID string) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.countActiveLocked(sessionID), nil
}

func (s *InMemoryStore) FindActiveBooking(_ context.Context, clientID, sessionID string) (*models.Booking, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if b := s.findActiveLocked(clientID, sessionID); b != nil {
		return b, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) FindClientByEmail(_ context.Context, studioID, email string) (*models.Client, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, c := range s.clients {
		if c.StudioID == studioID && c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) CreateClient(_ context.Context, client *models.Client) (*models.Client, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, c := range s.clients {
		if c.StudioID == client.StudioID && c.Email == client.Email {
			cp := *c
			return &cp, nil
		}
	}
	cp := *client
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.clients[client.ID] = &cp
	out := cp
	return &out, nil
}

func (s *InMemoryStore) GetClient(_ context.Context, id string) (*models.Client, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) SetClientCustomerID(_ context.Context, clientID, customerID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, ok := s.clients[clientID]
	if !ok {
		return ErrNotFound
	}
	c.GatewayCustomerID = customerID
	return nil
}

func (s *InMemoryStore) SavePayment(_ context.Context, payment *models.Payment) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.payments[payment.ID]; exists {
		return fmt.Errorf("failed to save payment: %s already exists", payment.ID)
	}
	cp := *payment
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.payments[payment.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) transition(id string, from, to models.PaymentStatus, apply func(p *models.Payment)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return ErrNotFound
	}
	switch p.Status {
	case to:
		return nil
	case from:
		p.Status = to
		apply(p)
		p.UpdatedAt = time.Now().UTC()
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrStatusConflict, p.Status, to)
}

func (s *InMemoryStore) MarkPaymentSucceeded(_ context.Context, id, chargeID, paymentMethodID string) error {
	return s.transition(id, models.PaymentPending, models.PaymentSucceeded, func(p *models.Payment) {
		p.GatewayChargeID = chargeID
		if paymentMethodID != "" {
			p.PaymentMethodID = paymentMethodID
		}
	})
}

func (s *InMemoryStore) MarkPaymentRefunded(_ context.Context, id string, refund models.RefundRecord) error {
	return s.transition(id, models.PaymentSucceeded, models.PaymentRefunded, func(p *models.Payment) {
		at := refund.At
		p.RefundID = refund.ID
		p.RefundAmount = refund.Amount
		p.RefundedAt = &at
		p.RefundReason = refund.Reason
		p.RefundFailedAt = nil
		p.RefundError = ""
	})
}

func (s *InMemoryStore) MarkRefundFailed(_ context.Context, id, reason, cause string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != models.PaymentSucceeded {
		return nil
	}
	now := time.Now().UTC()
	p.RefundFailedAt = &now
	p.RefundReason = reason
	p.RefundError = cause
	return nil
}

func (s *InMemoryStore) ListRefundFailures(_ context.Context, studioID string) ([]*models.Payment, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []*models.Payment
	for _, p := range s.payments {
		if p.StudioID == studioID && p.Status == models.PaymentSucceeded && p.RefundFailedAt != nil {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RefundFailedAt.Before(*out[j].RefundFailedAt) })
	return out, nil
}

func (s *InMemoryStore) UpsertStandingPlan(_ context.Context, plan *models.StandingPlan) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now().UTC()
	key := plan.Signature()
	if existing, ok := s.plans[key]; ok {
		id, created := existing.ID, existing.CreatedAt
		cp := *plan
		cp.ID, cp.CreatedAt, cp.UpdatedAt, cp.Active = id, created, now, true
		s.plans[key] = &cp
		return nil
	}
	cp := *plan
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.plans[key] = &cp
	return nil
}

func (s *InMemoryStore) RecordConversion(_ context.Context, conversion *models.Conversion) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.conversions[conversion.PaymentID]; ok {
		return nil
	}
	cp := *conversion
	cp.CreatedAt = time.Now().UTC()
	s.conversions[conversion.PaymentID] = &cp
	return nil
}

func (s *InMemoryStore) sessionLock(sessionID string) *sync.Mutex {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	mu, ok := s.sessionLocks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		s.sessionLocks[sessionID] = mu
	}
	return mu
}

func (s *InMemoryStore) InSessionTx(ctx context.Context, sessionID string, fn func(ctx context.Context, tx SessionTx) error) error {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mutex.RLock()
	var session *models.ClassSession
	if cs, ok := s.sessions[sessionID]; ok {
		session = s.hydrate(cs)
	}
	s.mutex.RUnlock()

	tx := &memorySessionTx{store: s, sessionID: sessionID, session: session, credits: make(map[string]int)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memorySessionTx struct {
	store     *InMemoryStore
	sessionID string
	session   *models.ClassSession
	pending   []*models.Booking
	credits   map[string]int
}

func (t *memorySessionTx) Session() *models.ClassSession { return t.session }

func (t *memorySessionTx) FindBookingByPayment(_ context.Context, paymentID string) (*models.Booking, error) {
	for _, b := range t.pending {
		if b.PaymentID == paymentID {
			cp := *b
			return &cp, nil
		}
	}
	t.store.mutex.RLock()
	defer t.store.mutex.RUnlock()
	for _, b := range t.store.bookings {
		if b.PaymentID != "" && b.PaymentID == paymentID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memorySessionTx) FindActiveBooking(_ context.Context, clientID string) (*models.Booking, error) {
	for _, b := range t.pending {
		if b.ClientID == clientID && b.Status.Active() {
			cp := *b
			return &cp, nil
		}
	}
	t.store.mutex.RLock()
	defer t.store.mutex.RUnlock()
	if b := t.store.findActiveLocked(clientID, t.sessionID); b != nil {
		return b, nil
	}
	return nil, ErrNotFound
}

func (t *memorySessionTx) CountActiveBookings(_ context.Context) (int, error) {
	t.store.mutex.RLock()
	defer t.store.mutex.RUnlock()

	n := t.store.countActiveLocked(t.sessionID)
	for _, b := range t.pending {
		if b.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (t *memorySessionTx) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.PaymentID != "" {
		if _, err := t.FindBookingByPayment(ctx, booking.PaymentID); err == nil {
			return ErrDuplicateKey
		}
	}
	if booking.Status.Active() {
		if _, err := t.FindActiveBooking(ctx, booking.ClientID); err == nil {
			return ErrDuplicateKey
		}
	}
	cp := *booking
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	t.pending = append(t.pending, &cp)
	return nil
}

func (t *memorySessionTx) AddClientCredits(_ context.Context, clientID string, delta int) error {
	t.store.mutex.RLock()
	_, ok := t.store.clients[clientID]
	t.store.mutex.RUnlock()
	if !ok {
		return ErrNotFound
	}
	t.credits[clientID] += delta
	return nil
}

func (t *memorySessionTx) commit() {
	t.store.mutex.Lock()
	defer t.store.mutex.Unlock()

	for _, b := range t.pending {
		t.store.bookings[b.ID] = b
	}
	for clientID, delta := range t.credits {
		if c, ok := t.store.clients[clientID]; ok {
			c.Credits += delta
		}
	}
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
