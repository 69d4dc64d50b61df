package storage

import (
	"context"
	"errors"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrStatusConflict = errors.New("payment status does not allow this transition")
	ErrDuplicateKey   = errors.New("duplicate booking")
)

// Store is the reservation ledger.
type Store interface {
	GetStudioBySlug(ctx context.Context, slug string) (*models.Studio, error)
	GetClassSession(ctx context.Context, studioID, sessionID string) (*models.ClassSession, error)
	CountActiveBookings(ctx context.Context, sessionID string) (int, error)
	FindActiveBooking(ctx context.Context, clientID, sessionID string) (*models.Booking, error)

	FindClientByEmail(ctx context.Context, studioID, email string) (*models.Client, error)
	// CreateClient inserts the client, or returns the row that won a concurrent insert
	// for the same (studio, email).
	CreateClient(ctx context.Context, client *models.Client) (*models.Client, error)
	GetClient(ctx context.Context, id string) (*models.Client, error)
	SetClientCustomerID(ctx context.Context, clientID, customerID string) error

	SavePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	MarkPaymentSucceeded(ctx context.Context, id, chargeID, paymentMethodID string) error
	MarkPaymentRefunded(ctx context.Context, id string, refund models.RefundRecord) error
	MarkRefundFailed(ctx context.Context, id, reason, cause string) error
	ListRefundFailures(ctx context.Context, studioID string) ([]*models.Payment, error)

	UpsertStandingPlan(ctx context.Context, plan *models.StandingPlan) error
	RecordConversion(ctx context.Context, conversion *models.Conversion) error

	// InSessionTx runs fn inside one transaction holding an exclusive lock on the
	// class session row. Writes made through tx are committed only if fn returns nil.
	InSessionTx(ctx context.Context, sessionID string, fn func(ctx context.Context, tx SessionTx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// SessionTx is the view of the ledger available inside the locked critical section.
type SessionTx interface {
	// Session is nil when the class session no longer exists.
	Session() *models.ClassSession
	// FindBookingByPayment returns the booking a payment created, whatever its status.
	FindBookingByPayment(ctx context.Context, paymentID string) (*models.Booking, error)
	FindActiveBooking(ctx context.Context, clientID string) (*models.Booking, error)
	CountActiveBookings(ctx context.Context) (int, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	AddClientCredits(ctx context.Context, clientID string, delta int) error
}
