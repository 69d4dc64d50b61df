package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/config"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

const mysqlDuplicateEntry = 1062

type MySQLStore struct {
	db  *bun.DB
	log *logger.Logger
}

// DSN builds the go-sql-driver connection string for cfg.
func DSN(cfg config.DatabaseConfig) string {
	dc := mysql.NewConfig()
	dc.User = cfg.Username
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}

func NewMySQLStore(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*MySQLStore, error) {
	log.LogDatabase("CONNECT", "mysql", fmt.Sprintf("Connecting to MySQL at %s:%s", cfg.Host, cfg.Port))

	sqldb, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		log.Error("DATABASE", "Failed to open MySQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	store := &MySQLStore{
		db:  bun.NewDB(sqldb, mysqldialect.New()),
		log: log,
	}

	if err := store.Ping(ctx); err != nil {
		log.Error("DATABASE", "Failed to ping MySQL: "+err.Error())
		sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.LogDatabase("SUCCESS", "mysql", "MySQL connection established")
	return store, nil
}

// Migrate applies the ledger schema. Every statement is idempotent.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		s.log.LogDatabase("MIGRATE", "mysql", fmt.Sprintf("Creating %s table if not exists", stmt.Table))
		if _, err := s.db.ExecContext(ctx, stmt.DDL); err != nil {
			return fmt.Errorf("failed to create %s table: %w", stmt.Table, err)
		}
	}
	s.log.LogDatabase("SUCCESS", "mysql", "Ledger schema ready")
	return nil
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func (s *MySQLStore) GetStudioBySlug(ctx context.Context, slug string) (*models.Studio, error) {
	studio := new(models.Studio)
	err := s.db.NewSelect().Model(studio).Where("slug = ?", slug).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return studio, nil
}

func (s *MySQLStore) GetClassSession(ctx context.Context, studioID, sessionID string) (*models.ClassSession, error) {
	session := new(models.ClassSession)
	err := s.db.NewSelect().
		Model(session).
		Relation("ClassType").
		Relation("Teacher").
		Relation("Location").
		Where("cs.id = ?", sessionID).
		Where("cs.studio_id = ?", studioID).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return session, nil
}

func countActive(ctx context.Context, db bun.IDB, sessionID string) (int, error) {
	return db.NewSelect().
		Model((*models.Booking)(nil)).
		Where("class_session_id = ?", sessionID).
		Where("status IN (?)", bun.In(models.ActiveBookingStatuses)).
		Count(ctx)
}

func findActive(ctx context.Context, db bun.IDB, clientID, sessionID string) (*models.Booking, error) {
	booking := new(models.Booking)
	err := db.NewSelect().
		Model(booking).
		Where("client_id = ?", clientID).
		Where("class_session_id = ?", sessionID).
		Where("status IN (?)", bun.In(models.ActiveBookingStatuses)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return booking, nil
}

func (s *MySQLStore) CountActiveBookings(ctx context.Context, sessionID string) (int, error) {
	return countActive(ctx, s.db, sessionID)
}

func (s *MySQLStore) FindActiveBooking(ctx context.Context, clientID, sessionID string) (*models.Booking, error) {
	return findActive(ctx, s.db, clientID, sessionID)
}

func (s *MySQLStore) FindClientByEmail(ctx context.Context, studioID, email string) (*models.Client, error) {
	client := new(models.Client)
	err := s.db.NewSelect().
		Model(client).
		Where("studio_id = ?", studioID).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return client, nil
}

func (s *MySQLStore) CreateClient(ctx context.Context, client *models.Client) (*models.Client, error) {
	s.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Creating client %s", client.ID))

	if _, err := s.db.NewInsert().Model(client).Ignore().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	// INSERT IGNORE keeps the first row for (studio, email); read back whichever won.
	return s.FindClientByEmail(ctx, client.StudioID, client.Email)
}

func (s *MySQLStore) GetClient(ctx context.Context, id string) (*models.Client, error) {
	client := new(models.Client)
	if err := s.db.NewSelect().Model(client).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return client, nil
}

func (s *MySQLStore) SetClientCustomerID(ctx context.Context, clientID, customerID string) error {
	_, err := s.db.NewUpdate().
		Model((*models.Client)(nil)).
		Set("gateway_customer_id = ?", customerID).
		Where("id = ?", clientID).
		Exec(ctx)
	return err
}

func (s *MySQLStore) SavePayment(ctx context.Context, payment *models.Payment) error {
	s.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Saving payment %s", payment.ID))

	if _, err := s.db.NewInsert().Model(payment).Exec(ctx); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payment %s: %s", payment.ID, err.Error()))
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	payment := new(models.Payment)
	if err := s.db.NewSelect().Model(payment).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.LogDatabase("NOT_FOUND", "mysql", fmt.Sprintf("Payment %s not found", id))
		}
		return nil, notFound(err)
	}
	return payment, nil
}

// guardTransition resolves a conditional update that touched no rows: the
// payment is either missing, already in the target status, or somewhere else.
func (s *MySQLStore) guardTransition(ctx context.Context, res sql.Result, id string, target models.PaymentStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	current, err := s.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == target {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrStatusConflict, current.Status, target)
}

func (s *MySQLStore) MarkPaymentSucceeded(ctx context.Context, id, chargeID, paymentMethodID string) error {
	s.log.LogDatabase("UPDATE", "mysql", fmt.Sprintf("Marking payment %s succeeded", id))

	res, err := s.db.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", models.PaymentSucceeded).
		Set("gateway_charge_id = NULLIF(?, '')", chargeID).
		Set("payment_method_id = COALESCE(NULLIF(?, ''), payment_method_id)", paymentMethodID).
		Where("id = ?", id).
		Where("status = ?", models.PaymentPending).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark payment succeeded: %w", err)
	}
	return s.guardTransition(ctx, res, id, models.PaymentSucceeded)
}

func (s *MySQLStore) MarkPaymentRefunded(ctx context.Context, id string, refund models.RefundRecord) error {
	s.log.LogDatabase("UPDATE", "mysql", fmt.Sprintf("Marking payment %s refunded (%s)", id, refund.ID))

	res, err := s.db.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", models.PaymentRefunded).
		Set("refund_id = ?", refund.ID).
		Set("refund_amount = ?", refund.Amount).
		Set("refunded_at = ?", refund.At).
		Set("refund_reason = ?", refund.Reason).
		Set("refund_failed_at = NULL").
		Set("refund_error = NULL").
		Where("id = ?", id).
		Where("status = ?", models.PaymentSucceeded).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark payment refunded: %w", err)
	}
	return s.guardTransition(ctx, res, id, models.PaymentRefunded)
}

func (s *MySQLStore) MarkRefundFailed(ctx context.Context, id, reason, cause string) error {
	s.log.LogDatabase("UPDATE", "mysql", fmt.Sprintf("Recording failed refund for payment %s", id))

	_, err := s.db.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("refund_failed_at = ?", time.Now().UTC()).
		Set("refund_reason = ?", reason).
		Set("refund_error = ?", cause).
		Where("id = ?", id).
		Where("status = ?", models.PaymentSucceeded).
		Exec(ctx)
	return err
}

func (s *MySQLStore) ListRefundFailures(ctx context.Context, studioID string) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := s.db.NewSelect().
		Model(&payments).
		Where("studio_id = ?", studioID).
		Where("status = ?", models.PaymentSucceeded).
		Where("refund_failed_at IS NOT NULL").
		Order("refund_failed_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *MySQLStore) UpsertStandingPlan(ctx context.Context, plan *models.StandingPlan) error {
	s.log.LogDatabase("UPSERT", "mysql", fmt.Sprintf("Upserting %s plan for client %s", plan.Kind, plan.ClientID))

	_, err := s.db.NewInsert().
		Model(plan).
		On("DUPLICATE KEY UPDATE").
		Set("pack_size = VALUES(pack_size)").
		Set("amount = VALUES(amount)").
		Set("currency = VALUES(currency)").
		Set("gateway_customer_id = VALUES(gateway_customer_id)").
		Set("payment_method_id = VALUES(payment_method_id)").
		Set("subscription_id = VALUES(subscription_id)").
		Set("day_of_week = VALUES(day_of_week)").
		Set("start_time = VALUES(start_time)").
		Set("next_charge_at = VALUES(next_charge_at)").
		Set("last_payment_id = VALUES(last_payment_id)").
		Set("active = TRUE").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert standing plan: %w", err)
	}
	return nil
}

func (s *MySQLStore) RecordConversion(ctx context.Context, conversion *models.Conversion) error {
	if _, err := s.db.NewInsert().Model(conversion).Ignore().Exec(ctx); err != nil {
		return fmt.Errorf("failed to record conversion: %w", err)
	}
	return nil
}

func (s *MySQLStore) InSessionTx(ctx context.Context, sessionID string, fn func(ctx context.Context, tx SessionTx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		session := new(models.ClassSession)
		err := tx.NewSelect().
			Model(session).
			Where("id = ?", sessionID).
			For("UPDATE").
			Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			session = nil
		case err != nil:
			return fmt.Errorf("failed to lock class session: %w", err)
		default:
			err = tx.NewSelect().
				Model(session).
				Relation("ClassType").
				Relation("Teacher").
				Relation("Location").
				Where("cs.id = ?", sessionID).
				Scan(ctx)
			if err != nil {
				return fmt.Errorf("failed to load class session: %w", err)
			}
		}

		s.log.LogDatabase("LOCK", "mysql", fmt.Sprintf("Holding class session %s", sessionID))
		return fn(ctx, &mysqlSessionTx{tx: tx, sessionID: sessionID, session: session})
	})
}

type mysqlSessionTx struct {
	tx        bun.Tx
	sessionID string
	session   *models.ClassSession
}

func (t *mysqlSessionTx) Session() *models.ClassSession { return t.session }

func (t *mysqlSessionTx) FindBookingByPayment(ctx context.Context, paymentID string) (*models.Booking, error) {
	booking := new(models.Booking)
	err := t.tx.NewSelect().
		Model(booking).
		Where("payment_id = ?", paymentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return booking, nil
}

func (t *mysqlSessionTx) FindActiveBooking(ctx context.Context, clientID string) (*models.Booking, error) {
	return findActive(ctx, t.tx, clientID, t.sessionID)
}

func (t *mysqlSessionTx) CountActiveBookings(ctx context.Context) (int, error) {
	return countActive(ctx, t.tx, t.sessionID)
}

func (t *mysqlSessionTx) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if _, err := t.tx.NewInsert().Model(booking).Exec(ctx); err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (t *mysqlSessionTx) AddClientCredits(ctx context.Context, clientID string, delta int) error {
	_, err := t.tx.NewUpdate().
		Model((*models.Client)(nil)).
		Set("credits = credits + ?", delta).
		Where("id = ?", clientID).
		Exec(ctx)
	return err
}
