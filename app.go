package main

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/config"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/gateway"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/kafka"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/notify"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/obs"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/redis"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/services"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/storage"
)

// app holds the components shared by serve and worker.
type app struct {
	cfg      *config.Config
	store    *storage.MySQLStore
	producer *kafka.Producer
	bookings *services.BookingService

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	shutdownTracer, err := obs.InitTracer(ctx, serviceName, cfg.Tracing.Endpoint, cfg.Env)
	if err != nil {
		return nil, err
	}
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(ctx)
	})
	if cfg.Tracing.Endpoint != "" {
		log.LogProcess("TRACING", "Exporting spans to "+cfg.Tracing.Endpoint)
	}

	log.LogProcess("DATABASE", "Initializing MySQL database...")
	a.store, err = storage.NewMySQLStore(ctx, cfg.Database, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(func() { _ = a.store.Close() })

	locker, err := a.newLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	log.LogProcess("KAFKA", "Initializing Kafka producer...")
	a.producer, err = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Mock, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(func() { _ = a.producer.Close() })

	gw, err := gateway.NewStripeGateway(cfg.Stripe.SecretKey, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.LogProcess("STRIPE", "Stripe gateway initialized")

	a.bookings = services.NewBookingService(a.store, gw, locker, a.producer, a.newNotifier(), log)
	a.producer.WithLocalSettlement(a.bookings.HandleSettlementRequest)
	log.LogProcess("SERVICE", "Booking service initialized")
	return a, nil
}

func (a *app) newLocker(ctx context.Context) (redis.Locker, error) {
	rc := a.cfg.Redis
	if !rc.Enabled() {
		log.Warn("REDIS", "REDIS_ADDR not set, using in-process session lock (single instance only)")
		return redis.NewLocalLock(rc.LockWait), nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err)
	}
	a.onClose(func() { _ = client.Close() })
	log.LogProcess("REDIS", "Redis connection successful")
	return redis.NewSessionLock(client, rc.LockTTL, rc.LockWait, log), nil
}

// newNotifier prefers the job queue, then inline SMTP, then the log.
func (a *app) newNotifier() services.Notifier {
	if a.cfg.RabbitMQ.URL != "" {
		pub, err := notify.NewPublisher(a.cfg.RabbitMQ.URL, a.cfg.RabbitMQ.Queue, log)
		if err == nil {
			a.onClose(func() { _ = pub.Close() })
			return pub
		}
		log.Error("RABBITMQ", "Falling back from job queue: "+err.Error())
	}
	if a.cfg.SMTP.Host != "" {
		return notify.NewMailer(a.cfg.SMTP, log)
	}
	return notify.NewLogNotifier(log)
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close drains background side effects, then releases resources in reverse order.
func (a *app) Close() {
	if a.bookings != nil {
		a.bookings.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
