package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
	prefetch   = 16
)

// Worker drains the confirmation queue and hands each job to a Sender.
type Worker struct {
	url    string
	queue  string
	sender Sender
	log    *logger.Logger
}

func NewWorker(url, queue string, sender Sender, log *logger.Logger) *Worker {
	return &Worker{url: url, queue: queue, sender: sender, log: log}
}

// Run consumes until ctx is cancelled, redialling with exponential backoff
// whenever the broker connection is lost.
func (w *Worker) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		conn, err := amqp.Dial(w.url)
		if err != nil {
			w.log.Warn("RABBITMQ", fmt.Sprintf("Dial failed: %v; retrying in %s", err, backoff))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = minBackoff

		err = w.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		w.log.Warn("RABBITMQ", fmt.Sprintf("Consume loop ended: %v; reconnecting", err))
	}
}

func (w *Worker) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if _, err := ch.QueueDeclare(w.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, w.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	w.log.LogProcess("RABBITMQ", fmt.Sprintf("Consuming confirmations from %s", w.queue))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			w.Handle(ctx, d)
		}
	}
}

// Handle processes one delivery. Malformed payloads are dropped; a failed
// send is requeued once and dropped on redelivery.
func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) {
	var n models.BookingNotification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		w.log.Error("NOTIFY", fmt.Sprintf("Dropping malformed confirmation job: %v", err))
		_ = d.Nack(false, false)
		return
	}

	if err := w.sender.Send(ctx, &n); err != nil {
		requeue := !d.Redelivered
		w.log.Error("NOTIFY", fmt.Sprintf("Confirmation for booking %s failed (requeue=%t): %v", n.BookingID, requeue, err))
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}
