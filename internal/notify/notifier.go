package notify

import (
	"context"
	"fmt"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

// Sender delivers a booking confirmation to the client.
type Sender interface {
	Send(ctx context.Context, n *models.BookingNotification) error
}

// LogNotifier writes confirmations to the log. It stands in for both the
// queue and the mailer when RabbitMQ or SMTP are not configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyBookingConfirmed(ctx context.Context, msg *models.BookingNotification) error {
	return n.Send(ctx, msg)
}

func (n *LogNotifier) Send(_ context.Context, msg *models.BookingNotification) error {
	n.log.Info("NOTIFY", fmt.Sprintf("Booking %s confirmed for %s: %s on %s (%s %s)",
		msg.BookingID, msg.ClientEmail, msg.ClassName, msg.StartTime.Format("2006-01-02 15:04"), msg.PaidAmount, msg.Currency))
	return nil
}
