package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/config"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

var confirmationTemplate = template.Must(template.New("confirmation").Parse(
	"From: {{.From}}\r\n" +
		"To: {{.To}}\r\n" +
		"Subject: You're booked: {{.N.ClassName}} at {{.N.StudioName}}\r\n" +
		"MIME-version: 1.0\r\n" +
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		"Hi {{if .N.ClientName}}{{.N.ClientName}}{{else}}there{{end}},\r\n" +
		"\r\n" +
		"Your spot is confirmed.\r\n" +
		"\r\n" +
		"Class:    {{.N.ClassName}}\r\n" +
		"When:     {{.N.StartTime.Format \"Monday, Jan 2 2006 at 15:04 MST\"}}\r\n" +
		"{{if .N.TeacherName}}Teacher:  {{.N.TeacherName}}\r\n{{end}}" +
		"{{if .N.LocationName}}Where:    {{.N.LocationName}}\r\n{{end}}" +
		"Paid:     {{.N.PaidAmount}} {{.N.Currency}}\r\n" +
		"{{if gt .N.CreditsAdded 0}}Credits:  {{.N.CreditsAdded}} class credits added to your account\r\n{{end}}" +
		"\r\n" +
		"Booking reference: {{.N.BookingID}}\r\n"))

// Mailer sends confirmation emails over SMTP.
type Mailer struct {
	cfg  config.SMTPConfig
	log  *logger.Logger
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg config.SMTPConfig, log *logger.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}
}

// Render builds the RFC 5322 message for a confirmation.
func (m *Mailer) Render(n *models.BookingNotification) ([]byte, error) {
	var buf bytes.Buffer
	err := confirmationTemplate.Execute(&buf, struct {
		From, To string
		N        *models.BookingNotification
	}{From: m.cfg.From, To: n.ClientEmail, N: n})
	if err != nil {
		return nil, fmt.Errorf("render confirmation: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *Mailer) Send(_ context.Context, n *models.BookingNotification) error {
	if n.ClientEmail == "" {
		return fmt.Errorf("booking %s has no client email", n.BookingID)
	}
	msg, err := m.Render(n)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := m.send(m.cfg.Host+":"+m.cfg.Port, auth, m.cfg.From, []string{n.ClientEmail}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.log.Info("NOTIFY", fmt.Sprintf("Confirmation for booking %s sent to %s", n.BookingID, n.ClientEmail))
	return nil
}

// NotifyBookingConfirmed sends inline when no job queue is configured.
func (m *Mailer) NotifyBookingConfirmed(ctx context.Context, n *models.BookingNotification) error {
	return m.Send(ctx, n)
}
