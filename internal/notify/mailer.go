// Package notify delivers outgoing user notifications.
package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"taskboard-server/internal/config"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

type Message struct {
	To      string
	Subject string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends plain-text mail through the configured SMTP relay.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger logrus.FieldLogger
}

func NewSMTPMailer(cfg config.SMTPConfig, logger logrus.FieldLogger) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger.WithField("component", "mailer"),
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Text)

	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := e.Send(addr, auth); err != nil {
		m.logger.Errorf("Failed to send email to %s: %v", msg.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Infof("Email sent to %s: %s", msg.To, msg.Subject)
	return nil
}
