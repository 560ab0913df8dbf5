package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
)

// EmailConfig configures the SMTP transport.
type EmailConfig struct {
	Host     string
	Port     int // 0 = 587
	Username string
	Password string
	From     string
	To       []string
}

// mailSender is satisfied by *mail.Client.
type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailNotifier sends alerts to the safety officer over SMTP.
type EmailNotifier struct {
	cfg    EmailConfig
	sender mailSender
}

// NewEmailNotifier builds an SMTP notifier. Authentication is used only
// when a username is configured.
func NewEmailNotifier(cfg EmailConfig) (*EmailNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("email notifier: smtp host is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("email notifier: sender and at least one recipient are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("email notifier: creating smtp client: %w", err)
	}
	return &EmailNotifier{cfg: cfg, sender: client}, nil
}

// Name returns "email".
func (e *EmailNotifier) Name() string { return "email" }

// Message renders the alert as a mail message.
func (e *EmailNotifier) Message(alert Alert) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(e.cfg.From); err != nil {
		return nil, fmt.Errorf("setting sender: %w", err)
	}
	if err := m.To(e.cfg.To...); err != nil {
		return nil, fmt.Errorf("setting recipients: %w", err)
	}
	m.Subject(alert.Subject())
	m.SetBodyString(mail.TypeTextPlain, alert.Body())
	return m, nil
}

// Notify sends the alert by email.
func (e *EmailNotifier) Notify(ctx context.Context, alert Alert) error {
	m, err := e.Message(alert)
	if err != nil {
		return wrap(e.Name(), err)
	}
	if err := e.sender.DialAndSendWithContext(ctx, m); err != nil {
		return wrap(e.Name(), err)
	}
	log.Info().
		Str("frame_id", alert.FrameID).
		Str("to", strings.Join(e.cfg.To, ",")).
		Msg("email_alert_sent")
	return nil
}
