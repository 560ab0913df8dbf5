// Package notify dispatches critical safety alerts. Transports are
// fire-and-forget from the pipeline's point of view: callers log a returned
// error and carry on, and a failed alert never blocks audit logging.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	safeotel "github.com/dativo-io/safeops/internal/otel"
)

var tracer = safeotel.Tracer("github.com/dativo-io/safeops/internal/notify")

// ErrNotification wraps every transport failure.
var ErrNotification = errors.New("notification failure")

// Source records which trigger raised an alert.
type Source string

const (
	// SourceVerdict is an alert raised by an escalate=true verdict.
	SourceVerdict Source = "verdict"
	// SourceRule is an alert raised by a notify-now rule.
	SourceRule Source = "rule"
)

// Alert is one critical notification.
type Alert struct {
	FrameID string `json:"frame_id"`
	Summary string `json:"summary"`
	Source  Source `json:"source"`
}

// Subject is the alert headline.
func (a Alert) Subject() string {
	return fmt.Sprintf("Critical Safety Alert – Frame %s", a.FrameID)
}

// Body is the plain-text alert body.
func (a Alert) Body() string {
	return fmt.Sprintf("Attention Supervisor,\n\n%s\n\nPlease take immediate action.", a.Summary)
}

// Notifier sends an alert through one transport.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert Alert) error
}

// Multi fans an alert out to every notifier. Each notifier is attempted
// even if an earlier one failed; failures are joined.
type Multi []Notifier

// Name returns "multi".
func (m Multi) Name() string { return "multi" }

// Notify sends alert through every notifier.
func (m Multi) Notify(ctx context.Context, alert Alert) error {
	ctx, span := tracer.Start(ctx, "notify.dispatch",
		trace.WithAttributes(
			safeotel.FrameID.String(alert.FrameID),
			attribute.String("safeops.alert_source", string(alert.Source)),
			attribute.Int("safeops.notifier_count", len(m)),
		))
	defer span.End()

	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			span.RecordError(err)
			errs = append(errs, wrap(n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes alerts to the structured log. It is the transport used
// when no email or webhook destination is configured.
type LogNotifier struct{}

// Name returns "log".
func (LogNotifier) Name() string { return "log" }

// Notify logs the alert at warn level.
func (LogNotifier) Notify(ctx context.Context, alert Alert) error {
	log.Warn().
		Func(safeotel.LogTraceFields(ctx)).
		Str("frame_id", alert.FrameID).
		Str("source", string(alert.Source)).
		Str("subject", alert.Subject()).
		Str("summary", alert.Summary).
		Msg("critical_alert")
	return nil
}

func wrap(name string, err error) error {
	if errors.Is(err, ErrNotification) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrNotification, name, err)
}

// Config selects the alert transports.
type Config struct {
	Email      EmailConfig // used when Email.Host is set
	WebhookURL string      // used when set
}

// New builds the notifier for cfg. Alerts are always written to the log;
// email and webhook transports are added when configured.
func New(cfg Config) (Notifier, error) {
	out := Multi{LogNotifier{}}
	if cfg.Email.Host != "" {
		email, err := NewEmailNotifier(cfg.Email)
		if err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	if cfg.WebhookURL != "" {
		out = append(out, NewWebhookNotifier(cfg.WebhookURL))
	}
	return out, nil
}
