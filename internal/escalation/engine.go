// Package escalation combines deterministic rule actions with the reasoning
// service's verdict for each frame, dispatches critical notifications and
// writes every action to the audit sink.
//
// Two notification triggers are independent: an escalate=true verdict
// raises one alert carrying the verdict summary, and every notify-now rule
// raises one alert carrying its action text. Either can fire without the
// other, so a frame whose reasoning call failed still alerts on critical
// rules. With DedupeAlerts set the triggers of a frame are merged into a
// single alert.
package escalation

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/safeops/internal/notify"
	safeotel "github.com/dativo-io/safeops/internal/otel"
	"github.com/dativo-io/safeops/internal/reasoning"
	"github.com/dativo-io/safeops/internal/rules"
	"github.com/dativo-io/safeops/internal/violation"
)

var tracer = safeotel.Tracer("github.com/dativo-io/safeops/internal/escalation")

// VerdictSource obtains an escalation verdict for a frame.
type VerdictSource interface {
	GetVerdict(ctx context.Context, frameID string, violations []string, location, shift string) (*reasoning.Verdict, error)
}

// AuditSink records every resolved action.
type AuditSink interface {
	Append(ctx context.Context, frameID, violationType, action string) error
}

// Config holds engine options.
type Config struct {
	// DedupeAlerts merges all alerts of a frame into one.
	DedupeAlerts bool
}

// Engine processes frames. It holds no per-frame state and is safe for
// concurrent use when its ports are.
type Engine struct {
	resolver *rules.Resolver
	verdicts VerdictSource
	notifier notify.Notifier
	audit    AuditSink
	cfg      Config
}

// NewEngine wires the engine to its ports.
func NewEngine(resolver *rules.Resolver, verdicts VerdictSource, notifier notify.Notifier, audit AuditSink, cfg Config) *Engine {
	if resolver == nil {
		resolver = rules.NewResolver(nil)
	}
	return &Engine{resolver: resolver, verdicts: verdicts, notifier: notifier, audit: audit, cfg: cfg}
}

// FrameResult is the full decision record for one frame.
type FrameResult struct {
	FrameID string
	Actions []rules.Resolution
	// Verdict is nil when the frame had no detections or reasoning failed.
	Verdict *reasoning.Verdict
	// ReasoningErr is the *reasoning.Failure when reasoning failed.
	ReasoningErr error
	// Notified reports whether at least one alert was dispatched.
	Notified bool
	// Notifications lists every alert dispatched, in order.
	Notifications []notify.Alert
	Duration      time.Duration
}

// ProcessFrame resolves, reasons, notifies and audits one frame. It never
// returns an error: per-frame failures are logged and reflected in the result.
func (e *Engine) ProcessFrame(ctx context.Context, frame violation.Frame, location, shift string) FrameResult {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "escalation.process_frame",
		trace.WithAttributes(
			safeotel.FrameID.String(frame.FrameID),
			safeotel.DetectionCount.Int(len(frame.Detections)),
		))
	defer span.End()

	log.Debug().
		Func(safeotel.LogTraceFields(ctx)).
		Str("frame_id", frame.FrameID).
		Int("detections", len(frame.Detections)).
		Msg("frame_processing_started")

	result := FrameResult{
		FrameID: frame.FrameID,
		Actions: e.resolver.ResolveAll(frame.Detections),
	}

	if len(frame.Detections) > 0 && e.verdicts != nil {
		verdict, err := e.verdicts.GetVerdict(ctx, frame.FrameID, frame.Types(), location, shift)
		if err != nil {
			result.ReasoningErr = err
			recordVerdict(ctx, reasoning.KindName(err))
			log.Warn().
				Func(safeotel.LogTraceFields(ctx)).
				Str("frame_id", frame.FrameID).
				Str("error_kind", reasoning.KindName(err)).
				Err(err).
				Msg("verdict_unavailable")
		} else {
			result.Verdict = verdict
			if verdict.Escalate {
				recordVerdict(ctx, "escalate")
			} else {
				recordVerdict(ctx, "no_escalate")
			}
		}
	}

	for _, alert := range e.alerts(frame.FrameID, result) {
		e.dispatch(ctx, alert)
		result.Notifications = append(result.Notifications, alert)
	}
	result.Notified = len(result.Notifications) > 0

	for _, a := range result.Actions {
		if e.audit == nil {
			break
		}
		if err := e.audit.Append(ctx, frame.FrameID, string(a.Violation), a.Action); err != nil {
			log.Error().
				Func(safeotel.LogTraceFields(ctx)).
				Str("frame_id", frame.FrameID).
				Str("violation", string(a.Violation)).
				Err(err).
				Msg("audit_append_failed")
		}
	}

	result.Duration = time.Since(start)
	recordFrame(ctx, len(frame.Detections))
	span.SetAttributes(
		attribute.Bool("safeops.notified", result.Notified),
		attribute.Int("safeops.notification_count", len(result.Notifications)),
		attribute.Bool("safeops.verdict_available", result.Verdict != nil),
	)
	log.Info().
		Func(safeotel.LogTraceFields(ctx)).
		Str("frame_id", frame.FrameID).
		Int("actions", len(result.Actions)).
		Bool("verdict", result.Verdict != nil).
		Bool("escalate", result.Verdict != nil && result.Verdict.Escalate).
		Int("notifications", len(result.Notifications)).
		Dur("duration", result.Duration).
		Msg("frame_processed")
	return result
}

// alerts computes the alerts for a frame from both triggers.
func (e *Engine) alerts(frameID string, r FrameResult) []notify.Alert {
	var out []notify.Alert
	if r.Verdict != nil && r.Verdict.Escalate {
		out = append(out, notify.Alert{FrameID: frameID, Summary: r.Verdict.Summary, Source: notify.SourceVerdict})
	}
	for _, a := range r.Actions {
		if a.NotifyNow {
			out = append(out, notify.Alert{FrameID: frameID, Summary: a.Action, Source: notify.SourceRule})
		}
	}
	if !e.cfg.DedupeAlerts || len(out) < 2 {
		return out
	}

	seen := make(map[string]bool, len(out))
	lines := make([]string, 0, len(out))
	for _, a := range out {
		if seen[a.Summary] {
			continue
		}
		seen[a.Summary] = true
		lines = append(lines, a.Summary)
	}
	return []notify.Alert{{FrameID: frameID, Summary: strings.Join(lines, "\n"), Source: out[0].Source}}
}

// dispatch sends one alert. Failures are logged and never propagated.
func (e *Engine) dispatch(ctx context.Context, alert notify.Alert) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.Notify(ctx, alert)
	recordNotification(ctx, string(alert.Source), err == nil)
	if err != nil {
		log.Error().
			Func(safeotel.LogTraceFields(ctx)).
			Str("frame_id", alert.FrameID).
			Str("source", string(alert.Source)).
			Str("error_kind", "notification").
			Err(err).
			Msg("notification_failed")
	}
}
