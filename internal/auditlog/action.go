package auditlog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	safeotel "github.com/dativo-io/safeops/internal/otel"
)

// TimestampLayout is the audit line timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

// ActionLog is the append-only record of every resolved action, one line per
// action: "[YYYY-MM-DD HH:MM:SS] [Frame <id>] [<violation>] <action>".
type ActionLog struct {
	out  *appendFile
	now  func() time.Time
	echo bool
}

// ActionLogOption configures an ActionLog.
type ActionLogOption func(*ActionLog)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ActionLogOption {
	return func(l *ActionLog) { l.now = now }
}

// WithEcho emits each appended line as an audit_action log event as well.
func WithEcho(enabled bool) ActionLogOption {
	return func(l *ActionLog) { l.echo = enabled }
}

// OpenActionLog opens (or creates) the audit log at path for appending.
func OpenActionLog(path string, opts ...ActionLogOption) (*ActionLog, error) {
	f, err := openAppendFile(path)
	if err != nil {
		return nil, err
	}
	l := &ActionLog{out: f, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// FormatActionLine renders one audit line including the trailing newline.
func FormatActionLine(ts time.Time, frameID, violationType, action string) string {
	return fmt.Sprintf("[%s] [Frame %s] [%s] %s\n", ts.Format(TimestampLayout), frameID, violationType, action)
}

// Append writes one audit line stamped with the current time.
func (l *ActionLog) Append(ctx context.Context, frameID, violationType, action string) error {
	// Timestamps are taken under the file lock so they never go backwards in the file.
	err := l.out.writeWith(func() string {
		return FormatActionLine(l.now(), frameID, violationType, action)
	})
	if err != nil {
		return err
	}
	if l.echo {
		log.Info().
			Func(safeotel.LogTraceFields(ctx)).
			Str("frame_id", frameID).
			Str("violation", violationType).
			Str("action", action).
			Msg("audit_action")
	}
	return nil
}

// Path returns the file backing the log.
func (l *ActionLog) Path() string { return l.out.path }

// Close flushes and closes the log.
func (l *ActionLog) Close() error { return l.out.close() }
