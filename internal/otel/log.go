package otel

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type runIDKey struct{}

// WithRunID tags ctx with the pipeline run it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run id set by WithRunID, or "".
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// TraceContextFrom returns trace_id and span_id from the span in ctx, if any.
func TraceContextFrom(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// LogTraceFields returns a zerolog hook adding run_id, trace_id and span_id
// to the event when ctx carries them:
//
//	log.Info().Func(otel.LogTraceFields(ctx)).Str("frame_id", id).Msg("...")
//
// With tracing disabled only run_id is added.
func LogTraceFields(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		if runID := RunIDFrom(ctx); runID != "" {
			e.Str("run_id", runID)
		}
		if traceID, spanID := TraceContextFrom(ctx); traceID != "" {
			e.Str("trace_id", traceID).Str("span_id", spanID)
		}
	}
}
