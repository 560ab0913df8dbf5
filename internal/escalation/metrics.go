package escalation

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	safeotel "github.com/dativo-io/safeops/internal/otel"
)

const meterName = "github.com/dativo-io/safeops/internal/escalation"

var (
	framesCounter       metric.Int64Counter
	verdictCounter      metric.Int64Counter
	notificationCounter metric.Int64Counter
	metricsOnce         sync.Once
	metricsRegistered   bool
)

func initMetrics() {
	meter := safeotel.Meter(meterName)
	var err error
	framesCounter, err = meter.Int64Counter(
		"safeops.frames.processed",
		metric.WithDescription("Frames processed by the escalation engine"),
	)
	if err != nil {
		return
	}
	verdictCounter, err = meter.Int64Counter(
		"safeops.verdicts",
		metric.WithDescription("Reasoning outcomes by result: escalate, no_escalate, transport, parse"),
	)
	if err != nil {
		return
	}
	notificationCounter, err = meter.Int64Counter(
		"safeops.notifications",
		metric.WithDescription("Critical notifications dispatched, by trigger source and delivery result"),
	)
	if err != nil {
		return
	}
	metricsRegistered = true
}

func recordFrame(ctx context.Context, detections int) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	framesCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("empty", detections == 0)))
}

func recordVerdict(ctx context.Context, outcome string) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	verdictCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordNotification(ctx context.Context, source string, delivered bool) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	notificationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("delivered", delivered),
	))
}
