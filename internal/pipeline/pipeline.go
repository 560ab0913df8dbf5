// Package pipeline drives a detection batch through the escalation engine
// and the advisory client, and mirrors each frame into the evidence store.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dativo-io/safeops/internal/advisory"
	"github.com/dativo-io/safeops/internal/escalation"
	"github.com/dativo-io/safeops/internal/evidence"
	safeotel "github.com/dativo-io/safeops/internal/otel"
	"github.com/dativo-io/safeops/internal/reasoning"
	"github.com/dativo-io/safeops/internal/violation"
)

var tracer = safeotel.Tracer("github.com/dativo-io/safeops/internal/pipeline")

// FrameProcessor decides and audits one frame.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, frame violation.Frame, location, shift string) escalation.FrameResult
}

// AdvisorySource produces the secondary advisories for one frame.
type AdvisorySource interface {
	ForFrame(ctx context.Context, frame violation.Frame) []advisory.Advisory
}

// Recorder persists a signed record of a processed frame.
type Recorder interface {
	Generate(ctx context.Context, params evidence.GenerateParams) (*evidence.FrameRecord, error)
}

// Config holds driver options.
type Config struct {
	// Concurrency is the number of frames processed at once; 1 keeps the
	// batch strictly sequential.
	Concurrency int
	Site        SiteContext
	// Model is recorded in evidence records.
	Model string
	// RunID tags evidence records; empty generates one per batch.
	RunID string
}

// Driver runs batches. Engine is required; advisories and recorder are optional.
type Driver struct {
	engine     FrameProcessor
	advisories AdvisorySource
	recorder   Recorder
	cfg        Config
}

// NewDriver creates a driver.
func NewDriver(engine FrameProcessor, advisories AdvisorySource, recorder Recorder, cfg Config) *Driver {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Driver{engine: engine, advisories: advisories, recorder: recorder, cfg: cfg}
}

// FrameOutcome is everything produced for one frame.
type FrameOutcome struct {
	escalation.FrameResult
	Location   string
	Shift      string
	Advisories []advisory.Advisory
	EvidenceID string
}

// Summary aggregates a batch run. Frames keeps batch order.
type Summary struct {
	RunID             string
	Frames            []FrameOutcome
	Skipped           int // frames not started because the context ended
	Escalated         int
	Notifications     int
	ReasoningFailures int
	AdvisoryFailures  int
	Duration          time.Duration
}

// RunBatch processes every frame of batch. Per-frame failures are reflected
// in the summary, never returned. The context is checked before each frame;
// when it ends the remaining frames are skipped and ctx.Err() is returned
// alongside the partial summary.
func (d *Driver) RunBatch(ctx context.Context, batch violation.Batch) (*Summary, error) {
	start := time.Now()
	runID := d.cfg.RunID
	if runID == "" {
		runID = "run_" + uuid.New().String()[:8]
	}
	ctx = safeotel.WithRunID(ctx, runID)
	ctx, span := tracer.Start(ctx, "pipeline.run_batch",
		trace.WithAttributes(
			safeotel.RunID.String(runID),
			attribute.Int("safeops.frame_count", len(batch)),
			attribute.Int("safeops.concurrency", d.cfg.Concurrency),
		))
	defer span.End()

	log.Info().
		Func(safeotel.LogTraceFields(ctx)).
		Int("frames", len(batch)).
		Int("concurrency", d.cfg.Concurrency).
		Msg("batch_started")

	outcomes := make([]*FrameOutcome, len(batch))
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for i, frame := range batch {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out := d.processFrame(ctx, runID, frame)
			outcomes[i] = &out
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{RunID: runID}
	for _, out := range outcomes {
		if out == nil {
			summary.Skipped++
			continue
		}
		summary.Frames = append(summary.Frames, *out)
		if out.Verdict != nil && out.Verdict.Escalate {
			summary.Escalated++
		}
		if out.ReasoningErr != nil {
			summary.ReasoningFailures++
		}
		for _, a := range out.Advisories {
			if !a.OK() {
				summary.AdvisoryFailures++
			}
		}
		summary.Notifications += len(out.Notifications)
	}
	summary.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("safeops.frames_processed", len(summary.Frames)),
		attribute.Int("safeops.escalated", summary.Escalated),
	)
	log.Info().
		Func(safeotel.LogTraceFields(ctx)).
		Int("processed", len(summary.Frames)).
		Int("skipped", summary.Skipped).
		Int("escalated", summary.Escalated).
		Int("notifications", summary.Notifications).
		Int("reasoning_failures", summary.ReasoningFailures).
		Dur("duration", summary.Duration).
		Msg("batch_completed")

	if summary.Skipped > 0 {
		return summary, ctx.Err()
	}
	return summary, nil
}

func (d *Driver) processFrame(ctx context.Context, runID string, frame violation.Frame) FrameOutcome {
	location, shift := d.cfg.Site.For(frame.FrameID)
	out := FrameOutcome{Location: location, Shift: shift}
	out.FrameResult = d.engine.ProcessFrame(ctx, frame, location, shift)

	if d.advisories != nil {
		out.Advisories = d.advisories.ForFrame(ctx, frame)
	}

	if d.recorder != nil {
		rec, err := d.recorder.Generate(ctx, d.evidenceParams(runID, frame, out))
		if err != nil {
			log.Error().
				Func(safeotel.LogTraceFields(ctx)).
				Str("frame_id", frame.FrameID).
				Str("error_kind", "evidence").
				Err(err).
				Msg("evidence_record_failed")
		} else {
			out.EvidenceID = rec.ID
		}
	}
	return out
}

func (d *Driver) evidenceParams(runID string, frame violation.Frame, out FrameOutcome) evidence.GenerateParams {
	params := evidence.GenerateParams{
		RunID:         runID,
		FrameID:       frame.FrameID,
		Location:      out.Location,
		Shift:         out.Shift,
		Detections:    frame.Types(),
		Notifications: len(out.Notifications),
		Duration:      out.Duration,
		Reasoning:     evidence.ReasoningOutcome{Model: d.cfg.Model},
	}
	for _, a := range out.Actions {
		params.Actions = append(params.Actions, evidence.ActionRecord{
			Violation: string(a.Violation),
			Action:    a.Action,
			NotifyNow: a.NotifyNow,
		})
	}
	if v := out.Verdict; v != nil {
		params.Verdict = &evidence.VerdictRecord{
			Escalate:         v.Escalate,
			NotifyRoles:      v.NotifyRoles,
			ShutdownRequired: v.ShutdownRequired,
			Summary:          v.Summary,
		}
		params.Reasoning.Attempts = v.Attempts
	}
	if out.ReasoningErr != nil {
		params.Reasoning.ErrorKind = reasoning.KindName(out.ReasoningErr)
		params.Reasoning.Error = out.ReasoningErr.Error()
		var f *reasoning.Failure
		if errors.As(out.ReasoningErr, &f) {
			params.Reasoning.Attempts = f.Attempts
		}
	}
	for _, a := range out.Advisories {
		params.Advisories = append(params.Advisories, evidence.AdvisoryParams{
			Kind:      string(a.Kind),
			Violation: string(a.Violation),
			OK:        a.OK(),
			Text:      a.Text,
		})
	}
	return params
}
