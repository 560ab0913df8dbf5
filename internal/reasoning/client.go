// Package reasoning obtains a strict escalation verdict for a frame from an
// external, best-effort text-generation service.
//
// The service is unreliable twice over: calls may fail or time out, and a
// successful reply is free text that only usually holds the requested JSON.
// Transport failures are retried within a bounded RetryPolicy; replies are
// sanitized and validated against the verdict schema, and anything that does
// not validate is a parse failure that is never retried. Both outcomes reach
// callers as a *Failure.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	safeotel "github.com/dativo-io/safeops/internal/otel"
)

var tracer = safeotel.Tracer("github.com/dativo-io/safeops/internal/reasoning")

// Defaults for verdict requests.
const (
	DefaultTimeout     = 20 * time.Second
	DefaultMaxAttempts = 2
	DefaultRetryDelay  = 2 * time.Second
	Temperature        = 0.3
	MaxTokens          = 256
)

// RetryPolicy bounds transport retries. MaxAttempts is the total number of
// attempts, so a transport that fails N times succeeds iff N < MaxAttempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy returns two attempts two seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultRetryDelay}
}

// BlockSink receives one "[Frame <id>]" block per successful verdict.
type BlockSink interface {
	AppendBlock(ctx context.Context, frameID, payload string) error
}

// Config configures a Client. Zero values take the package defaults. A
// zero Retry means DefaultRetryPolicy; a Retry with MaxAttempts set keeps
// its Delay as given, so a zero delay can be chosen explicitly.
type Config struct {
	Timeout time.Duration // per attempt
	Retry   RetryPolicy
	Log     BlockSink // optional reasoning log
}

// Client requests escalation verdicts.
type Client struct {
	transport *Transport
	cfg       Config
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewClient creates a verdict client over transport.
func NewClient(transport *Transport, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch {
	case cfg.Retry == (RetryPolicy{}):
		cfg.Retry = DefaultRetryPolicy()
	case cfg.Retry.MaxAttempts <= 0:
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Retry.Delay < 0 {
		cfg.Retry.Delay = 0
	}
	return &Client{transport: transport, cfg: cfg, sleep: sleepCtx}
}

// Transport returns the underlying single-attempt primitive.
func (c *Client) Transport() *Transport { return c.transport }

// GetVerdict asks the service whether the frame's violations require
// escalation. On any failure it returns a *Failure (errors.Is ErrFailure)
// and never panics past this boundary.
func (c *Client) GetVerdict(ctx context.Context, frameID string, violations []string, location, shift string) (v *Verdict, err error) {
	ctx, span := tracer.Start(ctx, "reasoning.get_verdict",
		trace.WithAttributes(
			safeotel.FrameID.String(frameID),
			safeotel.DetectionCount.Int(len(violations)),
			attribute.String("safeops.location", location),
			attribute.String("safeops.shift", shift),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = &Failure{Kind: ErrTransport, FrameID: frameID, Err: errors.New("panic in reasoning transport")}
			log.Error().Str("frame_id", frameID).Interface("panic", r).Msg("reasoning_panic_recovered")
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(safeotel.ErrorKind.String(KindName(err)))
		}
	}()

	call := Call{
		System:      SystemPrompt,
		User:        BuildPrompt(frameID, violations, location, shift),
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
		Timeout:     c.cfg.Timeout,
	}

	reply, attempts, err := c.completeWithRetry(ctx, frameID, call)
	if err != nil {
		log.Warn().
			Func(safeotel.LogTraceFields(ctx)).
			Str("frame_id", frameID).
			Str("error_kind", "transport").
			Int("attempts", attempts).
			Err(err).
			Msg("reasoning_failed")
		return nil, &Failure{Kind: ErrTransport, FrameID: frameID, Attempts: attempts, Err: err}
	}

	verdict, err := ParseVerdict(reply)
	if err != nil {
		log.Warn().
			Func(safeotel.LogTraceFields(ctx)).
			Str("frame_id", frameID).
			Str("error_kind", "parse").
			Str("raw", reply).
			Err(err).
			Msg("reasoning_failed")
		return nil, &Failure{Kind: ErrParse, FrameID: frameID, Attempts: attempts, Raw: reply, Err: err}
	}
	verdict.Attempts = attempts

	span.SetAttributes(
		attribute.Bool("safeops.verdict.escalate", verdict.Escalate),
		attribute.Bool("safeops.verdict.shutdown_required", verdict.ShutdownRequired),
	)
	c.record(ctx, frameID, verdict)
	return verdict, nil
}

// completeWithRetry runs sequential attempts under the retry policy.
func (c *Client) completeWithRetry(ctx context.Context, frameID string, call Call) (string, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.cfg.Retry.Delay); err != nil {
				return "", attempts, errors.Join(lastErr, err)
			}
		}
		attempts = attempt

		attemptCtx, span := tracer.Start(ctx, "reasoning.attempt",
			trace.WithAttributes(safeotel.FrameID.String(frameID), safeotel.Attempt.Int(attempt)))
		reply, err := c.transport.Complete(attemptCtx, call)
		if err == nil {
			span.End()
			return reply, attempts, nil
		}
		span.RecordError(err)
		span.End()

		lastErr = err
		log.Warn().
			Func(safeotel.LogTraceFields(ctx)).
			Str("frame_id", frameID).
			Str("error_kind", "transport").
			Int("attempt", attempt).
			Int("max_attempts", c.cfg.Retry.MaxAttempts).
			Err(err).
			Msg("reasoning_attempt_failed")

		if ctx.Err() != nil {
			break
		}
	}
	return "", attempts, lastErr
}

// record appends the verdict to the reasoning log. A write failure is
// logged; the verdict is still returned.
func (c *Client) record(ctx context.Context, frameID string, v *Verdict) {
	if c.cfg.Log == nil {
		return
	}
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Str("frame_id", frameID).Err(err).Msg("reasoning_log_encode_failed")
		return
	}
	if err := c.cfg.Log.AppendBlock(ctx, frameID, string(payload)); err != nil {
		log.Error().Str("frame_id", frameID).Err(err).Msg("reasoning_log_write_failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
