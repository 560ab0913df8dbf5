// Package advisory requests free-text guidance for a frame: a supervisor
// action plan and a training/policy recommendation. Replies are sanitized
// and returned as opaque text; there is no structural parsing and no retry.
package advisory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	safeotel "github.com/dativo-io/safeops/internal/otel"
	"github.com/dativo-io/safeops/internal/reasoning"
	"github.com/dativo-io/safeops/internal/violation"
)

var tracer = safeotel.Tracer("github.com/dativo-io/safeops/internal/advisory")

// Kind distinguishes the two advisory requests.
type Kind string

const (
	KindActionPlan           Kind = "action-plan"
	KindPolicyRecommendation Kind = "policy-recommendation"
)

// Fixed texts returned in place of an advisory that could not be obtained.
const (
	ActionPlanFailed = "LLM failed to generate action plan."
	PolicyFailed     = "LLM failed to suggest policy."
)

// Request parameters shared by both advisory kinds.
const (
	DefaultTimeout = 120 * time.Second
	Temperature    = 0.5
	MaxTokens      = 300
)

// ErrEmpty marks a reply that was empty after sanitization.
var ErrEmpty = errors.New("empty advisory after sanitization")

type prompt struct {
	system   string
	question string
	fallback string
}

var prompts = map[Kind]prompt{
	KindActionPlan: {
		system:   "You're an expert in industrial safety protocols.",
		question: "Suggest a step-by-step action plan that a site supervisor should follow to address this violation.",
		fallback: ActionPlanFailed,
	},
	KindPolicyRecommendation: {
		system:   "You're a safety training expert. Respond clearly without Markdown or bullets.",
		question: "What training, checklist, or policy changes could prevent this type of violation in the future?",
		fallback: PolicyFailed,
	},
}

// SystemPrompt returns the system prompt used for kind.
func SystemPrompt(kind Kind) string { return prompts[kind].system }

// BlockSink receives one "[Frame <id>]" block per successful advisory.
type BlockSink = reasoning.BlockSink

// Config configures a Client.
type Config struct {
	Timeout       time.Duration // per call; 0 = DefaultTimeout
	ActionPlanLog BlockSink     // optional
	PolicyLog     BlockSink     // optional
}

// Advisory is one advisory outcome for a frame.
type Advisory struct {
	FrameID   string
	Kind      Kind
	Violation violation.Kind
	Text      string // sanitized reply, or the fixed failure text
	Err       error  // nil on success
}

// OK reports whether the advisory text came from the service.
func (a Advisory) OK() bool { return a.Err == nil }

// Client requests advisories over the shared reasoning transport.
type Client struct {
	transport *reasoning.Transport
	cfg       Config
}

// NewClient creates an advisory client.
func NewClient(transport *reasoning.Transport, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{transport: transport, cfg: cfg}
}

// ActionPlan asks for a step-by-step supervisor action plan. On failure it
// returns ActionPlanFailed together with the error.
func (c *Client) ActionPlan(ctx context.Context, frameID string, kind violation.Kind) (string, error) {
	return c.request(ctx, KindActionPlan, frameID, kind)
}

// PolicyRecommendation asks for training, checklist or policy changes. On
// failure it returns PolicyFailed together with the error.
func (c *Client) PolicyRecommendation(ctx context.Context, frameID string, kind violation.Kind) (string, error) {
	return c.request(ctx, KindPolicyRecommendation, frameID, kind)
}

// ForFrame requests both advisories for the frame's first detection only.
// A frame without detections yields nothing.
func (c *Client) ForFrame(ctx context.Context, frame violation.Frame) []Advisory {
	first, ok := frame.FirstType()
	if !ok {
		return nil
	}
	out := make([]Advisory, 0, 2)
	for _, kind := range []Kind{KindActionPlan, KindPolicyRecommendation} {
		text, err := c.request(ctx, kind, frame.FrameID, first)
		out = append(out, Advisory{FrameID: frame.FrameID, Kind: kind, Violation: first, Text: text, Err: err})
	}
	return out
}

func (c *Client) request(ctx context.Context, kind Kind, frameID string, v violation.Kind) (string, error) {
	p := prompts[kind]
	ctx, span := tracer.Start(ctx, "advisory."+string(kind),
		trace.WithAttributes(safeotel.FrameID.String(frameID), safeotel.ViolationType.String(string(v))))
	defer span.End()

	reply, err := c.transport.Complete(ctx, reasoning.Call{
		System:      p.system,
		User:        fmt.Sprintf("Frame ID: %s\nViolation type: %s\n\n%s\n", frameID, v, p.question),
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
		Timeout:     c.cfg.Timeout,
	})
	if err == nil {
		reply = Sanitize(reply)
		if reply == "" {
			err = ErrEmpty
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(safeotel.ErrorKind.String(failureKind(err)))
		log.Warn().
			Func(safeotel.LogTraceFields(ctx)).
			Str("frame_id", frameID).
			Str("advisory", string(kind)).
			Str("error_kind", failureKind(err)).
			Err(err).
			Msg("advisory_failed")
		return p.fallback, fmt.Errorf("%s for frame %s: %w", kind, frameID, err)
	}

	if sink := c.sink(kind); sink != nil {
		if werr := sink.AppendBlock(ctx, frameID, reply); werr != nil {
			log.Error().Str("frame_id", frameID).Str("advisory", string(kind)).Err(werr).Msg("advisory_log_write_failed")
		}
	}
	return reply, nil
}

func (c *Client) sink(kind Kind) BlockSink {
	if kind == KindActionPlan {
		return c.cfg.ActionPlanLog
	}
	return c.cfg.PolicyLog
}

// Sanitize strips fence markers and surrounding whitespace. The rest of the
// reply is kept verbatim; markup is only neutralized where it is rendered.
func Sanitize(text string) string {
	return strings.TrimSpace(reasoning.StripFences(text))
}

func failureKind(err error) string {
	if errors.Is(err, ErrEmpty) {
		return "parse"
	}
	return reasoning.KindName(err)
}
