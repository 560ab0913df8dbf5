package dashboard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/safeops/internal/advisory"
	"github.com/dativo-io/safeops/internal/auditlog"
	"github.com/dativo-io/safeops/internal/reasoning"
)

// ErrUnknownKind is returned for an advisory kind with no log file.
var ErrUnknownKind = errors.New("unknown advisory kind")

// VerdictEntry is a reasoning log block decoded into a verdict.
type VerdictEntry struct {
	FrameID string            `json:"frame_id"`
	Verdict reasoning.Verdict `json:"verdict"`
}

// FrameSummary joins everything the logs record about one frame.
type FrameSummary struct {
	FrameID           string             `json:"frame_id"`
	Violations        []string           `json:"violations"`
	Actions           []ActionEntry      `json:"actions"`
	Verdict           *reasoning.Verdict `json:"verdict,omitempty"`
	HasActionPlan     bool               `json:"has_action_plan"`
	HasPolicyGuidance bool               `json:"has_policy_recommendation"`
}

// Reader loads the logs under a directory. A missing log reads as empty.
type Reader struct {
	Dir string
}

// NewReader returns a reader over dir.
func NewReader(dir string) *Reader {
	return &Reader{Dir: dir}
}

func (r *Reader) open(name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(r.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return f, nil
}

func (r *Reader) blocks(name string) ([]Block, error) {
	f, err := r.open(name)
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()
	return ParseBlocks(f)
}

// Actions returns every audit line in file order.
func (r *Reader) Actions() ([]ActionEntry, error) {
	f, err := r.open(auditlog.ActionLogFile)
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()
	return ParseActions(f)
}

// Verdicts returns the first verdict logged per frame. Blocks that no longer
// parse are skipped.
func (r *Reader) Verdicts() ([]VerdictEntry, error) {
	blocks, err := r.blocks(auditlog.ReasoningLogFile)
	if err != nil {
		return nil, err
	}
	out := make([]VerdictEntry, 0, len(blocks))
	for _, b := range blocks {
		v, err := reasoning.ParseVerdict(b.Payload)
		if err != nil {
			log.Debug().Str("frame_id", b.FrameID).Err(err).Msg("dashboard_verdict_skipped")
			continue
		}
		out = append(out, VerdictEntry{FrameID: b.FrameID, Verdict: *v})
	}
	return out, nil
}

// Advisories returns the first advisory logged per frame for kind.
func (r *Reader) Advisories(kind advisory.Kind) ([]Block, error) {
	switch kind {
	case advisory.KindActionPlan:
		return r.blocks(auditlog.ActionPlanLogFile)
	case advisory.KindPolicyRecommendation:
		return r.blocks(auditlog.PolicyRecsLogFile)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Frames joins all four logs per frame, ordered by first appearance in the
// action log, then the reasoning log, then the advisory logs.
func (r *Reader) Frames() ([]FrameSummary, error) {
	actions, err := r.Actions()
	if err != nil {
		return nil, err
	}
	verdicts, err := r.Verdicts()
	if err != nil {
		return nil, err
	}
	plans, err := r.Advisories(advisory.KindActionPlan)
	if err != nil {
		return nil, err
	}
	policies, err := r.Advisories(advisory.KindPolicyRecommendation)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var out []FrameSummary
	get := func(id string) *FrameSummary {
		if i, ok := index[id]; ok {
			return &out[i]
		}
		index[id] = len(out)
		out = append(out, FrameSummary{FrameID: id})
		return &out[len(out)-1]
	}

	for _, a := range actions {
		s := get(a.FrameID)
		s.Actions = append(s.Actions, a)
		if !contains(s.Violations, a.Violation) {
			s.Violations = append(s.Violations, a.Violation)
		}
	}
	for _, v := range verdicts {
		verdict := v.Verdict
		get(v.FrameID).Verdict = &verdict
	}
	for _, b := range plans {
		get(b.FrameID).HasActionPlan = true
	}
	for _, b := range policies {
		get(b.FrameID).HasPolicyGuidance = true
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
