package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Generator creates and persists frame records.
type Generator struct {
	store *Store
	now   func() time.Time
}

// NewGenerator creates an evidence generator backed by the given store.
func NewGenerator(store *Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// AdvisoryParams is one advisory outcome; Text is hashed, never stored.
type AdvisoryParams struct {
	Kind      string
	Violation string
	OK        bool
	Text      string
}

// GenerateParams holds everything known about a frame once it has been processed.
type GenerateParams struct {
	RunID         string
	FrameID       string
	Location      string
	Shift         string
	Detections    []string
	Actions       []ActionRecord
	Verdict       *VerdictRecord
	Reasoning     ReasoningOutcome
	Notifications int
	Advisories    []AdvisoryParams
	Duration      time.Duration
}

// Generate creates, signs and stores a FrameRecord from params.
func (g *Generator) Generate(ctx context.Context, params GenerateParams) (*FrameRecord, error) {
	rec := &FrameRecord{
		ID:            "frm_" + uuid.New().String()[:8],
		RunID:         params.RunID,
		FrameID:       params.FrameID,
		Timestamp:     g.now().UTC(),
		Location:      params.Location,
		Shift:         params.Shift,
		Detections:    params.Detections,
		Actions:       params.Actions,
		Verdict:       params.Verdict,
		Reasoning:     params.Reasoning,
		Notifications: params.Notifications,
		DurationMS:    params.Duration.Milliseconds(),
	}
	for _, a := range params.Advisories {
		ar := AdvisoryRecord{Kind: a.Kind, Violation: a.Violation, OK: a.OK}
		if a.OK {
			ar.TextHash = hashString(a.Text)
		}
		rec.Advisories = append(rec.Advisories, ar)
	}

	if err := g.store.Store(ctx, rec); err != nil {
		return nil, err
	}

	return rec, nil
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(h[:])
}
