package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToExportRecord(t *testing.T) {
	rec := &FrameRecord{
		ID:         "frm_1",
		RunID:      "run_a",
		FrameID:    "frame_005",
		Timestamp:  time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC),
		Location:   "near blast zone",
		Shift:      "day shift",
		Detections: []string{"no_helmet", "trip_hazard"},
		Verdict: &VerdictRecord{
			Escalate:         true,
			NotifyRoles:      []string{"supervisor", "safety officer"},
			ShutdownRequired: false,
			Summary:          "Worker without helmet near blast zone",
		},
		Reasoning:     ReasoningOutcome{Model: "mistral-7b-instruct-v0.2", Attempts: 1},
		Notifications: 3,
		DurationMS:    42,
		Signature:     "hmac-sha256:abc",
	}

	out := ToExportRecord(rec)

	assert.Equal(t, "frm_1", out.ID)
	assert.Equal(t, "run_a", out.RunID)
	assert.Equal(t, "frame_005", out.FrameID)
	assert.True(t, out.Escalate)
	assert.False(t, out.ShutdownRequired)
	assert.Equal(t, []string{"supervisor", "safety officer"}, out.NotifyRoles)
	assert.Equal(t, 3, out.Notifications)
	assert.Empty(t, out.ReasoningError)
	assert.Equal(t, "hmac-sha256:abc", out.Signature)

	rec.Detections[0] = "mutated"
	assert.Equal(t, "no_helmet", out.Violations[0], "export must not alias the record slices")
}

func TestToExportRecord_NoVerdict(t *testing.T) {
	rec := &FrameRecord{
		ID:         "frm_2",
		FrameID:    "F1",
		Detections: []string{"no_helmet"},
		Reasoning:  ReasoningOutcome{Attempts: 2, ErrorKind: "transport", Error: "connection refused"},
	}

	out := ToExportRecord(rec)
	assert.False(t, out.Escalate)
	assert.Nil(t, out.NotifyRoles)
	assert.Equal(t, "transport", out.ReasoningError)
}

func TestExportRecord_CSVHelpers(t *testing.T) {
	r := ExportRecord{
		Violations:  []string{"no_helmet", "trip_hazard"},
		NotifyRoles: []string{"supervisor"},
	}
	assert.Equal(t, "no_helmet;trip_hazard", r.ViolationsCSV())
	assert.Equal(t, "supervisor", r.NotifyRolesCSV())

	empty := ExportRecord{}
	assert.Equal(t, "", empty.ViolationsCSV())
	assert.Len(t, CSVHeader, 13)
	assert.Len(t, empty.CSVRow(), len(CSVHeader))
}

func TestExportRecord_CSVRow(t *testing.T) {
	r := ExportRecord{
		ID:          "frm_1",
		FrameID:     "frame_005",
		Timestamp:   time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		Violations:  []string{"trip-hazard"},
		Escalate:    true,
		NotifyRoles: []string{"Supervisor", "Safety Officer"},
		DurationMS:  42,
	}
	row := r.CSVRow()
	assert.Equal(t, "frm_1", row[0])
	assert.Equal(t, "2025-03-01T08:00:00Z", row[3])
	assert.Equal(t, "true", row[7])
	assert.Equal(t, "Supervisor;Safety Officer", row[9])
	assert.Equal(t, "42", row[12])
}
