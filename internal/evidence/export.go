package evidence

import (
	"strconv"
	"strings"
	"time"
)

// ExportRecord is a flat view of a FrameRecord for CSV/JSON export
// (`safeops audit export --format csv|json`).
type ExportRecord struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id"`
	FrameID          string    `json:"frame_id"`
	Timestamp        time.Time `json:"timestamp"`
	Location         string    `json:"location"`
	Shift            string    `json:"shift"`
	Violations       []string  `json:"violations,omitempty"`
	Escalate         bool      `json:"escalate"`
	ShutdownRequired bool      `json:"shutdown_required"`
	NotifyRoles      []string  `json:"notify_roles,omitempty"`
	Notifications    int       `json:"notifications"`
	ReasoningError   string    `json:"reasoning_error,omitempty"`
	DurationMS       int64     `json:"duration_ms"`
	Signature        string    `json:"signature"`
}

// ToExportRecord builds an ExportRecord from a full FrameRecord.
func ToExportRecord(rec *FrameRecord) ExportRecord {
	out := ExportRecord{
		ID:             rec.ID,
		RunID:          rec.RunID,
		FrameID:        rec.FrameID,
		Timestamp:      rec.Timestamp,
		Location:       rec.Location,
		Shift:          rec.Shift,
		Notifications:  rec.Notifications,
		ReasoningError: rec.Reasoning.ErrorKind,
		DurationMS:     rec.DurationMS,
		Signature:      rec.Signature,
	}
	if len(rec.Detections) > 0 {
		out.Violations = append([]string(nil), rec.Detections...)
	}
	if rec.Verdict != nil {
		out.Escalate = rec.Verdict.Escalate
		out.ShutdownRequired = rec.Verdict.ShutdownRequired
		if len(rec.Verdict.NotifyRoles) > 0 {
			out.NotifyRoles = append([]string(nil), rec.Verdict.NotifyRoles...)
		}
	}
	return out
}

// CSVHeader is the column order written by CSVRow.
var CSVHeader = []string{
	"id", "run_id", "frame_id", "timestamp", "location", "shift", "violations",
	"escalate", "shutdown_required", "notify_roles", "notifications", "reasoning_error", "duration_ms",
}

// ViolationsCSV returns semicolon-separated violation tags for CSV export.
func (r *ExportRecord) ViolationsCSV() string {
	return strings.Join(r.Violations, ";")
}

// NotifyRolesCSV returns semicolon-separated roles for CSV export.
func (r *ExportRecord) NotifyRolesCSV() string {
	return strings.Join(r.NotifyRoles, ";")
}

// CSVRow returns the record's fields in CSVHeader order.
func (r *ExportRecord) CSVRow() []string {
	return []string{
		r.ID, r.RunID, r.FrameID, r.Timestamp.Format(time.RFC3339), r.Location, r.Shift,
		r.ViolationsCSV(), strconv.FormatBool(r.Escalate), strconv.FormatBool(r.ShutdownRequired),
		r.NotifyRolesCSV(), strconv.Itoa(r.Notifications), r.ReasoningError,
		strconv.FormatInt(r.DurationMS, 10),
	}
}
