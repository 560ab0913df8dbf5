package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/dativo-io/safeops/internal/notify"
)

// RecordingNotifier captures alerts. Set Err to simulate a transport failure;
// alerts are recorded either way.
type RecordingNotifier struct {
	mu     sync.Mutex
	Alerts []notify.Alert
	Err    error
}

// Name returns "recording".
func (r *RecordingNotifier) Name() string { return "recording" }

// Notify records the alert.
func (r *RecordingNotifier) Notify(_ context.Context, alert notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Alerts = append(r.Alerts, alert)
	return r.Err
}

// Sent returns a copy of the recorded alerts.
func (r *RecordingNotifier) Sent() []notify.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Alert(nil), r.Alerts...)
}

// AuditEntry is one line captured by MemoryAudit.
type AuditEntry struct {
	Time      time.Time
	FrameID   string
	Violation string
	Action    string
}

// MemoryAudit is an in-memory audit sink.
type MemoryAudit struct {
	mu      sync.Mutex
	Entries []AuditEntry
	Err     error
}

// Append records the entry with the current time.
func (m *MemoryAudit) Append(_ context.Context, frameID, violationType, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Entries = append(m.Entries, AuditEntry{Time: time.Now(), FrameID: frameID, Violation: violationType, Action: action})
	return nil
}

// ForFrame returns the entries for frameID in append order.
func (m *MemoryAudit) ForFrame(frameID string) []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEntry
	for _, e := range m.Entries {
		if e.FrameID == frameID {
			out = append(out, e)
		}
	}
	return out
}

// MemoryBlocks is an in-memory block sink.
type MemoryBlocks struct {
	mu     sync.Mutex
	Frames []string
	Blocks []string
}

// AppendBlock records the block.
func (m *MemoryBlocks) AppendBlock(_ context.Context, frameID, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Frames = append(m.Frames, frameID)
	m.Blocks = append(m.Blocks, payload)
	return nil
}
