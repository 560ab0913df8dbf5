// Package evidence keeps an HMAC-signed mirror of every processed frame.
//
// The text logs are the compatibility contract read by the dashboard; this
// store is an additional tamper-evident record of the same decisions. Each
// FrameRecord is signed (HMAC-SHA256) and persisted in SQLite so a run can be
// listed and verified after the fact with `safeops audit`.
package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	safeotel "github.com/dativo-io/safeops/internal/otel"
)

var tracer = safeotel.Tracer("github.com/dativo-io/safeops/internal/evidence")

// ErrNotFound is returned when no record matches the requested id.
var ErrNotFound = errors.New("evidence not found")

// Store persists HMAC-signed frame records in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
}

// FrameRecord is the full audit record for one frame pass.
type FrameRecord struct {
	ID            string           `json:"id"`
	RunID         string           `json:"run_id"`
	FrameID       string           `json:"frame_id"`
	Timestamp     time.Time        `json:"timestamp"`
	Location      string           `json:"location"`
	Shift         string           `json:"shift"`
	Detections    []string         `json:"detections"`
	Actions       []ActionRecord   `json:"actions"`
	Verdict       *VerdictRecord   `json:"verdict,omitempty"`
	Reasoning     ReasoningOutcome `json:"reasoning"`
	Notifications int              `json:"notifications"`
	Advisories    []AdvisoryRecord `json:"advisories,omitempty"`
	DurationMS    int64            `json:"duration_ms"`
	Signature     string           `json:"signature"`
}

// ActionRecord is one resolved rule action.
type ActionRecord struct {
	Violation string `json:"violation"`
	Action    string `json:"action"`
	NotifyNow bool   `json:"notify_now"`
}

// VerdictRecord mirrors the escalation verdict returned by the reasoning service.
type VerdictRecord struct {
	Escalate         bool     `json:"escalate"`
	NotifyRoles      []string `json:"notify_roles"`
	ShutdownRequired bool     `json:"shutdown_required"`
	Summary          string   `json:"summary"`
}

// ReasoningOutcome captures how the reasoning call went for the frame.
type ReasoningOutcome struct {
	Model     string `json:"model,omitempty"`
	Attempts  int    `json:"attempts"`
	ErrorKind string `json:"error_kind,omitempty"` // "transport", "parse" or empty on success
	Error     string `json:"error,omitempty"`
}

// AdvisoryRecord stores a content hash of an advisory, not its text.
type AdvisoryRecord struct {
	Kind      string `json:"kind"`
	Violation string `json:"violation"`
	OK        bool   `json:"ok"`
	TextHash  string `json:"text_hash,omitempty"`
}

// NewStore creates an evidence store with HMAC signing.
func NewStore(dbPath string, signingKey string) (*Store, error) {
	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening evidence database: %w", err)
	}
	// Frames may be processed concurrently; SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS frame_evidence (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		frame_id TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		escalated INTEGER NOT NULL,
		record_json TEXT NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_frame_evidence_run ON frame_evidence(run_id);
	CREATE INDEX IF NOT EXISTS idx_frame_evidence_frame ON frame_evidence(frame_id);
	CREATE INDEX IF NOT EXISTS idx_frame_evidence_timestamp ON frame_evidence(timestamp);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating evidence schema: %w", err)
	}

	return &Store{
		db:     db,
		signer: signer,
	}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Store signs rec and saves it. rec.Signature is set on return.
func (s *Store) Store(ctx context.Context, rec *FrameRecord) error {
	ctx, span := tracer.Start(ctx, "evidence.store",
		trace.WithAttributes(
			attribute.String("evidence.id", rec.ID),
			safeotel.FrameID.String(rec.FrameID),
			attribute.String("safeops.run_id", rec.RunID),
		))
	defer span.End()

	rec.Signature = ""
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling evidence: %w", err)
	}

	signature, err := s.signer.Sign(recordJSON)
	if err != nil {
		return fmt.Errorf("signing evidence: %w", err)
	}
	rec.Signature = signature

	recordJSONWithSig, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling signed evidence: %w", err)
	}

	escalated := 0
	if rec.Verdict != nil && rec.Verdict.Escalate {
		escalated = 1
	}

	query := `INSERT INTO frame_evidence (id, run_id, frame_id, timestamp, escalated, record_json, signature)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.RunID, rec.FrameID, rec.Timestamp, escalated,
		string(recordJSONWithSig), signature,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing evidence: %w", err)
	}

	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*FrameRecord, error) {
	ctx, span := tracer.Start(ctx, "evidence.get",
		trace.WithAttributes(attribute.String("evidence.id", id)))
	defer span.End()

	var recordJSON string
	query := `SELECT record_json FROM frame_evidence WHERE id = ?`
	err := s.db.QueryRowContext(ctx, query, id).Scan(&recordJSON)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evidence %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}

	var rec FrameRecord
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling evidence: %w", err)
	}

	return &rec, nil
}

// Filter narrows List and ListIndex. Zero fields are ignored.
type Filter struct {
	RunID         string
	FrameID       string
	EscalatedOnly bool
	From          time.Time
	To            time.Time
	Limit         int
}

func (f Filter) where() (string, []interface{}) {
	clause := ` WHERE 1=1`
	args := []interface{}{}

	if f.RunID != "" {
		clause += ` AND run_id = ?`
		args = append(args, f.RunID)
	}
	if f.FrameID != "" {
		clause += ` AND frame_id = ?`
		args = append(args, f.FrameID)
	}
	if f.EscalatedOnly {
		clause += ` AND escalated = 1`
	}
	if !f.From.IsZero() {
		clause += ` AND timestamp >= ?`
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		clause += ` AND timestamp <= ?`
		args = append(args, f.To)
	}
	return clause, args
}

// List returns records matching the filter, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]FrameRecord, error) {
	ctx, span := tracer.Start(ctx, "evidence.list",
		trace.WithAttributes(
			attribute.String("safeops.run_id", f.RunID),
			safeotel.FrameID.String(f.FrameID),
		))
	defer span.End()

	where, args := f.where()
	query := `SELECT record_json FROM frame_evidence` + where + ` ORDER BY timestamp DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}
	defer rows.Close()

	var results []FrameRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			continue
		}

		var rec FrameRecord
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			continue
		}

		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating evidence: %w", err)
	}

	span.SetAttributes(attribute.Int("evidence.count", len(results)))
	return results, nil
}

// Verify checks the HMAC signature integrity of a record.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "evidence.verify",
		trace.WithAttributes(attribute.String("evidence.id", id)))
	defer span.End()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return s.verifyRecord(rec)
}

func (s *Store) verifyRecord(rec *FrameRecord) (bool, error) {
	signature := rec.Signature
	rec.Signature = ""
	defer func() { rec.Signature = signature }()

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshaling for verification: %w", err)
	}

	return s.signer.Verify(recordJSON, signature), nil
}

// VerifyRun verifies every record of a run and returns the ids that failed.
func (s *Store) VerifyRun(ctx context.Context, runID string) (checked int, invalid []string, err error) {
	ctx, span := tracer.Start(ctx, "evidence.verify_run",
		trace.WithAttributes(attribute.String("safeops.run_id", runID)))
	defer span.End()

	records, err := s.List(ctx, Filter{RunID: runID})
	if err != nil {
		return 0, nil, err
	}
	for i := range records {
		ok, err := s.verifyRecord(&records[i])
		if err != nil {
			return checked, invalid, err
		}
		checked++
		if !ok {
			invalid = append(invalid, records[i].ID)
		}
	}
	span.SetAttributes(attribute.Int("evidence.invalid_count", len(invalid)))
	return checked, invalid, nil
}

// Index is a one-line summary used by `safeops audit list`.
type Index struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	FrameID       string    `json:"frame_id"`
	Timestamp     time.Time `json:"timestamp"`
	Detections    int       `json:"detections"`
	Escalated     bool      `json:"escalated"`
	Notifications int       `json:"notifications"`
	ReasoningOK   bool      `json:"reasoning_ok"`
	DurationMS    int64     `json:"duration_ms"`
}

// ListIndex returns lightweight summaries for the filter, newest first.
func (s *Store) ListIndex(ctx context.Context, f Filter) ([]Index, error) {
	records, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]Index, 0, len(records))
	for i := range records {
		out = append(out, toIndex(&records[i]))
	}
	return out, nil
}

func toIndex(rec *FrameRecord) Index {
	return Index{
		ID:            rec.ID,
		RunID:         rec.RunID,
		FrameID:       rec.FrameID,
		Timestamp:     rec.Timestamp,
		Detections:    len(rec.Detections),
		Escalated:     rec.Verdict != nil && rec.Verdict.Escalate,
		Notifications: rec.Notifications,
		ReasoningOK:   rec.Reasoning.ErrorKind == "" && len(rec.Detections) > 0,
		DurationMS:    rec.DurationMS,
	}
}
