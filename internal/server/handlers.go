package server

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/safeops/internal/advisory"
	"github.com/dativo-io/safeops/internal/dashboard"
	"github.com/dativo-io/safeops/internal/evidence"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).
		Str("path", r.URL.Path).
		Str("caller", CallerFromContext(r.Context())).
		Msg("api_request_failed")
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]string{"logs": s.logs.Dir}
		if s.evidenceStore == nil {
			components["evidence_store"] = "disabled"
		} else {
			components["evidence_store"] = "ok"
		}
		if s.webhookHandler == nil {
			components["triggers"] = "disabled"
		} else {
			components["triggers"] = "ok"
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	frames, err := s.logs.Frames()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if r.URL.Query().Get("escalated") == "true" {
		filtered := frames[:0]
		for _, f := range frames {
			if f.Verdict != nil && f.Verdict.Escalate {
				filtered = append(filtered, f)
			}
		}
		frames = filtered
	}
	if frames == nil {
		frames = []dashboard.FrameSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"frames": frames, "count": len(frames)})
}

func (s *Server) handleFrameGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	frames, err := s.logs.Frames()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	for _, f := range frames {
		if f.FrameID == id {
			writeJSON(w, http.StatusOK, f)
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", "frame "+id+" not found")
}

func (s *Server) handleVerdicts(w http.ResponseWriter, r *http.Request) {
	verdicts, err := s.logs.Verdicts()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if verdicts == nil {
		verdicts = []dashboard.VerdictEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"verdicts": verdicts, "count": len(verdicts)})
}

func (s *Server) handleAdvisories(w http.ResponseWriter, r *http.Request) {
	kind := advisory.Kind(chi.URLParam(r, "kind"))
	blocks, err := s.logs.Advisories(kind)
	if errors.Is(err, dashboard.ErrUnknownKind) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	views := make([]advisoryView, 0, len(blocks))
	for _, b := range blocks {
		views = append(views, advisoryView{FrameID: b.FrameID, Payload: b.Payload, HTML: s.markup.Sanitize(b.Payload)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": kind, "advisories": views, "count": len(views)})
}

// advisoryView carries the logged text verbatim plus an HTML rendering
// that dashboards can embed: model-emitted formatting survives, scripts
// and event handlers do not.
type advisoryView struct {
	FrameID string `json:"frame_id"`
	Payload string `json:"payload"`
	HTML    string `json:"payload_html"`
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.logs.Actions()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if frameID := r.URL.Query().Get("frame_id"); frameID != "" {
		filtered := actions[:0]
		for _, a := range actions {
			if a.FrameID == frameID {
				filtered = append(filtered, a)
			}
		}
		actions = filtered
	}
	if actions == nil {
		actions = []dashboard.ActionEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions, "count": len(actions)})
}

func (s *Server) handleTriggersList(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name     string `json:"name"`
		Schedule string `json:"schedule,omitempty"`
		Batch    string `json:"batch"`
	}
	out := []entry{}
	if s.webhookHandler != nil {
		for _, j := range s.webhookHandler.Jobs() {
			out = append(out, entry{Name: j.Name, Schedule: j.Schedule, Batch: j.BatchPath})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"triggers": out})
}

// evidenceFilter reads run_id, frame_id, escalated, from, to and limit.
func evidenceFilter(r *http.Request, defaultLimit int) evidence.Filter {
	q := r.URL.Query()
	f := evidence.Filter{
		RunID:         q.Get("run_id"),
		FrameID:       q.Get("frame_id"),
		EscalatedOnly: q.Get("escalated") == "true",
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if v := q.Get("from"); v != "" {
		f.From, _ = time.Parse(time.RFC3339, v)
	}
	if v := q.Get("to"); v != "" {
		f.To, _ = time.Parse(time.RFC3339, v)
	}
	return f
}

func (s *Server) handleEvidenceList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.evidenceStore.ListIndex(r.Context(), evidenceFilter(r, 50))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"layer":   "index",
		"entries": entries,
		"hint":    "use GET /v1/evidence/<id> for the full record",
	})
}

func (s *Server) handleEvidenceGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.evidenceStore.Get(r.Context(), id)
	if errors.Is(err, evidence.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEvidenceVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	valid, err := s.evidenceStore.Verify(r.Context(), id)
	if errors.Is(err, evidence.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "valid": valid})
}

func (s *Server) handleEvidenceExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "csv" && format != "json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "format must be csv or json")
		return
	}
	list, err := s.evidenceStore.List(r.Context(), evidenceFilter(r, 1000))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	records := make([]evidence.ExportRecord, len(list))
	for i := range list {
		records[i] = evidence.ToExportRecord(&list[i])
	}
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		cw := csv.NewWriter(w)
		_ = cw.Write(evidence.CSVHeader)
		for i := range records {
			_ = cw.Write(records[i].CSVRow())
		}
		cw.Flush()
		return
	}
	writeJSON(w, http.StatusOK, records)
}
