package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// WebhookHandler runs a named job on POST /v1/triggers/{name}. Runs of the
// same job never overlap; a request that arrives mid-run gets 409.
type WebhookHandler struct {
	runner  BatchRunner
	jobs    map[string]Job
	mu      sync.Mutex
	running map[string]bool
}

// NewWebhookHandler creates a handler for jobs.
func NewWebhookHandler(runner BatchRunner, jobs ...Job) *WebhookHandler {
	wh := &WebhookHandler{
		runner:  runner,
		jobs:    make(map[string]Job, len(jobs)),
		running: make(map[string]bool),
	}
	for _, j := range jobs {
		wh.jobs[j.Name] = j
	}
	return wh
}

// Jobs returns the configured jobs sorted by name.
func (wh *WebhookHandler) Jobs() []Job {
	out := make([]Job, 0, len(wh.jobs))
	for _, j := range wh.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// webhookResponse is the JSON response for a webhook execution.
type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeResponse(w http.ResponseWriter, status int, resp webhookResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleWebhook runs the job named in the URL and reports the outcome.
func (wh *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	job, ok := wh.jobs[name]
	if !ok {
		writeResponse(w, http.StatusNotFound, webhookResponse{Status: "error", Error: fmt.Sprintf("trigger %q not found", name)})
		return
	}

	if !wh.acquire(name) {
		writeResponse(w, http.StatusConflict, webhookResponse{Status: "error", Error: fmt.Sprintf("trigger %q is already running", name)})
		return
	}
	defer wh.release(name)

	ctx, cancel := context.WithTimeout(r.Context(), DefaultRunTimeout)
	defer cancel()

	log.Info().
		Str("job", name).
		Str("batch", job.BatchPath).
		Msg("webhook_trigger_fired")

	if err := wh.runner.RunJob(ctx, job, "webhook"); err != nil {
		log.Error().Err(err).
			Str("job", name).
			Msg("webhook_trigger_failed")
		writeResponse(w, http.StatusInternalServerError, webhookResponse{Status: "error", Error: err.Error()})
		return
	}

	writeResponse(w, http.StatusOK, webhookResponse{Status: "ok", Message: "batch processed"})
}

func (wh *WebhookHandler) acquire(name string) bool {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	if wh.running[name] {
		return false
	}
	wh.running[name] = true
	return true
}

func (wh *WebhookHandler) release(name string) {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	delete(wh.running, name)
}
