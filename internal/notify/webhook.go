package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// webhookPayload is the JSON body POSTed for each alert.
type webhookPayload struct {
	Alert
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookNotifier POSTs alerts as JSON to a paging endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier with a 10s request timeout.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns "webhook".
func (h *WebhookNotifier) Name() string { return "webhook" }

// Notify POSTs the alert. Any transport error or non-2xx status is a failure.
func (h *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	if h.url == "" {
		return nil
	}

	body, err := json.Marshal(webhookPayload{Alert: alert, Subject: alert.Subject(), Timestamp: time.Now().UTC()})
	if err != nil {
		return wrap(h.Name(), fmt.Errorf("marshaling alert: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return wrap(h.Name(), fmt.Errorf("creating webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SafeOps-Alert", string(alert.Source))

	// URL comes from operator configuration, not detector input.
	resp, err := h.client.Do(req) // #nosec G107
	if err != nil {
		return wrap(h.Name(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return wrap(h.Name(), fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}

	log.Debug().Int("status", resp.StatusCode).Str("url", h.url).Str("frame_id", alert.FrameID).Msg("webhook_delivered")
	return nil
}
