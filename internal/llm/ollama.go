package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	safeotel "github.com/dativo-io/safeops/internal/otel"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaProvider talks to Ollama's native /api/chat endpoint.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaProvider returns a provider for baseURL, or the local default
// when baseURL is empty.
func NewOllamaProvider(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Name returns "ollama".
func (p *OllamaProvider) Name() string { return "ollama" }

// OllamaError is a non-2xx reply from Ollama, or a 200 reply carrying an
// error field.
type OllamaError struct {
	StatusCode int
	Message    string
}

func (e *OllamaError) Error() string {
	return fmt.Sprintf("ollama api error %d: %s", e.StatusCode, e.Message)
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []Message       `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaModelOpts `json:"options"`
}

type ollamaModelOpts struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// Generate sends one non-streaming chat request.
func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(safeotel.LLMRequestAttributes(p.Name(), req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	resp, err := p.chat(ctx, ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Options:  ollamaModelOpts{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	in, out := resp.PromptEvalCount, resp.EvalCount
	if in == 0 && out == 0 {
		// Older Ollama builds omit eval counts; estimate at ~4 chars per token.
		for _, m := range req.Messages {
			in += len(m.Content) / 4
		}
		out = len(resp.Message.Content) / 4
	}
	finish := resp.DoneReason
	if finish == "" {
		finish = "stop"
	}
	span.SetAttributes(safeotel.LLMUsageAttributes(in, out)...)
	span.SetAttributes(safeotel.LLMResponseAttributes("", finish)...)

	return &Response{
		Content:      resp.Message.Content,
		FinishReason: finish,
		InputTokens:  in,
		OutputTokens: out,
		Model:        req.Model,
	}, nil
}

func (p *OllamaProvider) chat(ctx context.Context, body ollamaChatRequest) (*ollamaChatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshalling ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama api call: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading ollama response: %w", err)
	}

	var parsed ollamaChatResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		msg := parsed.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
			if len(msg) > 512 {
				msg = msg[:512]
			}
		}
		return nil, &OllamaError{StatusCode: httpResp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding ollama response: %w", decodeErr)
	}
	if parsed.Error != "" {
		return nil, &OllamaError{StatusCode: httpResp.StatusCode, Message: parsed.Error}
	}
	return &parsed, nil
}
