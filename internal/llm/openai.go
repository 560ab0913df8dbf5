package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	safeotel "github.com/dativo-io/safeops/internal/otel"
)

var tracer = safeotel.Tracer("github.com/dativo-io/safeops/internal/llm")

// OpenAIProvider speaks the /v1/chat/completions protocol: OpenAI itself or
// a self-hosted server such as vLLM, LM Studio or llama.cpp.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider returns a provider for baseURL, or api.openai.com when
// baseURL is empty. Local servers usually accept an empty apiKey.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = NormalizeOpenAIBaseURL(baseURL)
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

// NormalizeOpenAIBaseURL accepts both "http://host:1234" and
// "http://host:1234/v1/" and returns the form ending in "/v1".
func NormalizeOpenAIBaseURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

// Generate sends one chat completion.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(safeotel.LLMRequestAttributes(p.Name(), req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai api error %d: %w", apiErr.HTTPStatusCode, err)
		}
		return nil, fmt.Errorf("openai api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("openai api call: %w", ErrEmptyResponse)
		span.RecordError(err)
		return nil, err
	}

	choice := resp.Choices[0]
	span.SetAttributes(safeotel.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	span.SetAttributes(safeotel.LLMResponseAttributes(resp.ID, string(choice.FinishReason))...)

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        model,
	}, nil
}
