package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dativo-io/safeops/internal/llm"
)

// Call is one chat completion against the reasoning service.
type Call struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // 0 = no per-call bound beyond ctx
}

// Transport is the single-attempt primitive shared by the verdict client
// and the advisory client. It performs no retry and no interpretation.
type Transport struct {
	provider llm.Provider
	model    string
}

// NewTransport binds a provider to the model name sent with every call.
func NewTransport(provider llm.Provider, model string) *Transport {
	return &Transport{provider: provider, model: model}
}

// Model returns the model name sent with every call.
func (t *Transport) Model() string { return t.model }

// Provider returns the provider name.
func (t *Transport) Provider() string { return t.provider.Name() }

// Complete sends c and returns the reply text. Every error wraps ErrTransport.
func (t *Transport) Complete(ctx context.Context, c Call) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	messages := make([]llm.Message, 0, 2)
	if strings.TrimSpace(c.System) != "" {
		messages = append(messages, llm.Message{Role: "system", Content: c.System})
	}
	messages = append(messages, llm.Message{Role: "user", Content: c.User})

	resp, err := t.provider.Generate(ctx, &llm.Request{
		Model:       t.model,
		Messages:    messages,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, llm.ErrEmptyResponse)
	}
	return resp.Content, nil
}
