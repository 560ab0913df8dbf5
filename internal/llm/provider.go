// Package llm is the transport layer to the external reasoning service.
//
// A Provider sends one chat completion and returns the raw reply text; it
// does not retry and does not interpret the content. Retry, timeout and
// parsing policy live in the reasoning and advisory packages.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall bounds a single provider call when the caller's context
// carries no deadline of its own.
const TimeoutLLMCall = 120 * time.Second

// Domain errors for the LLM package.
var (
	ErrProviderNotAvailable = errors.New("provider not available")
	ErrEmptyResponse        = errors.New("empty response from provider")
)

// Provider is the interface all reasoning-service backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string
	// Generate sends a completion request and returns the response.
	// Any returned error is a transport failure.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request represents an LLM generation request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Response represents an LLM generation response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}

// withDefaultTimeout applies TimeoutLLMCall when ctx has no deadline.
func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, TimeoutLLMCall)
}
