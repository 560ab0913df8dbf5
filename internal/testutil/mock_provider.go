// Package testutil provides shared test helpers, mocks, and utilities for SafeOps tests.
package testutil

import (
	"context"
	"sync"

	"github.com/dativo-io/safeops/internal/llm"
)

// MockProvider implements llm.Provider for tests without live API calls.
// When Content is empty, Generate returns "mock response from " + ProviderName; otherwise uses Content.
// Set Err to simulate transport errors.
type MockProvider struct {
	ProviderName string // provider identifier, e.g. "openai"
	Content      string // canned response; empty = "mock response from " + ProviderName
	Err          error  // if set, Generate returns this error
}

// Name returns the provider identifier (implements llm.Provider).
func (m *MockProvider) Name() string { return m.ProviderName }

// Generate returns a canned response or the configured error.
func (m *MockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	content := m.Content
	if content == "" {
		content = "mock response from " + m.ProviderName
	}
	return &llm.Response{
		Content:      content,
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
	}, nil
}

// Step is one scripted reply: either Err or Content.
type Step struct {
	Content string
	Err     error
}

// ScriptedProvider replays Steps in order and records every request.
// Calls past the end of the script repeat the last step; an empty script
// answers "no responses configured". Safe for concurrent use.
type ScriptedProvider struct {
	mu       sync.Mutex
	Steps    []Step
	Requests []llm.Request
	// Route, if set, picks the reply per request instead of Steps (e.g. by system prompt).
	Route func(req *llm.Request) Step
}

// Name returns "openai".
func (p *ScriptedProvider) Name() string { return "openai" }

// Generate returns the next scripted step and records the request.
func (p *ScriptedProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	idx := len(p.Requests)
	// Copy messages so the caller cannot mutate after the fact.
	recorded := *req
	recorded.Messages = append([]llm.Message(nil), req.Messages...)
	p.Requests = append(p.Requests, recorded)
	steps := p.Steps
	route := p.Route
	p.mu.Unlock()

	var step Step
	switch {
	case route != nil:
		step = route(req)
	case len(steps) == 0:
		step = Step{Content: "no responses configured"}
	case idx >= len(steps):
		step = steps[len(steps)-1]
	default:
		step = steps[idx]
	}

	if step.Err != nil {
		return nil, step.Err
	}
	return &llm.Response{
		Content:      step.Content,
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
	}, nil
}

// CallCount returns the number of Generate calls so far.
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// RequestsWithSystem returns the recorded requests whose system message equals system.
func (p *ScriptedProvider) RequestsWithSystem(system string) []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []llm.Request
	for _, r := range p.Requests {
		if len(r.Messages) > 0 && r.Messages[0].Role == "system" && r.Messages[0].Content == system {
			out = append(out, r)
		}
	}
	return out
}
