package llm

import (
	"fmt"
	"strings"
)

// ProviderConfig selects and configures a reasoning-service backend.
type ProviderConfig struct {
	Name          string // "openai" or "ollama"
	BaseURL       string // empty = provider default
	APIKey        string
	RatePerMinute int // 0 = unlimited
}

// NewProvider builds the Provider named in cfg, wrapped in a rate limiter
// when RatePerMinute is set.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	var p Provider
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "openai":
		p = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL)
	case "ollama":
		p = NewOllamaProvider(cfg.BaseURL)
	default:
		return nil, fmt.Errorf("provider %q: %w", cfg.Name, ErrProviderNotAvailable)
	}
	if cfg.RatePerMinute > 0 {
		p = NewRateLimited(p, cfg.RatePerMinute)
	}
	return p, nil
}

// ProviderUsesAPIKey reports whether the named provider requires an API key.
// Ollama (local) does not; OpenAI-compatible local servers accept an empty key.
func ProviderUsesAPIKey(providerName string) bool {
	return strings.ToLower(providerName) == "openai"
}
