// Package llm generates captions through one of the supported model providers.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/postcraft/edge/internal/models"
)

// Request is a single-turn generation call
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int64
	// Temperature is left to the provider default when nil
	Temperature *float64
}

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Provider() string
}

// New builds the generator named by cfg.Provider
func New(ctx context.Context, cfg *models.LLMConfig) (Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config is required")
	}
	if cfg.APIKey == "" {
		return nil, models.NewProviderError(string(cfg.Provider), "API key not configured", nil)
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond

	switch cfg.Provider {
	case models.LLMProviderOpenAI:
		return NewOpenAIGenerator(cfg.APIKey, cfg.BaseURL, timeout), nil
	case models.LLMProviderAnthropic:
		return NewAnthropicGenerator(cfg.APIKey, cfg.BaseURL, timeout), nil
	case models.LLMProviderGemini:
		return NewGeminiGenerator(ctx, cfg.APIKey, timeout)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}

// NormalizePrompt trims, collapses whitespace runs and caps the prompt at
// maxChars runes.
func NormalizePrompt(s string, maxChars int) string {
	out := strings.Join(strings.Fields(s), " ")
	if maxChars > 0 && utf8.RuneCountInString(out) > maxChars {
		out = string([]rune(out)[:maxChars])
	}
	return out
}

// withTimeout bounds a provider call when timeout is set
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
