package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/postcraft/edge/internal/models"

	"google.golang.org/genai"
)

// GeminiGenerator calls GenerateContent on the Gemini API backend
type GeminiGenerator struct {
	client  *genai.Client
	timeout time.Duration
}

func NewGeminiGenerator(ctx context.Context, apiKey string, timeout time.Duration) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, timeout: timeout}, nil
}

func (g *GeminiGenerator) Provider() string { return string(models.LLMProviderGemini) }

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), config)
	if err != nil {
		if ctx.Err() != nil {
			return "", models.NewTimeoutError("gemini generate", err)
		}
		return "", models.NewProviderError("gemini", "generate request failed", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", models.NewProviderError("gemini", "empty response", nil)
	}
	return text, nil
}
