package llm

import (
	"context"
	"strings"
	"time"

	"github.com/postcraft/edge/internal/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 512

// AnthropicGenerator calls the Messages API
type AnthropicGenerator struct {
	client  anthropic.Client
	timeout time.Duration
}

func NewAnthropicGenerator(apiKey, baseURL string, timeout time.Duration) *AnthropicGenerator {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}

	return &AnthropicGenerator{
		client:  anthropic.NewClient(clientOpts...),
		timeout: timeout,
	}
}

func (g *AnthropicGenerator) Provider() string { return string(models.LLMProviderAnthropic) }

func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		MaxTokens: maxTokens,
		Model:     anthropic.Model(req.Model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	message, err := g.client.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", models.NewTimeoutError("anthropic message", err)
		}
		return "", models.NewProviderError("anthropic", "message request failed", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", models.NewProviderError("anthropic", "empty message", nil)
	}
	return text, nil
}
