package llm

import (
	"context"
	"strings"
	"time"

	"github.com/postcraft/edge/internal/models"

	"github.com/openai/openai-go/v2"
	openaiOption "github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// OpenAIGenerator calls the chat completions API
type OpenAIGenerator struct {
	client  openai.Client
	timeout time.Duration
}

func NewOpenAIGenerator(apiKey, baseURL string, timeout time.Duration) *OpenAIGenerator {
	opts := []openaiOption.RequestOption{
		openaiOption.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, openaiOption.WithBaseURL(baseURL))
	}

	return &OpenAIGenerator{
		client:  openai.NewClient(opts...),
		timeout: timeout,
	}
}

func (g *OpenAIGenerator) Provider() string { return string(models.LLMProviderOpenAI) }

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", models.NewTimeoutError("openai completion", err)
		}
		return "", models.NewProviderError("openai", "completion request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", models.NewProviderError("openai", "empty completion", nil)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", models.NewProviderError("openai", "empty completion", nil)
	}
	return text, nil
}
