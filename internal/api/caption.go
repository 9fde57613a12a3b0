package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/aicache"
	"github.com/postcraft/edge/internal/services/llm"
	"github.com/postcraft/edge/internal/services/request"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// NewsCacheTTL keeps news captions fresh while evergreen ones use the cache default
const NewsCacheTTL = 5 * time.Minute

// HeaderModel names the model that produced the caption
const HeaderModel = "x-model"

// CaptionHandler generates social captions through the AI cache
type CaptionHandler struct {
	cfg          *models.LLMConfig
	generator    llm.Generator
	cache        *aicache.Cache
	maxJSONBytes int
}

func NewCaptionHandler(cfg *models.LLMConfig, generator llm.Generator, cache *aicache.Cache, maxJSONBytes int) *CaptionHandler {
	return &CaptionHandler{
		cfg:          cfg,
		generator:    generator,
		cache:        cache,
		maxJSONBytes: maxJSONBytes,
	}
}

type newsKey struct {
	Category string `json:"category"`
	Window   string `json:"window"`
}

// captionKey is every input that changes the generated caption
type captionKey struct {
	Model         string   `json:"model"`
	Platform      string   `json:"platform"`
	Tone          string   `json:"tone"`
	Length        string   `json:"length"`
	Persona       string   `json:"persona"`
	Subcategory   string   `json:"subcategory"`
	AllowEmojis   bool     `json:"allow_emojis"`
	AllowHashtags bool     `json:"allow_hashtags"`
	News          *newsKey `json:"news"`
	Prompt        *string  `json:"prompt"`
	MaxTokens     int64    `json:"max_tokens"`
}

// Generate handles POST /functions/generate-caption
func (h *CaptionHandler) Generate(c *fiber.Ctx) error {
	reqID := request.GetRequestID(c)

	var body models.CaptionRequest
	if err := request.ReadJSON(c, &body, h.maxJSONBytes); err != nil {
		return err
	}
	if body.Tone == "" || body.Platform == "" || body.Length == "" || body.Profile == nil {
		return models.NewValidationError("Missing required fields.", nil)
	}

	isNews := body.GenerateFromNews
	rule := llm.LengthConstraints(body.Length)

	genReq := llm.Request{MaxTokens: rule.MaxTokens}
	key := captionKey{
		Platform:      body.Platform,
		Tone:          body.Tone,
		Length:        body.Length,
		Persona:       body.Profile.Persona,
		Subcategory:   body.Profile.Subcategory,
		AllowEmojis:   body.EmojisAllowed(),
		AllowHashtags: body.HashtagsAllowed(),
		MaxTokens:     rule.MaxTokens,
	}

	var opts []aicache.CallOption
	if isNews {
		genReq.Model = h.cfg.NewsModel
		genReq.Prompt = llm.BuildNewsPrompt(body)
		key.News = &newsKey{Category: body.Profile.Category, Window: body.NewsAgeWindow}
		opts = append(opts, aicache.WithTTL(NewsCacheTTL))
	} else {
		prompt := llm.NormalizePrompt(body.Prompt, h.cfg.MaxPromptChars)
		if prompt == "" {
			return models.NewValidationError("Prompt is required.", nil)
		}
		genReq.Model = h.cfg.Model
		genReq.System = llm.BuildCaptionSystemPrompt(body, prompt)
		genReq.Prompt = prompt
		temperature := h.cfg.Temperature
		genReq.Temperature = &temperature
		key.Prompt = &prompt
	}
	key.Model = genReq.Model

	cacheKey, err := aicache.Key(key)
	if err != nil {
		return models.NewInternalError("failed to build cache key", err)
	}

	res, err := h.cache.Do(c.UserContext(), cacheKey, func(ctx context.Context) ([]byte, error) {
		text, err := h.generator.Generate(ctx, genReq)
		if err != nil {
			return nil, err
		}
		return json.Marshal(models.CaptionResponse{Caption: strings.TrimSpace(text)})
	}, opts...)
	if err != nil {
		fiberlog.Warnf("[%s] caption generation failed: %v", reqID, err)
		return err
	}

	fiberlog.Debugf("[%s] caption served (%s, %s)", reqID, res.Outcome, genReq.Model)

	c.Set(aicache.HeaderName, string(res.Outcome))
	c.Set(HeaderModel, genReq.Model)
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(res.Value)
}
