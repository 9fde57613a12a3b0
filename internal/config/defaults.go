package config

import "github.com/postcraft/edge/internal/models"

const (
	DefaultPort               = "8080"
	DefaultNamespace          = "edge:"
	DefaultRequestTimeoutMs   = 3000
	DefaultCacheControl       = "public, s-maxage=60, stale-while-revalidate=86400"
	DefaultETagMaxBytes       = 1 << 20
	DefaultMaxJSONBytes       = 64 << 10
	DefaultBodyLimitBytes     = 4 << 20
	DefaultShutdownTimeoutSec = 30

	DefaultAICacheTTLSec     = 7 * 24 * 60 * 60
	DefaultAILockTTLSec      = 15
	DefaultAIWaitForFlightMs = 12000
	DefaultAIPollEveryMs     = 150

	DefaultLLMTimeoutMs      = 10000
	DefaultLLMMaxTokens      = 512
	DefaultLLMTemperature    = 0.7
	DefaultLLMMaxPromptChars = 700

	DefaultSocialConcurrency      = 3
	DefaultSocialRequestTimeoutMs = 15000
	DefaultSocialUploadTimeoutMs  = 60000
	DefaultLinkedInVersion        = "202507"
)

// DefaultCORS mirrors the headers the web client needs
func DefaultCORS() *models.CORSConfig {
	return &models.CORSConfig{
		AllowOrigin:   "*",
		AllowMethods:  "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:  "authorization,content-type,idempotency-key,x-request-id,x-model",
		ExposeHeaders: "server-timing,etag,request-id,x-request-id,x-ai-cache,x-model",
		MaxAgeSeconds: 86400,
	}
}

// DefaultEdge returns the wrapper behaviour used when a route sets nothing
func DefaultEdge() models.EdgeConfig {
	return models.EdgeConfig{
		RequestTimeoutMs:      DefaultRequestTimeoutMs,
		CORS:                  DefaultCORS(),
		ETag:                  true,
		ETagMaxBytes:          DefaultETagMaxBytes,
		RequestID:             true,
		HardenHeaders:         true,
		EnableAutoCacheForGET: false,
		CacheControl:          DefaultCacheControl,
		MaxJSONBytes:          DefaultMaxJSONBytes,
		AI: models.AIConfig{
			EnableCoalescing:        true,
			CacheTTLSec:             DefaultAICacheTTLSec,
			LockTTLSec:              DefaultAILockTTLSec,
			WaitForFlightMs:         DefaultAIWaitForFlightMs,
			PollEveryMs:             DefaultAIPollEveryMs,
			FallbackOnLeaderTimeout: true,
		},
	}
}

// Default returns a configuration that runs locally with no external services
func Default() *Config {
	return &Config{
		Server: models.ServerConfig{
			Port:               DefaultPort,
			AllowedOrigins:     "*",
			Environment:        "development",
			LogLevel:           "info",
			BodyLimitBytes:     DefaultBodyLimitBytes,
			ShutdownTimeoutSec: DefaultShutdownTimeoutSec,
		},
		KV: models.KVConfig{
			Backend:   models.KVBackendMemory,
			Namespace: DefaultNamespace,
		},
		Edge: DefaultEdge(),
		Social: models.SocialConfig{
			Concurrency:      DefaultSocialConcurrency,
			LinkedInAPIURL:   "https://api.linkedin.com/v2",
			LinkedInRESTURL:  "https://api.linkedin.com/rest",
			LinkedInVersion:  DefaultLinkedInVersion,
			GraphAPIURL:      "https://graph.facebook.com/v23.0",
			RequestTimeoutMs: DefaultSocialRequestTimeoutMs,
			UploadTimeoutMs:  DefaultSocialUploadTimeoutMs,
		},
	}
}

// applyDefaults fills zero values the YAML left behind
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.BodyLimitBytes <= 0 {
		c.Server.BodyLimitBytes = DefaultBodyLimitBytes
	}
	if c.Server.ShutdownTimeoutSec <= 0 {
		c.Server.ShutdownTimeoutSec = DefaultShutdownTimeoutSec
	}

	if c.KV.Backend == "" {
		c.KV.Backend = models.KVBackendMemory
	}
	if c.KV.Namespace == "" {
		c.KV.Namespace = DefaultNamespace
	}

	e := &c.Edge
	if e.ETagMaxBytes <= 0 {
		e.ETagMaxBytes = DefaultETagMaxBytes
	}
	if e.MaxJSONBytes <= 0 {
		e.MaxJSONBytes = DefaultMaxJSONBytes
	}
	if e.CacheControl == "" {
		e.CacheControl = DefaultCacheControl
	}
	if e.AI.CacheTTLSec <= 0 {
		e.AI.CacheTTLSec = DefaultAICacheTTLSec
	}
	if e.AI.LockTTLSec <= 0 {
		e.AI.LockTTLSec = DefaultAILockTTLSec
	}
	if e.AI.WaitForFlightMs <= 0 {
		e.AI.WaitForFlightMs = DefaultAIWaitForFlightMs
	}
	if e.AI.PollEveryMs <= 0 {
		e.AI.PollEveryMs = DefaultAIPollEveryMs
	}

	if c.LLM != nil {
		if c.LLM.TimeoutMs <= 0 {
			c.LLM.TimeoutMs = DefaultLLMTimeoutMs
		}
		if c.LLM.MaxTokens <= 0 {
			c.LLM.MaxTokens = DefaultLLMMaxTokens
		}
		if c.LLM.Temperature <= 0 {
			c.LLM.Temperature = DefaultLLMTemperature
		}
		if c.LLM.MaxPromptChars <= 0 {
			c.LLM.MaxPromptChars = DefaultLLMMaxPromptChars
		}
		if c.LLM.NewsModel == "" {
			c.LLM.NewsModel = c.LLM.Model
		}
	}

	if c.Social.Concurrency <= 0 {
		c.Social.Concurrency = DefaultSocialConcurrency
	}
	if c.Social.RequestTimeoutMs <= 0 {
		c.Social.RequestTimeoutMs = DefaultSocialRequestTimeoutMs
	}
	if c.Social.UploadTimeoutMs <= 0 {
		c.Social.UploadTimeoutMs = DefaultSocialUploadTimeoutMs
	}
	if c.Social.LinkedInVersion == "" {
		c.Social.LinkedInVersion = DefaultLinkedInVersion
	}
}
