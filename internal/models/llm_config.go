package models

// LLMProvider names a supported text generation backend
type LLMProvider string

const (
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderGemini    LLMProvider = "gemini"
)

// LLMConfig configures the caption generator
type LLMConfig struct {
	Provider       LLMProvider `json:"provider" yaml:"provider"`
	APIKey         string      `json:"-" yaml:"api_key"`
	BaseURL        string      `json:"base_url,omitzero" yaml:"base_url"`
	Model          string      `json:"model" yaml:"model"`
	NewsModel      string      `json:"news_model,omitzero" yaml:"news_model"`
	TimeoutMs      int         `json:"timeout_ms,omitzero" yaml:"timeout_ms"`
	MaxTokens      int64       `json:"max_tokens,omitzero" yaml:"max_tokens"`
	Temperature    float64     `json:"temperature,omitzero" yaml:"temperature"`
	MaxPromptChars int         `json:"max_prompt_chars,omitzero" yaml:"max_prompt_chars"`

	CircuitBreaker *CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
}

// CircuitBreakerConfig trips the provider after consecutive failures
type CircuitBreakerConfig struct {
	FailureThreshold int `json:"failure_threshold,omitzero" yaml:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold,omitzero" yaml:"success_threshold"`
	TimeoutMs        int `json:"timeout_ms,omitzero" yaml:"timeout_ms"`
	ResetAfterSec    int `json:"reset_after_sec,omitzero" yaml:"reset_after_sec"`
}
