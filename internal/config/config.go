package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/postcraft/edge/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server   models.ServerConfig    `yaml:"server"`
	KV       models.KVConfig        `yaml:"kv"`
	Edge     models.EdgeConfig      `yaml:"edge"`
	LLM      *models.LLMConfig      `yaml:"llm,omitempty"`
	Database *models.DatabaseConfig `yaml:"database,omitempty"`
	Auth     *models.AuthConfig     `yaml:"auth,omitempty"`
	Social   models.SocialConfig    `yaml:"social"`
	Billing  *models.StripeConfig   `yaml:"billing,omitempty"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

// LoadFromFile loads configuration from a YAML file with environment variable substitution
func LoadFromFile(configPath string) (*Config, error) {
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML on top of the defaults
func Parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	config := Default()
	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

// LoadEnvFiles loads environment variables from .env files in order of precedence
// Loads files in the order provided (first has highest priority)
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				fiberlog.Infof("Loaded environment variables from %s", envFile)
			}
		}
	}
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""

		if len(submatches) > 2 && submatches[2] != "" {
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// GetNormalizedLogLevel returns the log level in lowercase for consistent comparison
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(c.Server.LogLevel)
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate checks if all required configuration values are set
func (c *Config) Validate() error {
	var missing []string
	var invalid []string

	if c.Server.Port == "" {
		missing = append(missing, "server.port")
	}

	switch c.KV.Backend {
	case models.KVBackendMemory:
	case models.KVBackendRedis:
		if c.KV.RedisURL == "" {
			missing = append(missing, "kv.redis_url")
		}
	case models.KVBackendUpstash:
		if c.KV.UpstashURL == "" {
			missing = append(missing, "kv.upstash_url")
		}
		if c.KV.UpstashToken == "" {
			missing = append(missing, "kv.upstash_token")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("kv.backend=%q", c.KV.Backend))
	}

	if idem := c.Edge.Idempotency; idem != nil && idem.Mode != models.IdempotencyReject && idem.Mode != models.IdempotencyReplay {
		invalid = append(invalid, fmt.Sprintf("edge.idempotency.mode=%q", idem.Mode))
	}
	if rl := c.Edge.RateLimit; rl != nil && (rl.Capacity < 1 || rl.RefillPerSec <= 0) {
		invalid = append(invalid, "edge.rate_limit")
	}

	if c.LLM != nil {
		switch c.LLM.Provider {
		case models.LLMProviderOpenAI, models.LLMProviderAnthropic, models.LLMProviderGemini:
		default:
			invalid = append(invalid, fmt.Sprintf("llm.provider=%q", c.LLM.Provider))
		}
		if c.LLM.APIKey == "" {
			missing = append(missing, "llm.api_key")
		}
	}

	if c.Auth != nil && c.Auth.Required && c.Auth.JWTSecret == "" {
		missing = append(missing, "auth.jwt_secret")
	}

	if c.Billing != nil && c.Billing.WebhookSecret == "" {
		missing = append(missing, "billing.webhook_secret")
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return &ValidationError{MissingFields: missing, InvalidFields: invalid}
	}

	return nil
}

// ValidationError represents configuration validation errors
type ValidationError struct {
	MissingFields []string
	InvalidFields []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.MissingFields) > 0 {
		parts = append(parts, "missing required configuration fields: "+strings.Join(e.MissingFields, ", "))
	}
	if len(e.InvalidFields) > 0 {
		parts = append(parts, "invalid configuration values: "+strings.Join(e.InvalidFields, ", "))
	}
	return strings.Join(parts, "; ")
}
