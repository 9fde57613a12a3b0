package models

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string `json:"port,omitzero" yaml:"port"`
	AllowedOrigins string `json:"allowed_origins,omitzero" yaml:"allowed_origins"`
	Environment    string `json:"environment,omitzero" yaml:"environment"`
	LogLevel       string `json:"log_level,omitzero" yaml:"log_level"`
	// BodyLimitBytes caps every inbound request body at the fiber layer.
	BodyLimitBytes     int `json:"body_limit_bytes,omitzero" yaml:"body_limit_bytes"`
	ShutdownTimeoutSec int `json:"shutdown_timeout_sec,omitzero" yaml:"shutdown_timeout_sec"`
}
