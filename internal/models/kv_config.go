package models

// KVBackend selects the shared key-value store implementation
type KVBackend string

const (
	KVBackendMemory  KVBackend = "memory"
	KVBackendRedis   KVBackend = "redis"
	KVBackendUpstash KVBackend = "upstash"
)

// KVConfig configures the store behind rate limiting, idempotency and the AI cache
type KVConfig struct {
	Backend      KVBackend `json:"backend,omitzero" yaml:"backend"`
	Namespace    string    `json:"namespace,omitzero" yaml:"namespace"`
	RedisURL     string    `json:"redis_url,omitzero" yaml:"redis_url"`
	UpstashURL   string    `json:"upstash_url,omitzero" yaml:"upstash_url"`
	UpstashToken string    `json:"-" yaml:"upstash_token"`
	TimeoutMs    int       `json:"timeout_ms,omitzero" yaml:"timeout_ms"`
}
