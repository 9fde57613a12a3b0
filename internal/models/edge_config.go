package models

// IdempotencyMode decides what a repeated submission receives
type IdempotencyMode string

const (
	// IdempotencyReject answers a repeat with 409 Conflict
	IdempotencyReject IdempotencyMode = "reject"
	// IdempotencyReplay answers a repeat with the stored response
	IdempotencyReplay IdempotencyMode = "replay"
)

// RateLimitConfig is a token bucket budget
type RateLimitConfig struct {
	Capacity     float64 `json:"capacity" yaml:"capacity"`
	RefillPerSec float64 `json:"refill_per_sec" yaml:"refill_per_sec"`
}

// IdempotencyConfig enables the duplicate-submission guard for a route
type IdempotencyConfig struct {
	TTLSec int             `json:"ttl_sec" yaml:"ttl_sec"`
	Mode   IdempotencyMode `json:"mode" yaml:"mode"`
}

// CORSConfig controls cross-origin headers. A nil config disables CORS handling.
type CORSConfig struct {
	AllowOrigin      string `json:"allow_origin,omitzero" yaml:"allow_origin"`
	AllowMethods     string `json:"allow_methods,omitzero" yaml:"allow_methods"`
	AllowHeaders     string `json:"allow_headers,omitzero" yaml:"allow_headers"`
	ExposeHeaders    string `json:"expose_headers,omitzero" yaml:"expose_headers"`
	MaxAgeSeconds    int    `json:"max_age_seconds,omitzero" yaml:"max_age_seconds"`
	AllowCredentials bool   `json:"allow_credentials,omitzero" yaml:"allow_credentials"`
}

// AIConfig tunes the distributed singleflight cache
type AIConfig struct {
	EnableCoalescing bool `json:"enable_coalescing" yaml:"enable_coalescing"`
	CacheTTLSec      int  `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	LockTTLSec       int  `json:"lock_ttl_sec" yaml:"lock_ttl_sec"`
	WaitForFlightMs  int  `json:"wait_for_flight_ms" yaml:"wait_for_flight_ms"`
	PollEveryMs      int  `json:"poll_every_ms" yaml:"poll_every_ms"`
	// FallbackOnLeaderTimeout lets a follower produce locally once the leader
	// wait expires. When false the follower fails with 503 instead.
	FallbackOnLeaderTimeout bool `json:"fallback_on_leader_timeout" yaml:"fallback_on_leader_timeout"`
}

// EdgeConfig is the per-route behaviour of the request wrapper
type EdgeConfig struct {
	RequestTimeoutMs      int                `json:"request_timeout_ms,omitzero" yaml:"request_timeout_ms"`
	RateLimit             *RateLimitConfig   `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	Idempotency           *IdempotencyConfig `json:"idempotency,omitempty" yaml:"idempotency,omitempty"`
	CORS                  *CORSConfig        `json:"cors,omitempty" yaml:"cors,omitempty"`
	ETag                  bool               `json:"etag" yaml:"etag"`
	ETagMaxBytes          int                `json:"etag_max_bytes,omitzero" yaml:"etag_max_bytes"`
	RequestID             bool               `json:"request_id" yaml:"request_id"`
	HardenHeaders         bool               `json:"harden_headers" yaml:"harden_headers"`
	EnableAutoCacheForGET bool               `json:"enable_auto_cache_for_get" yaml:"enable_auto_cache_for_get"`
	CacheControl          string             `json:"cache_control,omitzero" yaml:"cache_control"`
	MaxJSONBytes          int                `json:"max_json_bytes,omitzero" yaml:"max_json_bytes"`
	AI                    AIConfig           `json:"ai" yaml:"ai"`
}

// Clone returns a deep copy so per-route tweaks never leak into the shared defaults.
func (e EdgeConfig) Clone() EdgeConfig {
	out := e
	if e.RateLimit != nil {
		rl := *e.RateLimit
		out.RateLimit = &rl
	}
	if e.Idempotency != nil {
		idem := *e.Idempotency
		out.Idempotency = &idem
	}
	if e.CORS != nil {
		cors := *e.CORS
		out.CORS = &cors
	}
	return out
}
