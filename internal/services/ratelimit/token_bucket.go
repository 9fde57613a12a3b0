// Package ratelimit implements a token bucket persisted in a kv.Store.
package ratelimit

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/postcraft/edge/internal/services/kv"
)

const (
	keyPrefix = "tb:"
	// stateTTL only keeps the store tidy. A missing entry reads as a full bucket.
	stateTTL = 60 * time.Second
	stripes  = 64
)

// Decision is the outcome of one Consume call
type Decision struct {
	Allowed    bool
	Remaining  float64
	RetryAfter time.Duration
}

// RetryAfterSeconds is the Retry-After header value, at least 1
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 1
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

type bucketState struct {
	Tokens float64 `json:"tokens"`
	TS     int64   `json:"ts"` // unix millis of the last refill
}

// TokenBucket refills continuously and spends one token per request
type TokenBucket struct {
	store kv.Store
	now   func() time.Time
	locks [stripes]sync.Mutex
}

// Option configures a TokenBucket
type Option func(*TokenBucket)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(tb *TokenBucket) {
		tb.now = now
	}
}

// NewTokenBucket creates a limiter backed by store
func NewTokenBucket(store kv.Store, opts ...Option) *TokenBucket {
	tb := &TokenBucket{store: store, now: time.Now}
	for _, opt := range opts {
		opt(tb)
	}
	return tb
}

// Consume refills the bucket for key and takes one token if available.
// Calls for one key are serialized within the process. Across instances the
// read-modify-write is best effort.
func (tb *TokenBucket) Consume(ctx context.Context, key string, capacity, refillPerSec float64) (Decision, error) {
	if capacity < 1 {
		return Decision{}, fmt.Errorf("ratelimit: capacity must be at least 1, got %v", capacity)
	}
	if refillPerSec <= 0 {
		return Decision{}, fmt.Errorf("ratelimit: refill rate must be positive, got %v", refillPerSec)
	}

	mu := &tb.locks[stripe(key)]
	mu.Lock()
	defer mu.Unlock()

	storeKey := keyPrefix + key
	now := tb.now()

	state, ok, err := kv.GetJSON[bucketState](ctx, tb.store, storeKey)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: load %s: %w", key, err)
	}
	if !ok {
		state = bucketState{Tokens: capacity, TS: now.UnixMilli()}
	}

	elapsed := max(float64(now.UnixMilli()-state.TS)/1000, 0)
	tokens := math.Min(capacity, state.Tokens+elapsed*refillPerSec)

	decision := Decision{Allowed: tokens >= 1}
	if decision.Allowed {
		tokens--
	} else {
		missing := 1 - tokens
		decision.RetryAfter = time.Duration(missing / refillPerSec * float64(time.Second))
	}
	decision.Remaining = tokens

	next := bucketState{Tokens: tokens, TS: now.UnixMilli()}
	if err := kv.SetJSON(ctx, tb.store, storeKey, next, stateTTL); err != nil {
		return decision, fmt.Errorf("ratelimit: save %s: %w", key, err)
	}
	return decision, nil
}

func stripe(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % stripes
}
