// Package aicache deduplicates expensive generation calls within a process
// and across instances that share a kv.Store.
package aicache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/kv"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"
)

// HeaderName carries the Outcome on HTTP responses
const HeaderName = "x-ai-cache"

// Outcome records how a value was obtained
type Outcome string

const (
	OutcomeHit          Outcome = "hit"
	OutcomeMiss         Outcome = "miss"
	OutcomeFill         Outcome = "fill"
	OutcomeMissFallback Outcome = "miss-fallback"
)

// ErrLeaderTimeout is returned by a follower whose leader never published a
// result, when local fallback is disabled.
var ErrLeaderTimeout = errors.New("aicache: timed out waiting for in-flight result")

// Result is a cached value and how it was obtained. Value may be shared
// between callers and must not be modified.
type Result struct {
	Value   []byte
	Outcome Outcome
}

// Producer performs the expensive call
type Producer func(ctx context.Context) ([]byte, error)

// Options tune the cache
type Options struct {
	EnableCoalescing        bool
	CacheTTL                time.Duration
	LockTTL                 time.Duration
	WaitForFlight           time.Duration
	PollEvery               time.Duration
	FallbackOnLeaderTimeout bool
}

// OptionsFromConfig converts the YAML settings
func OptionsFromConfig(cfg models.AIConfig) Options {
	return Options{
		EnableCoalescing:        cfg.EnableCoalescing,
		CacheTTL:                time.Duration(cfg.CacheTTLSec) * time.Second,
		LockTTL:                 time.Duration(cfg.LockTTLSec) * time.Second,
		WaitForFlight:           time.Duration(cfg.WaitForFlightMs) * time.Millisecond,
		PollEvery:               time.Duration(cfg.PollEveryMs) * time.Millisecond,
		FallbackOnLeaderTimeout: cfg.FallbackOnLeaderTimeout,
	}
}

// CallOption adjusts a single Do call
type CallOption func(*callOptions)

type callOptions struct {
	ttl time.Duration
}

// WithTTL overrides the cache TTL for one call
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// Observer is notified of every resolved outcome
type Observer interface {
	ObserveAICache(outcome string)
}

// Cache is a two-tier singleflight cache
type Cache struct {
	store    kv.Store
	locker   kv.Locker
	opts     Options
	group    singleflight.Group
	observer Observer
}

// New creates a cache over store. When store does not implement kv.Locker
// coalescing is limited to the current process.
func New(store kv.Store, opts Options) *Cache {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 7 * 24 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 15 * time.Second
	}
	if opts.WaitForFlight <= 0 {
		opts.WaitForFlight = 12 * time.Second
	}
	if opts.PollEvery <= 0 {
		opts.PollEvery = 150 * time.Millisecond
	}

	c := &Cache{store: store, opts: opts}
	if locker, ok := store.(kv.Locker); ok {
		c.locker = locker
	} else {
		fiberlog.Warn("aicache: store has no lock capability, coalescing is process-local")
	}
	return c
}

// SetObserver attaches a metrics sink
func (c *Cache) SetObserver(o Observer) {
	c.observer = o
}

// Key derives a content-addressed key from the call's semantic parameters
func Key(params any) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("aicache: encode key params: %w", err)
	}
	sum := sha256.Sum256(data)
	return "ai:" + hex.EncodeToString(sum[:]), nil
}

// Do returns the cached value for key or runs produce at most once across
// all concurrent callers that share the store. Failures are never cached.
func (c *Cache) Do(ctx context.Context, key string, produce Producer, opts ...CallOption) (Result, error) {
	call := callOptions{ttl: c.opts.CacheTTL}
	for _, opt := range opts {
		opt(&call)
	}

	res, err := c.do(ctx, key, produce, call)
	if err == nil && c.observer != nil {
		c.observer.ObserveAICache(string(res.Outcome))
	}
	return res, err
}

func (c *Cache) do(ctx context.Context, key string, produce Producer, call callOptions) (Result, error) {
	if value, ok := c.lookup(ctx, key); ok {
		return Result{Value: value, Outcome: OutcomeHit}, nil
	}

	if !c.opts.EnableCoalescing {
		return c.resolve(ctx, key, produce, call)
	}

	// The flight outlives any single caller so one cancelled request does
	// not fail everyone waiting on it.
	owner := false
	ch := c.group.DoChan(key, func() (any, error) {
		owner = true
		return c.resolve(context.WithoutCancel(ctx), key, produce, call)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		res := r.Val.(Result)
		if !owner && res.Outcome != OutcomeHit {
			res.Outcome = OutcomeFill
		}
		return res, nil
	}
}

// resolve runs the distributed leader/follower protocol
func (c *Cache) resolve(ctx context.Context, key string, produce Producer, call callOptions) (Result, error) {
	if c.locker == nil {
		return c.produceAndStore(ctx, key, produce, call, OutcomeMiss)
	}

	token, acquired, err := c.locker.AcquireLock(ctx, key, c.opts.LockTTL)
	if err != nil {
		fiberlog.Warnf("aicache: lock %s failed, producing locally: %v", key, err)
		return c.produceAndStore(ctx, key, produce, call, OutcomeMiss)
	}
	if acquired {
		return c.lead(ctx, key, token, produce, call)
	}
	return c.follow(ctx, key, produce, call)
}

func (c *Cache) lead(ctx context.Context, key, token string, produce Producer, call callOptions) (Result, error) {
	defer func() {
		if err := c.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			fiberlog.Warnf("aicache: release %s: %v", key, err)
		}
	}()

	// The previous leader may have published just before we took the lock.
	if value, ok := c.lookup(ctx, key); ok {
		return Result{Value: value, Outcome: OutcomeHit}, nil
	}
	return c.produceAndStore(ctx, key, produce, call, OutcomeMiss)
}

func (c *Cache) follow(ctx context.Context, key string, produce Producer, call callOptions) (Result, error) {
	deadline := time.NewTimer(c.opts.WaitForFlight)
	defer deadline.Stop()
	ticker := time.NewTicker(c.opts.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-deadline.C:
			if !c.opts.FallbackOnLeaderTimeout {
				return Result{}, ErrLeaderTimeout
			}
			// The leader is gone or slow. Accept a duplicate call over failing.
			fiberlog.Warnf("aicache: leader for %s did not publish within %s, producing locally", key, c.opts.WaitForFlight)
			return c.produceAndStore(ctx, key, produce, call, OutcomeMissFallback)
		case <-ticker.C:
			if value, ok := c.lookup(ctx, key); ok {
				return Result{Value: value, Outcome: OutcomeFill}, nil
			}
		}
	}
}

func (c *Cache) produceAndStore(ctx context.Context, key string, produce Producer, call callOptions, outcome Outcome) (Result, error) {
	value, err := produce(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := c.store.Set(ctx, key, value, call.ttl); err != nil {
		fiberlog.Warnf("aicache: store %s: %v", key, err)
	}
	return Result{Value: value, Outcome: outcome}, nil
}

// lookup fails open: a store error reads as a miss
func (c *Cache) lookup(ctx context.Context, key string) ([]byte, bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		fiberlog.Warnf("aicache: get %s: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return entry.Value, true
}
