// Package circuitbreaker trips after repeated upstream failures and keeps
// its state in the shared kv store so every instance sees the same circuit.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/kv"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const circuitBreakerKeyPrefix = "circuit_breaker:"

// ErrOpen is returned by Execute while the circuit rejects calls
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Config controls when the circuit trips and recovers.
// ResetAfter is how long an untouched circuit record survives in the store.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	ResetAfter       time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
		ResetAfter:       2 * time.Minute,
	}
}

// ConfigFromModel fills unset fields from DefaultConfig
func ConfigFromModel(m *models.CircuitBreakerConfig) Config {
	cfg := DefaultConfig()
	if m == nil {
		return cfg
	}
	if m.FailureThreshold > 0 {
		cfg.FailureThreshold = m.FailureThreshold
	}
	if m.SuccessThreshold > 0 {
		cfg.SuccessThreshold = m.SuccessThreshold
	}
	if m.TimeoutMs > 0 {
		cfg.Timeout = time.Duration(m.TimeoutMs) * time.Millisecond
	}
	if m.ResetAfterSec > 0 {
		cfg.ResetAfter = time.Duration(m.ResetAfterSec) * time.Second
	}
	return cfg
}

// snapshot is the persisted circuit record
type snapshot struct {
	State       State `json:"state"`
	Failures    int   `json:"failures"`
	Successes   int   `json:"successes"`
	LastFailure int64 `json:"last_failure,omitzero"`
	LastChange  int64 `json:"last_change"`
}

// CircuitBreaker guards a single upstream. Transitions are serialized per
// process; concurrent instances converge on the last write.
type CircuitBreaker struct {
	store       kv.Store
	serviceName string
	config      Config
	key         string
	now         func() time.Time

	mu sync.Mutex
}

func New(store kv.Store, serviceName string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		store:       store,
		serviceName: serviceName,
		config:      config,
		key:         circuitBreakerKeyPrefix + serviceName,
		now:         time.Now,
	}
}

// Execute runs fn when the circuit allows it and records the outcome.
// Failures caused by the caller abandoning ctx are not counted.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.CanExecute(ctx) {
		return ErrOpen
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.RecordSuccess(ctx)
	case errors.Is(ctx.Err(), context.Canceled):
	default:
		cb.RecordFailure(ctx)
	}
	return err
}

func (cb *CircuitBreaker) CanExecute(ctx context.Context) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap, err := cb.load(ctx)
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to get state, allowing execution: %v", err)
		return true
	}

	switch snap.State {
	case Closed, HalfOpen:
		return true
	case Open:
		if cb.now().Sub(time.UnixMilli(snap.LastFailure)) <= cb.config.Timeout {
			return false
		}
		snap.State = HalfOpen
		snap.Successes = 0
		snap.LastChange = cb.now().UnixMilli()
		if err := cb.save(ctx, snap); err != nil {
			fiberlog.Errorf("CircuitBreaker: %s state transition failed: %v", cb.serviceName, err)
			return false
		}
		fiberlog.Debugf("CircuitBreaker: %s transitioned to %s", cb.serviceName, HalfOpen)
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess(ctx context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap, err := cb.load(ctx)
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to record success: %v", err)
		return
	}

	switch snap.State {
	case HalfOpen:
		snap.Successes++
		if snap.Successes >= cb.config.SuccessThreshold {
			snap = snapshot{State: Closed, LastChange: cb.now().UnixMilli()}
			fiberlog.Infof("CircuitBreaker: %s transitioned to Closed state after success", cb.serviceName)
		} else {
			fiberlog.Infof("CircuitBreaker: %s recorded success in HalfOpen state", cb.serviceName)
		}
	case Closed:
		if snap.Failures == 0 {
			return
		}
		snap.Failures = 0
	default:
		return
	}

	if err := cb.save(ctx, snap); err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to record success: %v", err)
	}
}

func (cb *CircuitBreaker) RecordFailure(ctx context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap, err := cb.load(ctx)
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to record failure: %v", err)
		return
	}

	now := cb.now().UnixMilli()
	snap.Failures++
	snap.LastFailure = now

	if (snap.State == Closed && snap.Failures >= cb.config.FailureThreshold) || snap.State == HalfOpen {
		snap.State = Open
		snap.Successes = 0
		snap.LastChange = now
		fiberlog.Warnf("CircuitBreaker: %s transitioned to Open state after failure", cb.serviceName)
	} else {
		fiberlog.Debugf("CircuitBreaker: %s recorded failure", cb.serviceName)
	}

	if err := cb.save(ctx, snap); err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to record failure: %v", err)
	}
}

func (cb *CircuitBreaker) GetState(ctx context.Context) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap, err := cb.load(ctx)
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to get state, returning Closed: %v", err)
		return Closed
	}
	return snap.State
}

func (cb *CircuitBreaker) Reset(ctx context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err := cb.store.Delete(ctx, cb.key); err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to reset state: %v", err)
		return
	}
	fiberlog.Infof("CircuitBreaker: Reset circuit breaker for service %s", cb.serviceName)
}

// load returns a closed circuit when no record exists
func (cb *CircuitBreaker) load(ctx context.Context) (snapshot, error) {
	snap, ok, err := kv.GetJSON[snapshot](ctx, cb.store, cb.key)
	if err != nil {
		return snapshot{}, err
	}
	if !ok {
		return snapshot{State: Closed}, nil
	}
	return snap, nil
}

func (cb *CircuitBreaker) save(ctx context.Context, snap snapshot) error {
	ttl := cb.config.ResetAfter
	if floor := cb.config.Timeout * 2; ttl < floor {
		ttl = floor
	}
	return kv.SetJSON(context.WithoutCancel(ctx), cb.store, cb.key, snap, ttl)
}
