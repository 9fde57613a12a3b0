// Package idempotency makes repeated submissions of one logical operation safe.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/kv"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"
)

const (
	// HeaderKey is the client-supplied idempotency key
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed marks a response served from the store
	HeaderReplayed = "Idempotent-Replayed"

	keyPrefix    = "idem:"
	maxKeyLength = 255
)

// Outcome says how Execute resolved a key
type Outcome int

const (
	OutcomeExecuted Outcome = iota
	OutcomeReplayed
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExecuted:
		return "executed"
	case OutcomeReplayed:
		return "replayed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Record is a captured response
type Record struct {
	StatusCode int         `json:"status"`
	Headers    [][2]string `json:"headers"`
	Body       []byte      `json:"body"`
}

// Operation runs the guarded work and returns its response
type Operation func(ctx context.Context) (*Record, error)

// Guard executes an operation at most once per key within the TTL
type Guard struct {
	store  kv.Store
	ttl    time.Duration
	mode   models.IdempotencyMode
	prefix string
	flight singleflight.Group
}

// Option configures a Guard
type Option func(*Guard)

// WithScope keeps this guard's keys apart from other guards sharing the store.
// The same client key sent to two scopes names two different operations.
func WithScope(scope string) Option {
	return func(g *Guard) {
		if scope != "" {
			g.prefix = keyPrefix + scope + ":"
		}
	}
}

// NewGuard creates a guard. ttl must be positive.
func NewGuard(store kv.Store, ttl time.Duration, mode models.IdempotencyMode, opts ...Option) (*Guard, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("idempotency: ttl must be positive")
	}
	if mode != models.IdempotencyReject && mode != models.IdempotencyReplay {
		return nil, fmt.Errorf("idempotency: unknown mode %q", mode)
	}
	g := &Guard{store: store, ttl: ttl, mode: mode, prefix: keyPrefix}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// DeriveKey prefers the client header and otherwise hashes the raw body.
// Byte-identical bodies without a header are treated as the same operation.
func DeriveKey(header string, body []byte) string {
	if key := strings.TrimSpace(header); key != "" {
		if len(key) > maxKeyLength {
			key = key[:maxKeyLength]
		}
		return key
	}
	sum := sha256.Sum256(body)
	return "h:" + hex.EncodeToString(sum[:])
}

// Execute looks the key up and either resolves it from the store or runs op.
// A store read failure aborts without running op.
func (g *Guard) Execute(ctx context.Context, key string, op Operation) (*Record, Outcome, error) {
	storeKey := g.prefix + key

	if rec, found, err := g.lookup(ctx, storeKey); err != nil {
		return nil, 0, err
	} else if found {
		return g.resolveHit(rec)
	}

	executed := false
	v, err, _ := g.flight.Do(storeKey, func() (any, error) {
		executed = true

		// A concurrent request may have finished between lookup and here.
		if rec, found, err := g.lookup(ctx, storeKey); err != nil {
			return nil, err
		} else if found {
			return hit{rec}, nil
		}

		rec, err := op(ctx)
		if err != nil {
			return nil, err
		}
		// 5xx responses are not recorded so a retry can succeed.
		if rec.StatusCode < http.StatusInternalServerError {
			if err := kv.SetJSON(context.WithoutCancel(ctx), g.store, storeKey, rec, g.ttl); err != nil {
				fiberlog.Warnf("idempotency: failed to record %s: %v", storeKey, err)
			}
		}
		return stored{rec: rec}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	switch r := v.(type) {
	case hit:
		return g.resolveHit(r.rec)
	case stored:
		if !executed {
			// Joined another caller's execution of the same key.
			return g.resolveHit(r.rec)
		}
		return r.rec, OutcomeExecuted, nil
	default:
		return nil, 0, fmt.Errorf("idempotency: unexpected flight result %T", v)
	}
}

type hit struct{ rec *Record }

type stored struct{ rec *Record }

func (g *Guard) lookup(ctx context.Context, storeKey string) (*Record, bool, error) {
	rec, found, err := kv.GetJSON[Record](ctx, g.store, storeKey)
	if err != nil {
		return nil, false, models.NewUnavailableError("Idempotency store unavailable", err)
	}
	if !found {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (g *Guard) resolveHit(rec *Record) (*Record, Outcome, error) {
	if g.mode == models.IdempotencyReject {
		return nil, OutcomeRejected, nil
	}
	return rec, OutcomeReplayed, nil
}
