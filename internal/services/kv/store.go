// Package kv is the shared state behind rate limiting, idempotency and the AI cache.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTTL is returned when a write or lock is requested without a positive TTL.
var ErrInvalidTTL = errors.New("kv: ttl must be positive")

// Entry is a stored value and the instant it stops being observable
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
}

// Store is the minimal key-value capability every backend provides.
// Get never returns an entry whose TTL has elapsed.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Locker is implemented by stores that can arbitrate a mutual-exclusion token.
// AcquireLock reports true for at most one caller until the lock is released
// or its TTL elapses, and returns the token that owns it. ReleaseLock removes
// the lock only while it still carries that token, so a holder that outlived
// its TTL cannot release the next holder's lock.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// GetJSON reads and decodes a JSON value
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	entry, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(entry.Value, &out); err != nil {
		return out, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, true, nil
}

// SetJSON encodes and writes a JSON value
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}

// envelope is the wire form used by remote backends. The expiry is carried
// alongside the value so reads stay correct when the backend rounds TTLs.
type envelope struct {
	Value []byte `json:"v"`
	Exp   int64  `json:"exp"`
}

func encodeEnvelope(value []byte, expiresAt time.Time) ([]byte, error) {
	return json.Marshal(envelope{Value: value, Exp: expiresAt.UnixMilli()})
}

func decodeEnvelope(raw []byte, now time.Time) (Entry, bool, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Entry{}, false, fmt.Errorf("decode envelope: %w", err)
	}
	expiresAt := time.UnixMilli(env.Exp)
	if !now.Before(expiresAt) {
		return Entry{}, false, nil
	}
	return Entry{Value: env.Value, ExpiresAt: expiresAt}, true, nil
}

func newLockToken() string {
	return uuid.NewString()
}

func checkTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
