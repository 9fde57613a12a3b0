package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/valyala/bytebufferpool"
)

const defaultUpstashTimeout = 3 * time.Second

// UpstashConfig configures the REST-backed store
type UpstashConfig struct {
	URL        string
	Token      string
	Namespace  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// UpstashStore talks to a Redis-compatible REST endpoint. Each command is a
// JSON array POSTed to one URL, and the reply carries it under "result".
type UpstashStore struct {
	url       string
	token     string
	namespace string
	client    *http.Client
	now       func() time.Time
}

// upstashReply is the response envelope
type upstashReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// NewUpstashStore creates a REST-backed store
func NewUpstashStore(cfg UpstashConfig) *UpstashStore {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultUpstashTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &UpstashStore{
		url:       cfg.URL,
		token:     cfg.Token,
		namespace: cfg.Namespace,
		client:    client,
		now:       time.Now,
	}
}

func (u *UpstashStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	result, err := u.do(ctx, "GET", u.namespace+key)
	if err != nil {
		return Entry{}, false, err
	}
	var raw *string
	if err := json.Unmarshal(result, &raw); err != nil {
		return Entry{}, false, fmt.Errorf("upstash get %s: %w", key, err)
	}
	if raw == nil {
		return Entry{}, false, nil
	}
	return decodeEnvelope([]byte(*raw), u.now())
}

func (u *UpstashStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkTTL(ttl); err != nil {
		return err
	}
	raw, err := encodeEnvelope(value, u.now().Add(ttl))
	if err != nil {
		return err
	}
	unit, amount := expiryArgs(ttl)
	_, err = u.do(ctx, "SET", u.namespace+key, string(raw), unit, amount)
	return err
}

func (u *UpstashStore) Delete(ctx context.Context, key string) error {
	_, err := u.do(ctx, "DEL", u.namespace+key)
	return err
}

func (u *UpstashStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := checkTTL(ttl); err != nil {
		return "", false, err
	}
	token := newLockToken()
	unit, amount := expiryArgs(ttl)
	result, err := u.do(ctx, "SET", u.namespace+"lock:"+key, token, "NX", unit, amount)
	if err != nil {
		return "", false, err
	}
	var status *string
	if err := json.Unmarshal(result, &status); err != nil {
		return "", false, fmt.Errorf("upstash lock %s: %w", key, err)
	}
	if status == nil || *status != "OK" {
		return "", false, nil
	}
	return token, true, nil
}

func (u *UpstashStore) ReleaseLock(ctx context.Context, key, token string) error {
	_, err := u.do(ctx, "EVAL", releaseLockSource, "1", u.namespace+"lock:"+key, token)
	return err
}

// do sends one command and returns the raw result
func (u *UpstashStore) do(ctx context.Context, args ...string) (json.RawMessage, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := json.NewEncoder(buf).Encode(args); err != nil {
		return nil, fmt.Errorf("upstash encode %s: %w", args[0], err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(buf.B))
	if err != nil {
		return nil, fmt.Errorf("upstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstash %s: %w", args[0], err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstash %s: read body: %w", args[0], err)
	}

	var reply upstashReply
	if err := json.Unmarshal(body, &reply); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("upstash %s: status %d: %s", args[0], resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("upstash %s: decode reply: %w", args[0], err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("upstash %s: %w", args[0], errors.New(reply.Error))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("upstash %s: status %d", args[0], resp.StatusCode)
	}
	if len(reply.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return reply.Result, nil
}

// expiryArgs prefers whole seconds and falls back to milliseconds
func expiryArgs(ttl time.Duration) (string, string) {
	if ttl%time.Second == 0 {
		return "EX", strconv.FormatInt(int64(ttl/time.Second), 10)
	}
	return "PX", strconv.FormatInt(max(ttl.Milliseconds(), 1), 10)
}
