package kv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpstash implements the handful of commands the store sends
type fakeUpstash struct {
	mu       sync.Mutex
	data     map[string]string
	commands [][]string
	token    string
}

func (f *fakeUpstash) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
		return
	}

	var cmd []string
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || len(cmd) < 2 {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "ERR bad command"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)

	var result any
	switch cmd[0] {
	case "GET":
		if v, ok := f.data[cmd[1]]; ok {
			result = v
		}
	case "SET":
		nx := false
		for _, arg := range cmd[3:] {
			if arg == "NX" {
				nx = true
			}
		}
		if _, exists := f.data[cmd[1]]; nx && exists {
			result = nil
		} else {
			f.data[cmd[1]] = cmd[2]
			result = "OK"
		}
	case "EVAL":
		// compare-and-delete: EVAL <script> 1 <key> <token>
		if len(cmd) != 5 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "ERR wrong number of arguments"})
			return
		}
		if v, ok := f.data[cmd[3]]; ok && v == cmd[4] {
			delete(f.data, cmd[3])
			result = 1
		} else {
			result = 0
		}
	case "DEL":
		if _, ok := f.data[cmd[1]]; ok {
			delete(f.data, cmd[1])
			result = 1
		} else {
			result = 0
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "ERR unknown command"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func newTestUpstash(t *testing.T) (*UpstashStore, *fakeUpstash) {
	t.Helper()
	fake := &fakeUpstash{data: make(map[string]string), token: "secret"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store := NewUpstashStore(UpstashConfig{
		URL:       srv.URL,
		Token:     "secret",
		Namespace: "edge:",
	})
	return store, fake
}

func TestUpstashStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestUpstash(t)

	require.NoError(t, store.Set(ctx, "idem:abc", []byte("payload"), 600*time.Second))

	fake.mu.Lock()
	set := fake.commands[0]
	fake.mu.Unlock()
	assert.Equal(t, []string{"SET", "edge:idem:abc"}, set[:2])
	assert.Equal(t, []string{"EX", "600"}, set[3:])

	entry, ok, err := store.Get(ctx, "idem:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload", string(entry.Value))

	require.NoError(t, store.Delete(ctx, "idem:abc"))
	_, ok, err = store.Get(ctx, "idem:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpstashStoreLock(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestUpstash(t)

	token, ok, err := store.AcquireLock(ctx, "ai:k", 15*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = store.AcquireLock(ctx, "ai:k", 15*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	fake.mu.Lock()
	assert.Equal(t, []string{"SET", "edge:lock:ai:k", token, "NX", "EX", "15"}, fake.commands[0])
	fake.mu.Unlock()

	require.NoError(t, store.ReleaseLock(ctx, "ai:k", "someone-else"))
	_, ok, err = store.AcquireLock(ctx, "ai:k", 15*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "a foreign token leaves the lock held")

	require.NoError(t, store.ReleaseLock(ctx, "ai:k", token))
	_, ok, err = store.AcquireLock(ctx, "ai:k", 15*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpstashStoreSubSecondTTL(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestUpstash(t)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 1500*time.Millisecond))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"PX", "1500"}, fake.commands[0][3:])
}

func TestUpstashStoreErrors(t *testing.T) {
	ctx := context.Background()
	fake := &fakeUpstash{data: make(map[string]string), token: "secret"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store := NewUpstashStore(UpstashConfig{URL: srv.URL, Token: "wrong"})
	_, _, err := store.Get(ctx, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")

	srv.Close()
	_, _, err = store.AcquireLock(ctx, "k", time.Second)
	assert.Error(t, err)
}
