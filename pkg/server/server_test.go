package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/postcraft/edge/internal/config"
	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/kv"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreBackends(t *testing.T) {
	store, client, err := newStore(context.Background(), models.KVConfig{Backend: models.KVBackendMemory})
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.IsType(t, &kv.MemoryStore{}, store)

	mr := miniredis.RunT(t)
	store, client, err = newStore(context.Background(), models.KVConfig{Backend: models.KVBackendRedis, RedisURL: "redis://" + mr.Addr(), Namespace: "t:"})
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	_, isLocker := store.(kv.Locker)
	assert.True(t, isLocker)

	store, _, err = newStore(context.Background(), models.KVConfig{Backend: models.KVBackendUpstash, UpstashURL: "https://kv.example.com", UpstashToken: "tok"})
	require.NoError(t, err)
	assert.IsType(t, &kv.UpstashStore{}, store)

	_, _, err = newStore(context.Background(), models.KVConfig{Backend: "etcd"})
	assert.ErrorContains(t, err, "unsupported kv backend")
}

func TestRedisConnectAbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := createRedisClient(ctx, "redis://127.0.0.1:1")
	assert.Error(t, err)

	_, err = createRedisClient(context.Background(), "://bad")
	assert.ErrorContains(t, err, "failed to parse Redis URL")
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Get("/internal", func(c *fiber.Ctx) error {
		return models.NewInternalError("secret detail", nil)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/internal", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"error":"Internal Error"}`, string(body))
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Database = &models.DatabaseConfig{
		Type:        models.SQLite,
		FilePath:    filepath.Join(t.TempDir(), "edge.db"),
		AutoMigrate: true,
	}
	cfg.Social.CronSecret = "cron"

	s := New(cfg)
	require.NoError(t, s.initInfrastructure(context.Background()))
	t.Cleanup(s.Close)

	s.app = createFiberApp(cfg)
	routes, err := s.buildRoutes(context.Background())
	require.NoError(t, err)
	require.NoError(t, routes.Register(s.app))
	return s
}

func TestRoutesWired(t *testing.T) {
	s := testServer(t)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodPost, "/functions/auto-post", strings.NewReader("{}"))
	req.Header.Set("X-Cron-Secret", "cron")
	resp, err = s.app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"processed":0,"succeeded":0,"failed":0}`, string(body))

	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `edge_http_requests_total{method="POST",route="auto-post",status="200"} 1`)

	// no llm or billing section means those routes are absent
	resp, err = s.app.Test(httptest.NewRequest(http.MethodPost, "/functions/generate-caption", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.Server.ShutdownTimeoutSec = 1

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(cfg).Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
