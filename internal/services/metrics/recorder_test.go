package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()

	r.ObserveRequest("generate-caption", "POST", 200, 120*time.Millisecond)
	r.ObserveRequest("generate-caption", "POST", 200, 80*time.Millisecond)
	r.ObserveRequest("generate-caption", "POST", 429, time.Millisecond)
	r.ObserveAICache("hit")
	r.ObserveRateLimited("generate-caption")
	r.ObservePost("linkedin", "success")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.requests.WithLabelValues("generate-caption", "POST", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("generate-caption", "POST", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.aiCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rateLimited.WithLabelValues("generate-caption")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.posts.WithLabelValues("linkedin", "success")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.ObserveAICache("miss")

	app := fiber.New()
	app.Get("/metrics", r.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `edge_ai_cache_results_total{outcome="miss"} 1`)
}
