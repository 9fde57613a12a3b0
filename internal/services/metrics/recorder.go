// Package metrics exposes edge request and cache counters to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edge"

// Recorder owns a private registry so tests and multiple servers never collide
type Recorder struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	aiCache         *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	posts           *prometheus.CounterVec
}

// NewRecorder creates and registers all collectors
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of requests handled by the edge wrapper",
			},
			[]string{"route", "method", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		aiCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ai_cache",
				Name:      "results_total",
				Help:      "AI cache lookups by outcome (hit, miss, fill, miss-fallback)",
			},
			[]string{"outcome"},
		),

		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "denied_total",
				Help:      "Requests rejected by the token bucket",
			},
			[]string{"route"},
		),

		posts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "autopost",
				Name:      "posts_total",
				Help:      "Scheduled posts processed by the auto-post sweep",
			},
			[]string{"platform", "status"},
		),
	}

	r.registry.MustRegister(
		r.requests,
		r.requestDuration,
		r.aiCache,
		r.rateLimited,
		r.posts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveRequest records one finished request
func (r *Recorder) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	r.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveAICache records an aicache outcome
func (r *Recorder) ObserveAICache(outcome string) {
	r.aiCache.WithLabelValues(outcome).Inc()
}

// ObserveRateLimited records a 429 issued by the wrapper
func (r *Recorder) ObserveRateLimited(route string) {
	r.rateLimited.WithLabelValues(route).Inc()
}

// ObservePost records the final status of one scheduled post
func (r *Recorder) ObservePost(platform, status string) {
	r.posts.WithLabelValues(platform, status).Inc()
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
