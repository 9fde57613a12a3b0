package api

import (
	"fmt"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/edge"
	"github.com/postcraft/edge/internal/services/idempotency"
	"github.com/postcraft/edge/internal/services/kv"
	"github.com/postcraft/edge/internal/services/middleware"

	"github.com/gofiber/fiber/v2"
)

const (
	CaptionPath  = "/functions/generate-caption"
	AutoPostPath = "/functions/auto-post"
	BillingPath  = "/functions/billing-webhook"
	HealthPath   = "/health"
	MetricsPath  = "/metrics"

	captionIdempotencyTTL = 600
	billingIdempotencyTTL = 24 * 60 * 60
	autoPostTimeout       = 5 * time.Minute
)

// Routes holds the shared collaborators and the handlers to mount. Nil
// handlers are not mounted.
type Routes struct {
	Edge    models.EdgeConfig
	Store   kv.Store
	Limiter edge.Limiter
	Metrics edge.Observer
	Auth    *middleware.AuthMiddleware

	CronSecret string
	// LLMTimeout stretches the caption route deadline past one provider call
	LLMTimeout time.Duration

	Health         *HealthHandler
	Caption        *CaptionHandler
	AutoPost       *AutoPostHandler
	Billing        *BillingHandler
	MetricsHandler fiber.Handler
}

// Register mounts every configured endpoint behind the edge wrapper
func (r *Routes) Register(app *fiber.App) error {
	if r.Health != nil {
		cfg := r.Edge.Clone()
		app.Get(HealthPath, r.wrap("health", cfg), r.Health.HealthCheck)
	}

	if r.MetricsHandler != nil {
		cfg := r.Edge.Clone()
		cfg.ETag = false
		app.Get(MetricsPath, r.wrap("metrics", cfg), r.MetricsHandler)
	}

	if r.Caption != nil {
		cfg := r.Edge.Clone()
		cfg.RateLimit = &models.RateLimitConfig{Capacity: 60, RefillPerSec: 1}
		cfg.Idempotency = &models.IdempotencyConfig{TTLSec: captionIdempotencyTTL, Mode: models.IdempotencyReplay}
		if minMs := int((r.LLMTimeout + 2*time.Second).Milliseconds()); cfg.RequestTimeoutMs < minMs {
			cfg.RequestTimeoutMs = minMs
		}

		handlers := []fiber.Handler{r.authenticate()}
		guard, err := r.guard("generate-caption", cfg.Idempotency)
		if err != nil {
			return err
		}
		handlers = append(handlers, guard.Middleware(), r.Caption.Generate)
		r.mount(app, CaptionPath, "generate-caption", cfg, handlers...)
	}

	if r.AutoPost != nil {
		cfg := r.Edge.Clone()
		cfg.RequestTimeoutMs = int(autoPostTimeout.Milliseconds())
		r.mount(app, AutoPostPath, "auto-post", cfg, middleware.RequireCronSecret(r.CronSecret), r.AutoPost.Run)
	}

	if r.Billing != nil {
		cfg := r.Edge.Clone()
		cfg.CORS = nil
		cfg.Idempotency = &models.IdempotencyConfig{TTLSec: billingIdempotencyTTL, Mode: models.IdempotencyReject}
		guard, err := r.guard("billing-webhook", cfg.Idempotency)
		if err != nil {
			return err
		}
		r.mount(app, BillingPath, "billing-webhook", cfg, r.Billing.Verify, guard.Middleware(), r.Billing.Webhook)
	}

	return nil
}

func (r *Routes) wrap(route string, cfg models.EdgeConfig) fiber.Handler {
	return edge.New(edge.Options{Route: route, Config: cfg}, edge.Deps{Limiter: r.Limiter, Metrics: r.Metrics})
}

// mount registers POST plus the preflight OPTIONS for path
func (r *Routes) mount(app *fiber.App, path, route string, cfg models.EdgeConfig, handlers ...fiber.Handler) {
	wrapper := r.wrap(route, cfg)
	app.Options(path, wrapper)
	app.Post(path, append([]fiber.Handler{wrapper}, handlers...)...)
}

func (r *Routes) authenticate() fiber.Handler {
	if r.Auth == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return r.Auth.Authenticate()
}

// guard scopes keys by route since every route shares r.Store
func (r *Routes) guard(route string, cfg *models.IdempotencyConfig) (*idempotency.Guard, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("idempotency requires a kv store")
	}
	return idempotency.NewGuard(r.Store, time.Duration(cfg.TTLSec)*time.Second, cfg.Mode, idempotency.WithScope(route))
}
