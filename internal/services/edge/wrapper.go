// Package edge wraps route handlers with correlation ids, rate limiting,
// error shielding, timing, ETags, CORS and one metric line per request.
package edge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/aicache"
	"github.com/postcraft/edge/internal/services/ratelimit"
	"github.com/postcraft/edge/internal/services/request"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/utils"
)

// Limiter is the token bucket as seen by the wrapper
type Limiter interface {
	Consume(ctx context.Context, key string, capacity, refillPerSec float64) (ratelimit.Decision, error)
}

// Observer receives request metrics
type Observer interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
	ObserveRateLimited(route string)
}

// Options names the route and its behaviour
type Options struct {
	Route  string
	Config models.EdgeConfig
}

// Deps are the shared collaborators. Both may be nil.
type Deps struct {
	Limiter Limiter
	Metrics Observer
}

type wrapper struct {
	route   string
	cfg     models.EdgeConfig
	limiter Limiter
	metrics Observer
	now     func() time.Time
}

// New returns a fiber handler that runs the rest of the route's chain
// inside the edge wrapper. It never returns an error to fiber: every
// failure is rendered as a JSON body here.
func New(opts Options, deps Deps) fiber.Handler {
	w := &wrapper{
		route:   opts.Route,
		cfg:     opts.Config.Clone(),
		limiter: deps.Limiter,
		metrics: deps.Metrics,
		now:     time.Now,
	}
	if w.cfg.RateLimit != nil && w.limiter == nil {
		fiberlog.Warnf("edge: route %s has a rate limit but no limiter, limiting disabled", w.route)
	}
	return w.handle
}

func (w *wrapper) handle(c *fiber.Ctx) error {
	start := w.now()
	// Method aliases the pooled request buffer and outlives the request as a metric label.
	method := utils.CopyString(c.Method())
	requestID := request.GetRequestID(c)
	defer w.record(c, method, requestID, start)

	if method == fiber.MethodOptions && w.cfg.CORS != nil {
		applyCORS(c, w.cfg.CORS)
		c.Response().ResetBody()
		c.Status(fiber.StatusNoContent)
		return nil
	}

	if w.cfg.RequestTimeoutMs > 0 {
		ctx, cancel := context.WithTimeout(c.UserContext(), time.Duration(w.cfg.RequestTimeoutMs)*time.Millisecond)
		defer cancel()
		c.SetUserContext(ctx)
	}

	if !w.allow(c, requestID) {
		w.finalize(c, method, requestID, start)
		return nil
	}

	w.invoke(c, requestID)
	w.finalize(c, method, requestID, start)
	return nil
}

// allow consumes one token. Limiter failures let the request through.
func (w *wrapper) allow(c *fiber.Ctx, requestID string) bool {
	rl := w.cfg.RateLimit
	if rl == nil || w.limiter == nil {
		return true
	}

	decision, err := w.limiter.Consume(c.UserContext(), rateKey(c), rl.Capacity, rl.RefillPerSec)
	if err != nil {
		fiberlog.Warnf("[%s] rate limiter unavailable on %s, allowing request: %v", requestID, w.route, err)
		return true
	}
	if decision.Allowed {
		return true
	}

	if w.metrics != nil {
		w.metrics.ObserveRateLimited(w.route)
	}
	c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", decision.RetryAfterSeconds()))
	writeError(c, fiber.StatusTooManyRequests, models.NewRateLimitError().Message)
	return false
}

func rateKey(c *fiber.Ctx) string {
	user := request.GetUserID(c)
	if user == "" {
		user = "user:anon"
	}
	ip := request.ClientIP(c)
	if ip == "" {
		ip = "ip:unknown"
	}
	return "rl:" + user + ":" + ip
}

func (w *wrapper) invoke(c *fiber.Ctx, requestID string) {
	defer func() {
		if r := recover(); r != nil {
			fiberlog.Errorf("[%s] panic in %s: %v\n%s", requestID, w.route, r, debug.Stack())
			writeError(c, fiber.StatusInternalServerError, "Internal Error")
		}
	}()

	if err := c.Next(); err != nil {
		w.handleError(c, requestID, err)
	}
}

// handleError renders err. Client errors keep their status and message,
// anything else is logged and hidden.
func (w *wrapper) handleError(c *fiber.Ctx, requestID string, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		err = models.NewTimeoutError(w.route, err)
	}
	if errors.Is(err, aicache.ErrLeaderTimeout) {
		err = models.NewUnavailableError("AI result not ready, retry shortly", err)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) && fiberErr.Code < fiber.StatusInternalServerError {
		writeError(c, fiberErr.Code, fiberErr.Message)
		return
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		sanitized := models.SanitizeError(appErr)
		if sanitized.StatusCode >= fiber.StatusInternalServerError {
			fiberlog.Errorf("[%s] %s failed: %v", requestID, w.route, err)
		}
		writeError(c, sanitized.StatusCode, sanitized.Message)
		return
	}

	fiberlog.Errorf("[%s] %s failed: %v", requestID, w.route, err)
	writeError(c, fiber.StatusInternalServerError, "Internal Error")
}

func writeError(c *fiber.Ctx, status int, message string) {
	// JSON on a map cannot fail
	_ = c.Status(status).JSON(fiber.Map{"error": message})
}

func (w *wrapper) finalize(c *fiber.Ctx, method, requestID string, start time.Time) {
	h := &c.Response().Header

	h.Set(request.HeaderRequestID, requestID)
	if w.cfg.RequestID {
		setIfAbsent(c, "Request-Id", requestID)
	}

	elapsed := w.now().Sub(start)
	setIfAbsent(c, "Server-Timing", fmt.Sprintf("edge;dur=%.1f", float64(elapsed.Microseconds())/1000))

	if w.cfg.HardenHeaders {
		setIfAbsent(c, fiber.HeaderXContentTypeOptions, "nosniff")
		setIfAbsent(c, fiber.HeaderReferrerPolicy, "no-referrer")
		setIfAbsent(c, "Cross-Origin-Opener-Policy", "same-origin")
	}

	if method == fiber.MethodGet {
		if w.cfg.EnableAutoCacheForGET {
			setIfAbsent(c, fiber.HeaderCacheControl, w.cfg.CacheControl)
		}
		if w.cfg.ETag {
			applyETag(c, w.cfg.ETagMaxBytes)
		}
	}

	if w.cfg.CORS != nil {
		applyCORS(c, w.cfg.CORS)
	}
}

func (w *wrapper) record(c *fiber.Ctx, method, requestID string, start time.Time) {
	elapsed := w.now().Sub(start)
	status := c.Response().StatusCode()
	cache := string(c.Response().Header.Peek(aicache.HeaderName))
	if cache == "" {
		cache = "none"
	}

	fiberlog.Infow("edge metric",
		"route", w.route,
		"method", method,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
		"correlation_id", requestID,
		"cache", cache,
	)
	if w.metrics != nil {
		w.metrics.ObserveRequest(w.route, method, status, elapsed)
	}
}

func setIfAbsent(c *fiber.Ctx, key, value string) {
	if len(c.Response().Header.Peek(key)) == 0 {
		c.Response().Header.Set(key, value)
	}
}
