package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency the health check can probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHealthHandler creates a health handler. Nil dependencies are skipped.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	checks := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			checks[name] = p
		}
	}
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

// HealthCheck returns the health status of the service and its dependencies
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	overallStatus := "healthy"
	statusCode := fiber.StatusOK

	results := fiber.Map{}
	for name, p := range h.checks {
		status := h.check(c.UserContext(), p)
		results[name] = status
		if status != "healthy" {
			overallStatus = "degraded"
			statusCode = fiber.StatusServiceUnavailable
		}
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    results,
	})
}

func (h *HealthHandler) check(parent context.Context, p Pinger) string {
	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
