package edge

import (
	"strconv"
	"strings"

	"github.com/postcraft/edge/internal/models"

	"github.com/gofiber/fiber/v2"
)

// applyCORS fills CORS headers the handler left unset
func applyCORS(c *fiber.Ctx, cfg *models.CORSConfig) {
	allow := allowedOrigin(cfg.AllowOrigin, c.Get(fiber.HeaderOrigin))
	if allow != "" {
		setIfAbsent(c, fiber.HeaderAccessControlAllowOrigin, allow)
	}
	if cfg.AllowCredentials {
		setIfAbsent(c, fiber.HeaderAccessControlAllowCredentials, "true")
	}
	if cfg.AllowMethods != "" {
		setIfAbsent(c, fiber.HeaderAccessControlAllowMethods, cfg.AllowMethods)
	}
	if cfg.AllowHeaders != "" {
		setIfAbsent(c, fiber.HeaderAccessControlAllowHeaders, cfg.AllowHeaders)
	}
	if cfg.ExposeHeaders != "" {
		setIfAbsent(c, fiber.HeaderAccessControlExposeHeaders, cfg.ExposeHeaders)
	}
	if cfg.MaxAgeSeconds > 0 {
		setIfAbsent(c, fiber.HeaderAccessControlMaxAge, strconv.Itoa(cfg.MaxAgeSeconds))
	}
	if allow != "*" {
		addVary(c, fiber.HeaderOrigin)
	}
}

// allowedOrigin echoes origin only on an exact match with a specific config
func allowedOrigin(configured, origin string) string {
	if configured == "" || configured == "*" {
		return "*"
	}
	if origin != "" && origin == configured {
		return origin
	}
	return ""
}

func addVary(c *fiber.Ctx, value string) {
	existing := string(c.Response().Header.Peek(fiber.HeaderVary))
	for v := range strings.SplitSeq(existing, ",") {
		if strings.EqualFold(strings.TrimSpace(v), value) {
			return
		}
	}
	if existing == "" {
		c.Response().Header.Set(fiber.HeaderVary, value)
		return
	}
	c.Response().Header.Set(fiber.HeaderVary, existing+", "+value)
}
