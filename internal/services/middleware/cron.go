package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/postcraft/edge/internal/models"

	"github.com/gofiber/fiber/v2"
)

// HeaderCronSecret is checked before Authorization for scheduler calls
const HeaderCronSecret = "X-Cron-Secret"

// RequireCronSecret guards batch endpoints triggered by the scheduler. An
// empty secret leaves the endpoint open, which is only meant for local runs.
func RequireCronSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		presented := c.Get(HeaderCronSecret)
		if presented == "" {
			presented, _ = strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			return models.NewAuthenticationError("Unauthorized", nil)
		}
		return c.Next()
	}
}
