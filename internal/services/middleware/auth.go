package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/request"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ClaimsLocalKey holds the verified *UserClaims
const ClaimsLocalKey = "auth_claims"

// UserClaims are the fields read from a Supabase access token
type UserClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	config *AuthMiddlewareConfig
	parser *jwt.Parser
}

type AuthMiddlewareConfig struct {
	Enabled        bool
	AllowAnonymous bool
	JWTSecret      string
	Audience       string
	HeaderNames    []string
	SkipPaths      []string
	Leeway         time.Duration
}

func DefaultAuthMiddlewareConfig() *AuthMiddlewareConfig {
	return &AuthMiddlewareConfig{
		Enabled:        true,
		AllowAnonymous: false,
		Audience:       "authenticated",
		HeaderNames:    []string{"Authorization"},
		SkipPaths: []string{
			"/health",
			"/metrics",
		},
		Leeway: 30 * time.Second,
	}
}

// AuthConfigFromModel builds the middleware config from the YAML section
func AuthConfigFromModel(cfg *models.AuthConfig) *AuthMiddlewareConfig {
	out := DefaultAuthMiddlewareConfig()
	if cfg == nil {
		out.Enabled = false
		return out
	}
	out.JWTSecret = cfg.JWTSecret
	if cfg.Audience != "" {
		out.Audience = cfg.Audience
	}
	out.AllowAnonymous = !cfg.Required
	return out
}

func NewAuthMiddleware(config *AuthMiddlewareConfig) *AuthMiddleware {
	if config == nil {
		config = DefaultAuthMiddlewareConfig()
	}
	if len(config.HeaderNames) == 0 {
		config.HeaderNames = []string{"Authorization"}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	return &AuthMiddleware{
		config: config,
		parser: jwt.NewParser(opts...),
	}
}

// Authenticate verifies a token when present and lets anonymous requests
// through if the config allows it.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return m.authenticate(false)
}

// RequireAuth rejects requests without a valid token
func (m *AuthMiddleware) RequireAuth() fiber.Handler {
	return m.authenticate(true)
}

func (m *AuthMiddleware) authenticate(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !m.config.Enabled {
			return c.Next()
		}

		if m.shouldSkipPath(c.Path()) {
			return c.Next()
		}

		token := m.extractToken(c)

		if token == "" {
			if !required && m.config.AllowAnonymous {
				return c.Next()
			}
			return models.NewAuthenticationError("Authentication required", nil)
		}

		claims, err := m.validateToken(token)
		if err != nil {
			return models.NewAuthenticationError("Invalid or expired token", err)
		}

		c.Locals(request.UserIDLocalKey, claims.Subject)
		c.Locals(ClaimsLocalKey, claims)

		return c.Next()
	}
}

func (m *AuthMiddleware) extractToken(c *fiber.Ctx) string {
	for _, headerName := range m.config.HeaderNames {
		if header := c.Get(headerName); header != "" {
			if after, ok := strings.CutPrefix(header, "Bearer "); ok {
				return strings.TrimSpace(after)
			}
			return strings.TrimSpace(header)
		}
	}

	return ""
}

func (m *AuthMiddleware) validateToken(token string) (*UserClaims, error) {
	if m.config.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret not configured")
	}

	claims := &UserClaims{}
	parsed, err := m.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(m.config.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// GetClaims returns the verified claims, or nil for anonymous requests
func GetClaims(c *fiber.Ctx) *UserClaims {
	claims, _ := c.Locals(ClaimsLocalKey).(*UserClaims)
	return claims
}

func (m *AuthMiddleware) shouldSkipPath(path string) bool {
	for _, skipPath := range m.config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}
