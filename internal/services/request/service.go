// Package request holds per-request helpers shared by the wrapper and handlers.
package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/postcraft/edge/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// HeaderRequestID is the inbound and outbound correlation header
	HeaderRequestID = "X-Request-Id"
	// HeaderUserID lets trusted callers name the user for rate limiting
	HeaderUserID = "X-User-Id"

	// requestIDLocalKey is the shared key for storing request ID in fiber locals
	requestIDLocalKey = "request_id"
	// UserIDLocalKey is set by the auth middleware
	UserIDLocalKey = "user_id"
	// maxRequestIDLength is the maximum allowed length for request IDs
	maxRequestIDLength = 256
)

// sanitizeRequestID trims, caps and strips control characters
func sanitizeRequestID(reqID string) string {
	sanitized := strings.TrimSpace(reqID)
	sanitized = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, sanitized)
	if len(sanitized) > maxRequestIDLength {
		sanitized = sanitized[:maxRequestIDLength]
	}
	return sanitized
}

// GetRequestID extracts or generates a request ID and caches it in locals
func GetRequestID(c *fiber.Ctx) string {
	if cachedID, ok := c.Locals(requestIDLocalKey).(string); ok && cachedID != "" {
		return cachedID
	}

	requestID := sanitizeRequestID(c.Get(HeaderRequestID))
	if requestID == "" {
		requestID = GenerateRequestID()
	}

	c.Locals(requestIDLocalKey, requestID)
	return requestID
}

// GenerateRequestID creates a new random request ID
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GetUserID returns the authenticated user, falling back to the X-User-Id header
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals(UserIDLocalKey).(string); ok && userID != "" {
		return userID
	}
	return strings.TrimSpace(c.Get(HeaderUserID))
}

// ClientIP returns the first X-Forwarded-For hop or the peer address
func ClientIP(c *fiber.Ctx) string {
	if fwd := c.Get(fiber.HeaderXForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return c.IP()
}

// ReadJSON decodes the request body into v, refusing bodies over maxBytes
func ReadJSON(c *fiber.Ctx, v any, maxBytes int) error {
	body := c.Body()
	if maxBytes > 0 && len(body) > maxBytes {
		return models.NewPayloadTooLargeError(maxBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return models.NewValidationError("Invalid JSON", errors.New("empty body"))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return models.NewValidationError("Invalid JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return models.NewValidationError("Invalid JSON", errors.New("trailing data after JSON value"))
	}
	return nil
}
