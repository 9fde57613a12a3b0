package idempotency

import (
	"context"
	"strings"

	"github.com/postcraft/edge/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// headers that describe the connection rather than the response
var skipHeaders = map[string]struct{}{
	"content-length":    {},
	"connection":        {},
	"date":              {},
	"server":            {},
	"transfer-encoding": {},
	"keep-alive":        {},
}

// Middleware guards the rest of the handler chain
func (g *Guard) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := DeriveKey(c.Get(HeaderKey), c.Body())

		rec, outcome, err := g.Execute(c.UserContext(), key, func(context.Context) (*Record, error) {
			if err := c.Next(); err != nil {
				return nil, err
			}
			return Capture(c.Response()), nil
		})
		if err != nil {
			return err
		}

		switch outcome {
		case OutcomeRejected:
			return models.NewConflictError("Duplicate request")
		case OutcomeReplayed:
			rec.Apply(c.Response())
			c.Set(HeaderReplayed, "true")
		}
		return nil
	}
}

// Capture copies status, headers and body out of a fasthttp response
func Capture(resp *fasthttp.Response) *Record {
	rec := &Record{
		StatusCode: resp.StatusCode(),
		Body:       append([]byte(nil), resp.Body()...),
	}
	for key, value := range resp.Header.All() {
		name := string(key)
		if _, skip := skipHeaders[strings.ToLower(name)]; skip {
			continue
		}
		rec.Headers = append(rec.Headers, [2]string{name, string(value)})
	}
	return rec
}

// Apply writes the record into resp, replacing what was there
func (r *Record) Apply(resp *fasthttp.Response) {
	resp.Reset()
	resp.SetStatusCode(r.StatusCode)
	for _, h := range r.Headers {
		resp.Header.Add(h[0], h[1])
	}
	resp.SetBody(r.Body)
}
