package llm

import (
	"context"
	"errors"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/circuitbreaker"
)

// guardedGenerator short-circuits provider calls while the breaker is open
type guardedGenerator struct {
	Generator
	breaker *circuitbreaker.CircuitBreaker
}

// WithBreaker wraps g so calls fail fast with 503 while the circuit is open
func WithBreaker(g Generator, breaker *circuitbreaker.CircuitBreaker) Generator {
	if breaker == nil {
		return g
	}
	return &guardedGenerator{Generator: g, breaker: breaker}
}

func (g *guardedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	var text string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		text, err = g.Generator.Generate(ctx, req)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return "", models.NewUnavailableError("caption provider temporarily unavailable", err)
	}
	return text, err
}
