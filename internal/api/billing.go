package api

import (
	"errors"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/billing"
	"github.com/postcraft/edge/internal/services/request"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v81"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	stripeEventLocalKey   = "stripe_event"
)

// BillingHandler receives Stripe webhooks
type BillingHandler struct {
	svc *billing.Service
}

func NewBillingHandler(svc *billing.Service) *BillingHandler {
	return &BillingHandler{svc: svc}
}

// Verify rejects deliveries whose signature does not check out. It runs ahead
// of the idempotency guard so a forged body never occupies a key.
func (h *BillingHandler) Verify(c *fiber.Ctx) error {
	signature := c.Get(stripeSignatureHeader)
	if signature == "" {
		return models.NewValidationError("Missing Stripe-Signature header", nil)
	}

	event, err := h.svc.Verify(c.Body(), signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			fiberlog.Warnf("[%s] %v", request.GetRequestID(c), err)
			return models.NewValidationError("Invalid webhook signature", err)
		}
		return err
	}
	c.Locals(stripeEventLocalKey, event)
	return c.Next()
}

// Webhook handles POST /functions/billing-webhook after Verify
func (h *BillingHandler) Webhook(c *fiber.Ctx) error {
	event, ok := c.Locals(stripeEventLocalKey).(*stripe.Event)
	if !ok {
		return models.NewInternalError("billing webhook reached without a verified event", nil)
	}

	if err := h.svc.Apply(c.UserContext(), event, c.Body()); err != nil {
		fiberlog.Errorf("[%s] billing webhook %s failed: %v", request.GetRequestID(c), event.ID, err)
		return models.NewInternalError("Failed to process webhook", err)
	}

	return c.JSON(fiber.Map{"received": true})
}
