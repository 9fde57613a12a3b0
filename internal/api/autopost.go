package api

import (
	"github.com/postcraft/edge/internal/services/autopost"
	"github.com/postcraft/edge/internal/services/request"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// AutoPostHandler triggers the publish sweep from a cron caller
type AutoPostHandler struct {
	svc *autopost.Service
}

func NewAutoPostHandler(svc *autopost.Service) *AutoPostHandler {
	return &AutoPostHandler{svc: svc}
}

// Run handles POST /functions/auto-post
func (h *AutoPostHandler) Run(c *fiber.Ctx) error {
	reqID := request.GetRequestID(c)
	fiberlog.Infof("[%s] auto-post sweep requested", reqID)

	res, err := h.svc.Run(c.UserContext())
	if err != nil {
		fiberlog.Errorf("[%s] auto-post sweep failed: %v", reqID, err)
		return err
	}
	return c.JSON(res)
}
