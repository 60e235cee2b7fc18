package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type Trigger interface {
	Trigger()
}

// OpsHandler serves health checks and the manual dispatch trigger.
type OpsHandler struct {
	ping    func(ctx context.Context) error
	trigger Trigger
}

func NewOpsHandler(ping func(ctx context.Context) error, trigger Trigger) *OpsHandler {
	return &OpsHandler{ping: ping, trigger: trigger}
}

func (h *OpsHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if h.ping != nil {
		if err := h.ping(ctx); err != nil {
			log.Error().Err(err).Msg("health check: database unreachable")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *OpsHandler) Dispatch(c *fiber.Ctx) error {
	h.trigger.Trigger()
	log.Info().Interface("operator", c.Locals("operator")).Msg("dispatch triggered")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
}
