package handlers

import (
	"errors"
	"log"

	"roast-battle/services"

	"github.com/gofiber/fiber/v2"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{services.ErrInvalidInput, fiber.StatusBadRequest},
	{services.ErrRoundNotFound, fiber.StatusNotFound},
	{services.ErrNotFound, fiber.StatusNotFound},
	{services.ErrForbidden, fiber.StatusForbidden},
	{services.ErrRoundNotActive, fiber.StatusConflict},
	{services.ErrDuplicateEntry, fiber.StatusConflict},
	{services.ErrInvalidTransition, fiber.StatusConflict},
	{services.ErrRoundFrozen, fiber.StatusConflict},
	{services.ErrPaymentUnverified, fiber.StatusPaymentRequired},
	{services.ErrPaymentFailed, fiber.StatusBadGateway},
	{services.ErrScoringParse, fiber.StatusBadGateway},
	{services.ErrScoringUnavailable, fiber.StatusServiceUnavailable},
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
