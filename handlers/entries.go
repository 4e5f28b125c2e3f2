package handlers

import (
	"roast-battle/middleware"
	"roast-battle/models"
	"roast-battle/services"

	"github.com/gofiber/fiber/v2"
)

type EntryHandler struct {
	Reservations *services.ReservationService
	Settlement   *services.SettlementService
}

func SetupEntryRoutes(app *fiber.App, h *EntryHandler, participant fiber.Handler) {
	entries := app.Group("/entries", participant)
	entries.Post("/reserve", h.Reserve)
	entries.Post("/:id/confirm", h.Confirm)
}

type reserveBody struct {
	RoundID string `json:"round_id"`
	Text    string `json:"text"`
	models.ParticipantProfile
}

func (h *EntryHandler) Reserve(c *fiber.Ctx) error {
	var body reserveBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	req := services.ReserveRequest{
		RoundID:       body.RoundID,
		ParticipantID: middleware.ParticipantID(c),
		Text:          body.Text,
	}
	if !body.ParticipantProfile.IsEmpty() {
		profile := body.ParticipantProfile
		req.Profile = &profile
	}

	handle, err := h.Reservations.Reserve(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusCreated
	if handle.Resumed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(handle)
}

type confirmBody struct {
	PaymentRef string `json:"payment_ref"`
}

func (h *EntryHandler) Confirm(c *fiber.Ctx) error {
	var body confirmBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.Settlement.Confirm(c.UserContext(), c.Params("id"), body.PaymentRef, middleware.ParticipantID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}
