package handlers

import (
	"roast-battle/middleware"
	"roast-battle/services"

	"github.com/gofiber/fiber/v2"
)

type RoundHandler struct {
	Rounds       *services.RoundService
	Reservations *services.ReservationService
}

// SetupRoundRoutes registers the public read routes and the participant eligibility check.
func SetupRoundRoutes(app *fiber.App, h *RoundHandler, participant fiber.Handler) {
	// 🔓 Public
	app.Get("/rounds/active", h.GetActiveRound)
	app.Get("/rounds/:id", h.GetRound)
	app.Get("/rounds/:id/results", h.GetRoundResults)
	app.Get("/leaderboard", h.GetLeaderboard)

	// 🔐 Participant
	app.Get("/rounds/:id/eligibility", participant, h.GetEligibility)
}

func (h *RoundHandler) GetActiveRound(c *fiber.Ctx) error {
	round, err := h.Rounds.ActiveRound(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(round)
}

func (h *RoundHandler) GetRound(c *fiber.Ctx) error {
	round, err := h.Rounds.GetRound(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(round)
}

func (h *RoundHandler) GetRoundResults(c *fiber.Ctx) error {
	results, err := h.Rounds.RoundResults(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(results)
}

func (h *RoundHandler) GetLeaderboard(c *fiber.Ctx) error {
	rows, err := h.Rounds.Leaderboard(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"leaderboard": rows})
}

func (h *RoundHandler) GetEligibility(c *fiber.Ctx) error {
	res, err := h.Reservations.CheckEligibility(c.UserContext(), c.Params("id"), middleware.ParticipantID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}
