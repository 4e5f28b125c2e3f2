package handlers

import (
	"time"

	"roast-battle/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type AdminHandler struct {
	Rounds       *services.RoundService
	Scoring      *services.ScoringService
	Ranking      *services.RankingService
	Distribution *services.DistributionService
}

func SetupAdminRoutes(app *fiber.App, h *AdminHandler, admin fiber.Handler) {
	rounds := app.Group("/admin/rounds", admin)
	rounds.Post("/", h.CreateRound)
	rounds.Post("/end", h.EndActiveRounds)
	rounds.Post("/:id/end", h.EndRound)
	rounds.Post("/:id/judging", h.StartJudging)
	rounds.Post("/:id/judge", h.JudgeRound)
	rounds.Get("/:id/judge", h.GetJudgingStatus)
	rounds.Post("/:id/rank", h.RankRound)
	rounds.Post("/:id/distribute", h.Distribute)
}

type createRoundBody struct {
	Theme         string           `json:"theme"`
	StartsAt      *time.Time       `json:"starts_at"`
	EndsAt        *time.Time       `json:"ends_at"`
	DurationHours float64          `json:"duration_hours"`
	EntryFee      *decimal.Decimal `json:"entry_fee"`
}

func (h *AdminHandler) CreateRound(c *fiber.Ctx) error {
	var body createRoundBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	req := services.CreateRoundRequest{Theme: body.Theme, EntryFee: body.EntryFee}
	if body.StartsAt != nil {
		req.StartsAt = *body.StartsAt
	}
	switch {
	case body.EndsAt != nil:
		req.EndsAt = *body.EndsAt
	case body.DurationHours > 0:
		start := req.StartsAt
		if start.IsZero() {
			start = time.Now()
		}
		req.EndsAt = start.Add(time.Duration(body.DurationHours * float64(time.Hour)))
	}

	round, err := h.Rounds.CreateRound(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(round)
}

func (h *AdminHandler) EndActiveRounds(c *fiber.Ctx) error {
	ended, err := h.Rounds.EndAllActive(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ended": ended})
}

func (h *AdminHandler) EndRound(c *fiber.Ctx) error {
	round, err := h.Rounds.EndRound(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(round)
}

func (h *AdminHandler) StartJudging(c *fiber.Ctx) error {
	round, err := h.Rounds.StartJudging(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(round)
}

func (h *AdminHandler) JudgeRound(c *fiber.Ctx) error {
	out, err := h.Scoring.ScoreRound(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(out)
}

func (h *AdminHandler) GetJudgingStatus(c *fiber.Ctx) error {
	st, err := h.Scoring.JudgingStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(st)
}

func (h *AdminHandler) RankRound(c *fiber.Ctx) error {
	ranks, err := h.Ranking.Rank(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"round_id": c.Params("id"), "ranks": ranks})
}

func (h *AdminHandler) Distribute(c *fiber.Ctx) error {
	res, err := h.Distribution.Distribute(c.UserContext(), c.Params("id"))
	if err != nil {
		if res != nil {
			// Partial: some transfers went out, the rest can be retried.
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error(), "result": res})
		}
		return respondError(c, err)
	}
	return c.JSON(res)
}
