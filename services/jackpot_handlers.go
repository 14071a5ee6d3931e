package services

import (
	"errors"
	"strconv"

	"jackpot-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PurchaseTicketsRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateParametersRequest carries the optional new price and capacity.
type UpdateParametersRequest struct {
	TicketPrice  *decimal.Decimal `json:"ticket_price,omitempty"`
	TotalTickets *int             `json:"total_tickets,omitempty"`
}

type UpdateSettingsRequest struct {
	JackpotEnabled      *bool            `json:"jackpot_enabled,omitempty"`
	AutoSpendEnabled    *bool            `json:"auto_spend_enabled,omitempty"`
	DefaultTicketPrice  *decimal.Decimal `json:"default_ticket_price,omitempty"`
	DefaultTotalTickets *int             `json:"default_total_tickets,omitempty"`
}

// respondError writes a JackpotError as {error, code}; anything else is a 500.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	if code := CodeOf(err); code != "" {
		msg := err.Error()
		var je *JackpotError
		if errors.As(err, &je) {
			msg = je.Message
		}
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{
			"error": msg,
			"code":  code,
		})
	}
	log.Error("jackpot request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal error",
		"cause": err.Error(),
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func roundNumberParam(c *fiber.Ctx) (int64, error) {
	n, err := strconv.ParseInt(c.Params("number"), 10, 64)
	if err != nil || n <= 0 {
		return 0, newError(CodeInvalidRequest, "round number must be a positive integer")
	}
	return n, nil
}

// GetStatus returns the public snapshot of the current round.
func (s *JackpotService) GetStatus(c *fiber.Ctx) error {
	view, err := s.GetRoundStatus(c.UserContext())
	if err != nil {
		return respondError(c, s.log, err)
	}
	return c.JSON(view)
}

func (s *JackpotService) ListRoundsHandler(c *fiber.Ctx) error {
	rounds, total, err := s.ListRounds(c.UserContext(), c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, s.log, err)
	}
	return c.JSON(fiber.Map{
		"rounds": rounds,
		"total":  total,
	})
}

func (s *JackpotService) GetRoundHandler(c *fiber.Ctx) error {
	n, err := roundNumberParam(c)
	if err != nil {
		return respondError(c, s.log, err)
	}
	r, err := s.GetRoundByNumber(c.UserContext(), n)
	if err != nil {
		return respondError(c, s.log, err)
	}
	return c.JSON(r)
}

func (s *JackpotService) VerifyRoundHandler(c *fiber.Ctx) error {
	n, err := roundNumberParam(c)
	if err != nil {
		return respondError(c, s.log, err)
	}
	res, err := s.VerifyRound(c.UserContext(), n)
	if err != nil {
		return respondError(c, s.log, err)
	}
	return c.JSON(res)
}

// PurchaseTicketsHandler buys tickets for the gateway-authenticated user.
func (s *JackpotService) PurchaseTicketsHandler(c *fiber.Ctx) error {
	var req PurchaseTicketsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid JSON",
			"details": err.Error(),
		})
	}
	res, err := s.PurchaseTickets(c.UserContext(), userID(c), req.Quantity)
	if err != nil {
		return respondError(c, s.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (s *JackpotService) ListMyTicketsHandler(c *fiber.Ctx) error {
	number := int64(c.QueryInt("round", 0))
	tickets, r, err := s.ListUserTickets(c.UserContext(), userID(c), number)
	if err != nil {
		return respondError(c, s.log, err)
	}
	return c.JSON(fiber.Map{
		"round_number": r.RoundNumber,
		"status":       r.Status,
		"tickets":      tickets,
	})
}

// --- admin ---

func (s *JackpotService) ExecuteDrawHandler(c *fiber.Ctx) error {
	res, err := s.ExecuteDraw(c.UserContext(), c.Params("id"), userID(c), models.DrawMethodManual)
	if err != nil {
		return respondError(c, s.log, err)
	}
	return c.JSON(res)
}

func (s *JackpotService) UpdateParametersHandler(c *fiber.Ctx) error {
	var req UpdateParametersRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid JSON",
			"details": err.Error(),
		})
	}
	if req.TicketPrice == nil && req.TotalTickets == nil {
		return respondError(c, s.log, newError(CodeInvalidRequest, "nothing to update"))
	}
	r, err := s.UpdateParameters(c.UserContext(), c.Params("id"), req.TicketPrice, req.TotalTickets, userID(c))
	if err != nil {
		return respondError(c, s.log, err)
	}
	return c.JSON(r)
}

func (s *JackpotService) TogglePauseHandler(c *fiber.Ctx) error {
	r, err := s.TogglePause(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return respondError(c, s.log, err)
	}
	return c.JSON(fiber.Map{
		"round_number": r.RoundNumber,
		"is_active":    r.IsActive,
		"status":       r.Status,
	})
}

func (s *JackpotService) WithdrawSurplusHandler(c *fiber.Ctx) error {
	amount, err := s.WithdrawSurplus(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return respondError(c, s.log, err)
	}
	return c.JSON(fiber.Map{
		"round_id": c.Params("id"),
		"amount":   amount,
	})
}

func (s *SettingsService) GetSettingsHandler(c *fiber.Ctx) error {
	return c.JSON(s.Current())
}

func (s *SettingsService) UpdateSettingsHandler(c *fiber.Ctx) error {
	var req UpdateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid JSON",
			"details": err.Error(),
		})
	}
	next, err := s.Update(c.UserContext(), userID(c), func(ps *models.PlatformSettings) error {
		if req.JackpotEnabled != nil {
			ps.JackpotEnabled = *req.JackpotEnabled
		}
		if req.AutoSpendEnabled != nil {
			ps.AutoSpendEnabled = *req.AutoSpendEnabled
		}
		if req.DefaultTicketPrice != nil {
			ps.DefaultTicketPrice = *req.DefaultTicketPrice
		}
		if req.DefaultTotalTickets != nil {
			ps.DefaultTotalTickets = *req.DefaultTotalTickets
		}
		return nil
	})
	if errors.Is(err, ErrSettingsConflict) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return respondError(c, s.log, err)
	}
	return c.JSON(next)
}
