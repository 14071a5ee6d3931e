// services/scheduler.go
package services

import (
	"context"
	"errors"
	"time"

	"jackpot-service/models"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// stalledDrawAfter is how long a round may sit in drawing before it is put back to active.
const stalledDrawAfter = 5 * time.Minute

type AutoSpendResult struct {
	Players int `json:"players"`
	Tickets int `json:"tickets"`
	Failed  int `json:"failed"`
}

// AutoSpend converts opted-in players' draw-wallet balances into tickets. Each player buys
// as many whole tickets as the balance covers, capped by what is left in the round.
// One player's failure does not stop the batch.
func (s *JackpotService) AutoSpend(ctx context.Context) (AutoSpendResult, error) {
	var res AutoSpendResult
	if !s.settings.Current().AutoSpendEnabled || !s.settings.Current().JackpotEnabled {
		return res, nil
	}
	round, err := s.GetActiveRound(ctx)
	if err != nil {
		return res, err
	}
	players, err := s.store.ListAutoSpendPlayers(ctx, round.TicketPrice)
	if err != nil {
		return res, err
	}

	for _, p := range players {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		round, err = s.GetActiveRound(ctx)
		if err != nil {
			return res, err
		}
		if !round.IsActive || round.Status != models.RoundStatusActive {
			s.log.Info("auto-spend stopped, round not selling", zap.Int64("round_number", round.RoundNumber))
			break
		}
		qty := int(p.LuckyDrawWallet.Div(round.TicketPrice).IntPart())
		qty = min(qty, round.RemainingTickets())
		if qty <= 0 {
			continue
		}

		purchase, err := s.PurchaseTickets(ctx, p.ID, qty)
		if err != nil {
			res.Failed++
			s.log.Warn("auto-spend purchase failed",
				zap.String("user_id", p.ID),
				zap.Int("quantity", qty),
				zap.Error(err),
			)
			continue
		}
		res.Players++
		res.Tickets += len(purchase.TicketNumbers)
	}
	if res.Players > 0 || res.Failed > 0 {
		s.log.Info("auto-spend finished",
			zap.Int("players", res.Players),
			zap.Int("tickets", res.Tickets),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}

// RecoverStalledDraw finishes rounds left behind by a failed or interrupted draw: a full
// active round is drawn, and a round stuck in drawing is restored to active first.
func (s *JackpotService) RecoverStalledDraw(ctx context.Context) (*DrawResult, error) {
	r, err := s.store.GetCurrentRound(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if r.Status == models.RoundStatusDrawing {
		if s.now().Sub(r.UpdatedAt) < stalledDrawAfter {
			return nil, nil
		}
		s.log.Warn("round stuck in drawing, restoring to active", zap.Int64("round_number", r.RoundNumber))
		if err := s.rollbackDraw(ctx, r.ID); err != nil {
			return nil, err
		}
		r.Status = models.RoundStatusActive
	}
	if r.Status != models.RoundStatusActive || !r.IsFull() {
		return nil, nil
	}
	return s.ExecuteDraw(ctx, r.ID, "system", models.DrawMethodAuto)
}

// StartScheduler runs auto-spend and stalled-draw recovery every interval until Shutdown.
func (s *JackpotService) StartScheduler(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.RecoverStalledDraw(ctx); err != nil {
				s.log.Error("[Scheduler] stalled draw recovery failed", zap.Error(err))
			}
			if _, err := s.AutoSpend(ctx); err != nil {
				s.log.Error("[Scheduler] auto-spend failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}
	sched.Start()
	s.log.Info("jackpot scheduler started", zap.Duration("interval", interval))
	return sched, nil
}
