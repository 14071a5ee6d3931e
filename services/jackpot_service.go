package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"jackpot-service/events"
	"jackpot-service/metrics"
	"jackpot-service/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Publisher delivers engine events to the push channel.
type Publisher interface {
	Publish(ctx context.Context, evts ...events.Event) error
}

// ProofArchive stores a draw's fairness proof and returns where it can be fetched.
type ProofArchive interface {
	UploadJSON(ctx context.Context, key string, body []byte) (string, error)
}

// StreamSource hands out live-feed subscriptions.
type StreamSource interface {
	Subscribe() (<-chan events.Frame, func())
}

// JackpotService runs the lucky-draw: ticket sales, draws, payouts and round rollover.
// It is the only code that moves player balances for the jackpot.
type JackpotService struct {
	store    Store
	settings *SettingsService
	pub      Publisher
	archive  ProofArchive
	stream   StreamSource
	chart    models.PrizeChart
	log      *zap.Logger

	now     func() time.Time
	newID   func() string
	newSeed func() (string, error)
}

type Option func(*JackpotService)

func WithPrizeChart(c models.PrizeChart) Option { return func(s *JackpotService) { s.chart = c } }
func WithProofArchive(a ProofArchive) Option    { return func(s *JackpotService) { s.archive = a } }
func WithStream(src StreamSource) Option        { return func(s *JackpotService) { s.stream = src } }
func WithClock(now func() time.Time) Option     { return func(s *JackpotService) { s.now = now } }

// WithSeedSource replaces the crypto/rand seed generator.
func WithSeedSource(fn func() (string, error)) Option {
	return func(s *JackpotService) { s.newSeed = fn }
}

func NewJackpotService(store Store, settings *SettingsService, pub Publisher, log *zap.Logger, opts ...Option) *JackpotService {
	s := &JackpotService{
		store:    store,
		settings: settings,
		pub:      pub,
		chart:    models.DefaultPrizeChart(),
		log:      log,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		newSeed:  NewDrawSeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	settings.OnChange(s.settingsChanged)
	return s
}

func (s *JackpotService) PrizeChart() models.PrizeChart { return s.chart }

// --- results ---

type PurchaseResult struct {
	RoundNumber   int64                `json:"round_number"`
	TicketIDs     []string             `json:"ticket_ids"`
	TicketNumbers []int                `json:"ticket_numbers"`
	Source        models.BalanceBucket `json:"balance_source"`
	Balance       decimal.Decimal      `json:"balance"`
	TicketsSold   int                  `json:"tickets_sold"`
	TotalTickets  int                  `json:"total_tickets"`
	Progress      float64              `json:"progress"`
	Draw          *DrawResult          `json:"draw,omitempty"`
}

type DrawResult struct {
	RoundNumber     int64                  `json:"round_number"`
	Seed            string                 `json:"seed"`
	Winners         []models.JackpotWinner `json:"winners"`
	Distribution    DistributionResult     `json:"distribution"`
	Surplus         decimal.Decimal        `json:"surplus"`
	NextRoundNumber int64                  `json:"next_round_number"`
	ProofURL        string                 `json:"proof_url,omitempty"`
}

type DistributionResult struct {
	Completed int             `json:"completed"`
	Failed    int             `json:"failed"`
	Paid      decimal.Decimal `json:"paid"`
}

// --- rounds ---

// GetActiveRound returns the current active or drawing round, opening round max+1 when
// there is none. When two callers race to open the same number the loser re-reads.
func (s *JackpotService) GetActiveRound(ctx context.Context) (*models.JackpotRound, error) {
	for attempt := 0; attempt < 3; attempt++ {
		r, err := s.store.GetCurrentRound(ctx)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("get current round: %w", err)
		}

		r, err = s.openNextRound(ctx, s.store)
		if errors.Is(err, ErrRoundNumberTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.publish(ctx, newRoundEvent(r))
		return r, nil
	}
	return nil, fmt.Errorf("get current round: lost %d consecutive creation races", 3)
}

func (s *JackpotService) openNextRound(ctx context.Context, st Store) (*models.JackpotRound, error) {
	last, err := st.MaxRoundNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("max round number: %w", err)
	}
	r, err := models.NewRound(s.newID(), last+1, s.settings.Current().RoundConfig())
	if err != nil {
		return nil, newError(CodeConfigError, "%v", err)
	}
	if err := st.CreateRound(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("jackpot round opened",
		zap.Int64("round_number", r.RoundNumber),
		zap.String("ticket_price", r.TicketPrice.String()),
		zap.Int("total_tickets", r.TotalTickets),
	)
	metrics.RoundProgress.Set(0)
	return r, nil
}

// --- purchase ---

// errRoundClosed means the round completed between lookup and lock; the caller retries on the next round.
var errRoundClosed = errors.New("round closed")

// PurchaseTickets debits the player and issues quantity tickets in the current round, atomically.
// A purchase that fills the round runs the draw before returning.
func (s *JackpotService) PurchaseTickets(ctx context.Context, userID string, quantity int) (*PurchaseResult, error) {
	res, err := s.purchase(ctx, userID, quantity)
	if err != nil {
		if code := CodeOf(err); code != "" {
			metrics.PurchaseFailures.WithLabelValues(string(code)).Inc()
		}
		return nil, err
	}
	return res, nil
}

func (s *JackpotService) purchase(ctx context.Context, userID string, quantity int) (*PurchaseResult, error) {
	if quantity < 1 {
		return nil, newError(CodeInvalidRequest, "quantity must be at least 1, got %d", quantity)
	}
	if !s.settings.Current().JackpotEnabled {
		return nil, newError(CodePaused, "jackpot is disabled platform-wide")
	}

	var (
		round    *models.JackpotRound
		buyer    *models.Player
		source   models.BalanceBucket
		issued   []models.JackpotTicket
		attempts int
	)
	for {
		current, err := s.GetActiveRound(ctx)
		if err != nil {
			return nil, err
		}

		err = s.store.Transaction(ctx, func(tx Store) error {
			r, err := tx.GetRound(ctx, current.ID, true)
			if err != nil {
				return err
			}
			if r.Status == models.RoundStatusCompleted {
				return errRoundClosed
			}
			if !r.IsActive {
				return newError(CodePaused, "round #%d is paused", r.RoundNumber)
			}
			if r.Status != models.RoundStatusActive {
				return newError(CodeInvalidState, "round #%d is %s", r.RoundNumber, r.Status)
			}
			if quantity > r.RemainingTickets() {
				return newError(CodeCapacityExceeded, "only %d tickets left in round #%d", r.RemainingTickets(), r.RoundNumber)
			}

			p, err := tx.GetPlayer(ctx, userID, true)
			if err != nil {
				return err
			}
			if p.IsBanned {
				return newError(CodeForbidden, "user %s is banned from the jackpot", userID)
			}
			cost := r.TicketPrice.Mul(decimal.NewFromInt(int64(quantity)))
			src := p.TicketSource(cost)
			entry, err := p.Debit(src, cost, models.TxJackpotTicket, fmt.Sprintf("round:%d", r.RoundNumber))
			if errors.Is(err, models.ErrInsufficientBalance) {
				return newError(CodeInsufficientFunds, "%s balance %s is less than %s", src, p.Balance(src).StringFixed(2), cost.StringFixed(2))
			}
			if err != nil {
				return err
			}
			now := s.now()
			entry.ID = s.newID()
			entry.CreatedAt = now
			if err := tx.SavePlayer(ctx, p); err != nil {
				return fmt.Errorf("save player: %w", err)
			}
			if err := tx.AddBalanceTransaction(ctx, &entry); err != nil {
				return fmt.Errorf("record debit: %w", err)
			}

			tickets := make([]models.JackpotTicket, 0, quantity)
			for i := 0; i < quantity; i++ {
				tickets = append(tickets, r.AddTicket(s.newID(), p.ID, p.WalletAddress, now))
			}
			r.CalculateSurplus(s.chart)
			if err := tx.AddTickets(ctx, tickets); err != nil {
				return fmt.Errorf("add tickets: %w", err)
			}
			if err := tx.SaveRound(ctx, r); err != nil {
				return fmt.Errorf("save round: %w", err)
			}

			round, buyer, source, issued = r, p, src, tickets
			return nil
		})
		if errors.Is(err, errRoundClosed) && attempts < 2 {
			attempts++
			continue
		}
		if errors.Is(err, errRoundClosed) {
			return nil, newError(CodeInvalidState, "round closed while purchasing, try again")
		}
		if err != nil {
			return nil, err
		}
		break
	}

	metrics.TicketsSold.Add(float64(quantity))
	metrics.RoundProgress.Set(round.Progress())
	s.log.Info("jackpot tickets purchased",
		zap.String("user_id", userID),
		zap.Int64("round_number", round.RoundNumber),
		zap.Int("quantity", quantity),
		zap.String("source", string(source)),
		zap.Int("tickets_sold", round.TicketsSold),
		zap.Int("total_tickets", round.TotalTickets),
	)

	res := &PurchaseResult{
		RoundNumber:  round.RoundNumber,
		Source:       source,
		Balance:      buyer.Balance(source),
		TicketsSold:  round.TicketsSold,
		TotalTickets: round.TotalTickets,
		Progress:     round.Progress(),
	}
	for _, t := range issued {
		res.TicketIDs = append(res.TicketIDs, t.ID)
		res.TicketNumbers = append(res.TicketNumbers, t.TicketNumber)
	}

	s.publish(ctx, events.Event{Topic: events.TopicTicketSold, Payload: events.TicketSold{
		RoundNumber:  round.RoundNumber,
		TicketsSold:  round.TicketsSold,
		TotalTickets: round.TotalTickets,
		Progress:     round.Progress(),
		MaskedBuyer:  events.MaskWallet(buyer.WalletAddress),
		Quantity:     quantity,
		Timestamp:    s.now(),
	}})

	if round.IsFull() {
		draw, err := s.ExecuteDraw(ctx, round.ID, "system", models.DrawMethodAuto)
		if err != nil {
			// tickets are already paid for; the scheduler retries full rounds
			s.log.Error("auto draw failed after round filled",
				zap.Int64("round_number", round.RoundNumber),
				zap.Error(err),
			)
		} else {
			res.Draw = draw
		}
	}
	return res, nil
}

// --- draw ---

// ExecuteDraw moves an active round through drawing to completed, assigns winners from a fresh
// seed, opens the next round and pays out. Any failure before completion restores the round to
// active with no seed and no winners.
func (s *JackpotService) ExecuteDraw(ctx context.Context, roundID, executedBy string, method models.DrawMethod) (*DrawResult, error) {
	started := s.now()

	err := s.store.Transaction(ctx, func(tx Store) error {
		r, err := tx.GetRound(ctx, roundID, true)
		if err != nil {
			return err
		}
		if r.Status != models.RoundStatusActive {
			return newError(CodeInvalidState, "round #%d is %s, only active rounds can be drawn", r.RoundNumber, r.Status)
		}
		r.Status = models.RoundStatusDrawing
		return tx.SaveRound(ctx, r)
	})
	if err != nil {
		metrics.Draws.WithLabelValues(string(method), "rejected").Inc()
		return nil, err
	}

	var (
		round   *models.JackpotRound
		next    *models.JackpotRound
		tickets []models.JackpotTicket
	)
	err = func() error {
		seed, err := s.newSeed()
		if err != nil {
			return fmt.Errorf("generate seed: %w", err)
		}
		return s.store.Transaction(ctx, func(tx Store) error {
			r, err := tx.GetRound(ctx, roundID, true)
			if err != nil {
				return err
			}
			if r.Status != models.RoundStatusDrawing {
				return newError(CodeInvalidState, "round #%d left drawing state unexpectedly (%s)", r.RoundNumber, r.Status)
			}
			ts, err := tx.ListTickets(ctx, r.ID)
			if err != nil {
				return fmt.Errorf("list tickets: %w", err)
			}

			winners := SelectWinners(ts, seed, s.chart)
			for i := range winners {
				winners[i].ID = s.newID()
			}
			if err := r.SetWinners(winners); err != nil {
				return newError(CodeInvalidState, "%v", err)
			}
			if err := tx.CreateWinners(ctx, r.Winners); err != nil {
				return fmt.Errorf("create winners: %w", err)
			}

			at := s.now()
			r.DrawSeed = &seed
			r.Status = models.RoundStatusCompleted
			r.DrawExecutedAt = &at
			r.DrawExecutedBy = executedBy
			r.DrawMethod = method
			r.CalculateSurplus(s.chart)
			if err := tx.SaveRound(ctx, r); err != nil {
				return fmt.Errorf("save round: %w", err)
			}

			nr, err := s.openNextRound(ctx, tx)
			if err != nil {
				return fmt.Errorf("open next round: %w", err)
			}
			round, next, tickets = r, nr, ts
			return nil
		})
	}()
	if err != nil {
		metrics.Draws.WithLabelValues(string(method), "failed").Inc()
		if rbErr := s.rollbackDraw(context.WithoutCancel(ctx), roundID); rbErr != nil {
			s.log.Error("draw rollback failed", zap.String("round_id", roundID), zap.Error(rbErr))
		}
		s.log.Error("draw failed, round restored to active", zap.String("round_id", roundID), zap.Error(err))
		return nil, err
	}

	metrics.Draws.WithLabelValues(string(method), "completed").Inc()
	metrics.DrawDuration.Observe(s.now().Sub(started).Seconds())
	s.log.Info("jackpot draw completed",
		zap.Int64("round_number", round.RoundNumber),
		zap.String("executed_by", executedBy),
		zap.String("method", string(method)),
		zap.String("seed", *round.DrawSeed),
		zap.Int("tickets", len(tickets)),
		zap.Int("winners", len(round.Winners)),
		zap.String("surplus", round.Surplus.String()),
	)

	dist := s.DistributePrizes(ctx, round)

	evts := []events.Event{drawCompleteEvent(round), newRoundEvent(next)}
	for _, w := range round.Winners {
		evts = append(evts, events.Event{
			Topic:   events.TopicWinnerAnnounced,
			Payload: events.Announcement(round.RoundNumber, w.WalletAddress, w.Prize, w.Rank, w.RankLabel),
			Paced:   true,
		})
	}
	s.publish(ctx, evts...)

	result := &DrawResult{
		RoundNumber:     round.RoundNumber,
		Seed:            *round.DrawSeed,
		Winners:         round.Winners,
		Distribution:    dist,
		Surplus:         round.Surplus,
		NextRoundNumber: next.RoundNumber,
	}
	result.ProofURL = s.archiveProof(ctx, round, tickets)
	return result, nil
}

func (s *JackpotService) rollbackDraw(ctx context.Context, roundID string) error {
	return s.store.Transaction(ctx, func(tx Store) error {
		r, err := tx.GetRound(ctx, roundID, true)
		if err != nil {
			return err
		}
		if r.Status != models.RoundStatusDrawing {
			return nil
		}
		r.Status = models.RoundStatusActive
		r.DrawSeed = nil
		r.Winners = nil
		return tx.SaveRound(ctx, r)
	})
}

// DistributePrizes credits each pending winner's restricted winnings bucket in its own
// transaction. A failed credit marks that winner failed and the batch moves on.
func (s *JackpotService) DistributePrizes(ctx context.Context, round *models.JackpotRound) DistributionResult {
	res := DistributionResult{Paid: decimal.Zero}
	winners := round.Winners
	if len(winners) == 0 {
		ws, err := s.store.ListWinners(ctx, round.ID)
		if err != nil {
			s.log.Error("list winners for distribution", zap.Int64("round_number", round.RoundNumber), zap.Error(err))
			return res
		}
		winners = ws
	}

	for i := range winners {
		w := &winners[i]
		if w.Status == models.WinnerStatusCompleted {
			continue
		}
		err := s.store.Transaction(ctx, func(tx Store) error {
			p, err := tx.GetPlayer(ctx, w.UserID, true)
			if err != nil {
				return err
			}
			entry := p.Credit(models.BucketJackpotWinnings, w.Prize, models.TxJackpotPrize,
				fmt.Sprintf("round:%d:rank:%d", round.RoundNumber, w.Rank))
			now := s.now()
			entry.ID = s.newID()
			entry.CreatedAt = now
			if err := tx.SavePlayer(ctx, p); err != nil {
				return err
			}
			if err := tx.AddBalanceTransaction(ctx, &entry); err != nil {
				return err
			}
			paid := *w
			paid.Status = models.WinnerStatusCompleted
			paid.ClaimedAt = &now
			paid.FailureReason = ""
			return tx.SaveWinner(ctx, &paid)
		})
		if err != nil {
			w.Status = models.WinnerStatusFailed
			w.ClaimedAt = nil
			w.FailureReason = err.Error()
			if saveErr := s.store.SaveWinner(ctx, w); saveErr != nil {
				s.log.Error("mark winner failed", zap.String("winner_id", w.ID), zap.Error(saveErr))
			}
			s.log.Warn("prize distribution failed",
				zap.Int64("round_number", round.RoundNumber),
				zap.Int("rank", w.Rank),
				zap.String("user_id", w.UserID),
				zap.Error(err),
			)
			metrics.PrizePayouts.WithLabelValues("failed").Inc()
			res.Failed++
			continue
		}
		now := s.now()
		w.Status = models.WinnerStatusCompleted
		w.ClaimedAt = &now
		metrics.PrizePayouts.WithLabelValues("completed").Inc()
		res.Completed++
		res.Paid = res.Paid.Add(w.Prize)
	}
	round.Winners = winners

	s.log.Info("jackpot prizes distributed",
		zap.Int64("round_number", round.RoundNumber),
		zap.Int("completed", res.Completed),
		zap.Int("failed", res.Failed),
		zap.String("paid", res.Paid.String()),
	)
	return res
}

// --- admin ---

// UpdateParameters changes price and/or capacity of a round that has not sold anything yet.
func (s *JackpotService) UpdateParameters(ctx context.Context, roundID string, price *decimal.Decimal, capacity *int, updatedBy string) (*models.JackpotRound, error) {
	var round *models.JackpotRound
	err := s.store.Transaction(ctx, func(tx Store) error {
		r, err := tx.GetRound(ctx, roundID, true)
		if err != nil {
			return err
		}
		if r.TicketsSold > 0 {
			return newError(CodeImmutableParameters, "round #%d already sold %d tickets", r.RoundNumber, r.TicketsSold)
		}
		if r.Status != models.RoundStatusActive {
			return newError(CodeInvalidState, "round #%d is %s", r.RoundNumber, r.Status)
		}

		cfg := models.RoundConfig{TicketPrice: r.TicketPrice, TotalTickets: r.TotalTickets}
		if price != nil {
			cfg.TicketPrice = *price
		}
		if capacity != nil {
			cfg.TotalTickets = *capacity
		}
		if err := cfg.Validate(); err != nil {
			return newError(CodeConfigError, "%v", err)
		}

		now := s.now()
		var changes []models.ParameterChange
		if !cfg.TicketPrice.Equal(r.TicketPrice) {
			changes = append(changes, s.auditEntry(r.ID, "ticketPrice", r.TicketPrice.String(), cfg.TicketPrice.String(), updatedBy, now))
			r.TicketPrice = cfg.TicketPrice
		}
		if cfg.TotalTickets != r.TotalTickets {
			changes = append(changes, s.auditEntry(r.ID, "totalTickets", fmt.Sprint(r.TotalTickets), fmt.Sprint(cfg.TotalTickets), updatedBy, now))
			r.TotalTickets = cfg.TotalTickets
		}
		if len(changes) == 0 {
			round = r
			return nil
		}
		r.CalculateSurplus(s.chart)
		if err := tx.AddParameterChanges(ctx, changes); err != nil {
			return fmt.Errorf("record parameter changes: %w", err)
		}
		if err := tx.SaveRound(ctx, r); err != nil {
			return fmt.Errorf("save round: %w", err)
		}
		r.ParameterChanges = changes
		round = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("jackpot round parameters updated",
		zap.Int64("round_number", round.RoundNumber),
		zap.String("ticket_price", round.TicketPrice.String()),
		zap.Int("total_tickets", round.TotalTickets),
		zap.String("updated_by", updatedBy),
	)
	s.publish(ctx, statusUpdateEvent(round))
	return round, nil
}

func (s *JackpotService) auditEntry(roundID, field, oldValue, newValue, by string, at time.Time) models.ParameterChange {
	return models.ParameterChange{
		ID:        s.newID(),
		RoundID:   roundID,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		ChangedBy: by,
		Timestamp: at,
	}
}

// TogglePause flips the round's sales flag. Lifecycle status is untouched.
func (s *JackpotService) TogglePause(ctx context.Context, roundID, by string) (*models.JackpotRound, error) {
	var round *models.JackpotRound
	err := s.store.Transaction(ctx, func(tx Store) error {
		r, err := tx.GetRound(ctx, roundID, true)
		if err != nil {
			return err
		}
		entry := s.auditEntry(r.ID, "isActive", fmt.Sprint(r.IsActive), fmt.Sprint(!r.IsActive), by, s.now())
		r.IsActive = !r.IsActive
		if err := tx.AddParameterChanges(ctx, []models.ParameterChange{entry}); err != nil {
			return err
		}
		if err := tx.SaveRound(ctx, r); err != nil {
			return err
		}
		round = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("jackpot round pause toggled",
		zap.Int64("round_number", round.RoundNumber),
		zap.Bool("is_active", round.IsActive),
		zap.String("by", by),
	)
	s.publish(ctx, statusUpdateEvent(round))
	return round, nil
}

// WithdrawSurplus marks a completed round's surplus as taken and returns the amount, zero when
// the round ran a deficit. Works once.
func (s *JackpotService) WithdrawSurplus(ctx context.Context, roundID, by string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	var number int64
	err := s.store.Transaction(ctx, func(tx Store) error {
		r, err := tx.GetRound(ctx, roundID, true)
		if err != nil {
			return err
		}
		if r.Status != models.RoundStatusCompleted {
			return newError(CodeInvalidState, "round #%d is %s, surplus is only available after the draw", r.RoundNumber, r.Status)
		}
		if r.SurplusWithdrawn {
			return newError(CodeAlreadyWithdrawn, "surplus of round #%d was withdrawn by %s", r.RoundNumber, r.SurplusWithdrawnBy)
		}
		at := s.now()
		r.SurplusWithdrawn = true
		r.SurplusWithdrawnAt = &at
		r.SurplusWithdrawnBy = by
		if err := tx.SaveRound(ctx, r); err != nil {
			return err
		}
		// a round that paid out more than it took in still closes its books, with nothing to take
		amount, number = decimal.Max(r.Surplus, decimal.Zero), r.RoundNumber
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.log.Info("jackpot surplus withdrawn",
		zap.Int64("round_number", number),
		zap.String("amount", amount.String()),
		zap.String("by", by),
	)
	return amount, nil
}

// --- reads ---

type WinnerView struct {
	MaskedWallet string          `json:"masked_wallet"`
	Prize        decimal.Decimal `json:"prize"`
	Rank         int             `json:"rank"`
	RankLabel    string          `json:"rank_label"`
}

type RoundStatusView struct {
	RoundID          string             `json:"round_id"`
	RoundNumber      int64              `json:"round_number"`
	TicketsSold      int                `json:"tickets_sold"`
	TotalTickets     int                `json:"total_tickets"`
	TicketPrice      decimal.Decimal    `json:"ticket_price"`
	TotalPrizePool   decimal.Decimal    `json:"total_prize_pool"`
	Progress         float64            `json:"progress"`
	IsFull           bool               `json:"is_full"`
	IsActive         bool               `json:"is_active"`
	Status           models.RoundStatus `json:"status"`
	PrizeChart       models.PrizeChart  `json:"prize_chart"`
	TotalWinnerSlots int                `json:"total_winner_slots"`
	WinChance        string             `json:"win_chance"`
	RecentWinners    []WinnerView       `json:"recent_winners"`
}

// WinChance is the nominal "1 in N" odds of a ticket winning anything in a full round.
func WinChance(totalTickets, slots int) string {
	if slots <= 0 {
		return "0"
	}
	n := int(math.Ceil(float64(totalTickets) / float64(slots)))
	if n < 1 {
		n = 1
	}
	return fmt.Sprintf("1 in %d", n)
}

// GetRoundStatus is the public snapshot of the current round.
func (s *JackpotService) GetRoundStatus(ctx context.Context) (*RoundStatusView, error) {
	r, err := s.GetActiveRound(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.RecentWinners(ctx, 3)
	if err != nil {
		return nil, fmt.Errorf("recent winners: %w", err)
	}
	view := &RoundStatusView{
		RoundID:          r.ID,
		RoundNumber:      r.RoundNumber,
		TicketsSold:      r.TicketsSold,
		TotalTickets:     r.TotalTickets,
		TicketPrice:      r.TicketPrice,
		TotalPrizePool:   r.TotalPrizePool,
		Progress:         r.Progress(),
		IsFull:           r.IsFull(),
		IsActive:         r.IsActive && s.settings.Current().JackpotEnabled,
		Status:           r.Status,
		PrizeChart:       s.chart,
		TotalWinnerSlots: s.chart.TotalWinnerSlots(),
		WinChance:        WinChance(r.TotalTickets, s.chart.TotalWinnerSlots()),
		RecentWinners:    make([]WinnerView, 0, len(recent)),
	}
	for _, w := range recent {
		view.RecentWinners = append(view.RecentWinners, WinnerView{
			MaskedWallet: events.MaskWallet(w.WalletAddress),
			Prize:        w.Prize,
			Rank:         w.Rank,
			RankLabel:    w.RankLabel,
		})
	}
	return view, nil
}

type VerificationResult struct {
	RoundNumber       int64  `json:"round_number"`
	Seed              string `json:"seed"`
	Tickets           int    `json:"tickets"`
	Winners           int    `json:"winners"`
	Match             bool   `json:"match"`
	FirstMismatchRank int    `json:"first_mismatch_rank,omitempty"`
}

// VerifyRound replays winner selection from the stored seed and tickets and compares it
// with the recorded winners.
func (s *JackpotService) VerifyRound(ctx context.Context, number int64) (*VerificationResult, error) {
	r, err := s.store.GetRoundByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RoundStatusCompleted || r.DrawSeed == nil {
		return nil, newError(CodeInvalidState, "round #%d has not been drawn", number)
	}
	tickets, err := s.store.ListTickets(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	stored, err := s.store.ListWinners(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	replayed := SelectWinners(tickets, *r.DrawSeed, s.chart)
	ok, rank := sameDraw(replayed, stored)
	return &VerificationResult{
		RoundNumber:       r.RoundNumber,
		Seed:              *r.DrawSeed,
		Tickets:           len(tickets),
		Winners:           len(stored),
		Match:             ok,
		FirstMismatchRank: rank,
	}, nil
}

// ListRounds pages through completed rounds, newest first.
func (s *JackpotService) ListRounds(ctx context.Context, limit, offset int) ([]models.JackpotRound, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListRounds(ctx, limit, offset)
}

// GetRoundByNumber returns a round with its winners.
func (s *JackpotService) GetRoundByNumber(ctx context.Context, number int64) (*models.JackpotRound, error) {
	r, err := s.store.GetRoundByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if r.Status == models.RoundStatusCompleted {
		if r.Winners, err = s.store.ListWinners(ctx, r.ID); err != nil {
			return nil, fmt.Errorf("list winners: %w", err)
		}
	}
	return r, nil
}

// ListUserTickets returns a user's tickets in round number, or in the current round when number is 0.
func (s *JackpotService) ListUserTickets(ctx context.Context, userID string, number int64) ([]models.JackpotTicket, *models.JackpotRound, error) {
	var (
		r   *models.JackpotRound
		err error
	)
	if number > 0 {
		r, err = s.store.GetRoundByNumber(ctx, number)
	} else {
		r, err = s.GetActiveRound(ctx)
	}
	if err != nil {
		return nil, nil, err
	}
	tickets, err := s.store.ListUserTickets(ctx, userID, r.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list user tickets: %w", err)
	}
	return tickets, r, nil
}

// --- events ---

func (s *JackpotService) publish(ctx context.Context, evts ...events.Event) {
	if s.pub == nil || len(evts) == 0 {
		return
	}
	if err := s.pub.Publish(ctx, evts...); err != nil {
		s.log.Warn("publish jackpot events", zap.Int("count", len(evts)), zap.Error(err))
	}
}

func (s *JackpotService) settingsChanged(prev, next models.PlatformSettings) {
	if prev.JackpotEnabled == next.JackpotEnabled {
		return
	}
	ctx := context.Background()
	r, err := s.store.GetCurrentRound(ctx)
	if err != nil {
		return
	}
	ev := statusUpdateEvent(r)
	su := ev.Payload.(events.StatusUpdate)
	su.IsActive = r.IsActive && next.JackpotEnabled
	ev.Payload = su
	s.publish(ctx, ev)
}

func statusUpdateEvent(r *models.JackpotRound) events.Event {
	return events.Event{Topic: events.TopicStatusUpdate, Payload: events.StatusUpdate{
		RoundNumber:  r.RoundNumber,
		TicketsSold:  r.TicketsSold,
		TotalTickets: r.TotalTickets,
		TicketPrice:  r.TicketPrice,
		IsActive:     r.IsActive,
		Status:       string(r.Status),
		Progress:     r.Progress(),
	}}
}

func newRoundEvent(r *models.JackpotRound) events.Event {
	return events.Event{Topic: events.TopicNewRound, Payload: events.NewRound{
		RoundNumber:    r.RoundNumber,
		TicketPrice:    r.TicketPrice,
		TotalTickets:   r.TotalTickets,
		TotalPrizePool: r.TotalPrizePool,
	}}
}

func drawCompleteEvent(r *models.JackpotRound) events.Event {
	top := make([]events.WinnerSummary, 0, 3)
	for _, w := range r.Winners {
		if len(top) == 3 {
			break
		}
		top = append(top, events.WinnerSummary{
			MaskedWallet: events.MaskWallet(w.WalletAddress),
			Prize:        w.Prize,
			Rank:         w.Rank,
		})
	}
	return events.Event{Topic: events.TopicDrawComplete, Payload: events.DrawComplete{
		RoundNumber:  r.RoundNumber,
		TotalWinners: len(r.Winners),
		Top3:         top,
	}}
}

// --- proof archive ---

type drawProof struct {
	RoundNumber int64           `json:"round_number"`
	Seed        string          `json:"seed"`
	ExecutedAt  *time.Time      `json:"executed_at"`
	ExecutedBy  string          `json:"executed_by"`
	Method      string          `json:"method"`
	TicketPrice decimal.Decimal `json:"ticket_price"`
	Tickets     []proofTicket   `json:"tickets"`
	Winners     []proofWinner   `json:"winners"`
}

type proofTicket struct {
	Number int    `json:"n"`
	Wallet string `json:"wallet"`
}

type proofWinner struct {
	Rank   int             `json:"rank"`
	Ticket int             `json:"ticket"`
	Prize  decimal.Decimal `json:"prize"`
}

// archiveProof uploads the seed, ordered ticket list and winners so anyone can replay the draw.
// Upload errors are logged only; the draw is already final.
func (s *JackpotService) archiveProof(ctx context.Context, r *models.JackpotRound, tickets []models.JackpotTicket) string {
	if s.archive == nil {
		return ""
	}
	proof := drawProof{
		RoundNumber: r.RoundNumber,
		Seed:        *r.DrawSeed,
		ExecutedAt:  r.DrawExecutedAt,
		ExecutedBy:  r.DrawExecutedBy,
		Method:      string(r.DrawMethod),
		TicketPrice: r.TicketPrice,
		Tickets:     make([]proofTicket, 0, len(tickets)),
		Winners:     make([]proofWinner, 0, len(r.Winners)),
	}
	for _, t := range tickets {
		proof.Tickets = append(proof.Tickets, proofTicket{Number: t.TicketNumber, Wallet: events.MaskWallet(t.WalletAddress)})
	}
	for _, w := range r.Winners {
		proof.Winners = append(proof.Winners, proofWinner{Rank: w.Rank, Ticket: w.TicketNumber, Prize: w.Prize})
	}
	body, err := json.Marshal(proof)
	if err != nil {
		s.log.Error("marshal draw proof", zap.Int64("round_number", r.RoundNumber), zap.Error(err))
		return ""
	}
	url, err := s.archive.UploadJSON(ctx, fmt.Sprintf("jackpot/proofs/round-%06d.json", r.RoundNumber), body)
	if err != nil {
		s.log.Warn("archive draw proof", zap.Int64("round_number", r.RoundNumber), zap.Error(err))
		return ""
	}
	s.log.Info("draw proof archived", zap.Int64("round_number", r.RoundNumber), zap.String("url", url))
	return url
}
