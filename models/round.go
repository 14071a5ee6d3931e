package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RoundStatus is the lifecycle state of a jackpot round.
type RoundStatus string

const (
	RoundStatusActive    RoundStatus = "active"
	RoundStatusDrawing   RoundStatus = "drawing"
	RoundStatusCompleted RoundStatus = "completed"
)

// DrawMethod records what triggered a draw.
type DrawMethod string

const (
	DrawMethodAuto   DrawMethod = "auto"   // capacity reached
	DrawMethodManual DrawMethod = "manual" // admin action
)

// WinnerStatus tracks prize distribution per winner.
type WinnerStatus string

const (
	WinnerStatusPending   WinnerStatus = "pending"
	WinnerStatusCompleted WinnerStatus = "completed"
	WinnerStatusFailed    WinnerStatus = "failed"
)

var (
	// ErrInvalidRoundConfig is returned when a round would be created with a non-positive price or capacity.
	ErrInvalidRoundConfig = errors.New("ticket price and total tickets must be positive")
	// ErrRoundNotDrawing guards SetWinners.
	ErrRoundNotDrawing = errors.New("winners can only be set while the round is drawing")
)

// RoundConfig holds the parameters a new round is opened with.
type RoundConfig struct {
	TicketPrice  decimal.Decimal
	TotalTickets int
}

// Validate rejects non-positive price or capacity.
func (c RoundConfig) Validate() error {
	if c.TotalTickets <= 0 || !c.TicketPrice.IsPositive() {
		return fmt.Errorf("%w (price=%s, capacity=%d)", ErrInvalidRoundConfig, c.TicketPrice.String(), c.TotalTickets)
	}
	return nil
}

// JackpotRound is one capacity-bounded lucky-draw cycle.
// Completed rounds are never deleted; they are the historical record.
type JackpotRound struct {
	ID               string          `gorm:"primaryKey;type:uuid" json:"id"`
	RoundNumber      int64           `gorm:"uniqueIndex;not null" json:"round_number"`
	TicketPrice      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"ticket_price"`
	TotalTickets     int             `gorm:"not null" json:"total_tickets"`
	TicketsSold      int             `gorm:"not null;default:0" json:"tickets_sold"`
	NextTicketNumber int             `gorm:"not null;default:1" json:"-"`
	TotalPrizePool   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_prize_pool"`
	Status           RoundStatus     `gorm:"type:varchar(16);not null;index" json:"status"`
	IsActive         bool            `gorm:"not null;default:true" json:"is_active"`

	DrawSeed       *string    `gorm:"type:varchar(128)" json:"draw_seed,omitempty"`
	DrawExecutedAt *time.Time `json:"draw_executed_at,omitempty"`
	DrawExecutedBy string     `json:"draw_executed_by,omitempty"`
	DrawMethod     DrawMethod `gorm:"type:varchar(16)" json:"draw_method,omitempty"`

	Surplus            decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"surplus"`
	SurplusWithdrawn   bool            `gorm:"not null;default:false" json:"surplus_withdrawn"`
	SurplusWithdrawnAt *time.Time      `json:"surplus_withdrawn_at,omitempty"`
	SurplusWithdrawnBy string          `json:"surplus_withdrawn_by,omitempty"`

	Version int64 `gorm:"not null;default:1" json:"version"`

	Tickets          []JackpotTicket   `gorm:"foreignKey:RoundID" json:"tickets,omitempty"`
	Winners          []JackpotWinner   `gorm:"foreignKey:RoundID" json:"winners,omitempty"`
	ParameterChanges []ParameterChange `gorm:"foreignKey:RoundID" json:"parameter_changes,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// JackpotTicket is one paid slot in a round. TicketNumber is sequential within the round and never reused.
type JackpotTicket struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	RoundID       string    `gorm:"type:uuid;not null;uniqueIndex:idx_round_ticket" json:"round_id"`
	TicketNumber  int       `gorm:"not null;uniqueIndex:idx_round_ticket" json:"ticket_number"`
	UserID        string    `gorm:"index;not null" json:"user_id"`
	WalletAddress string    `gorm:"type:varchar(128)" json:"wallet_address"`
	PurchasedAt   time.Time `gorm:"not null" json:"purchased_at"`
}

// JackpotWinner is a ticket that landed in a prize-chart slot.
type JackpotWinner struct {
	ID            string          `gorm:"primaryKey;type:uuid" json:"id"`
	RoundID       string          `gorm:"type:uuid;not null;index" json:"round_id"`
	UserID        string          `gorm:"index;not null" json:"user_id"`
	WalletAddress string          `gorm:"type:varchar(128)" json:"wallet_address"`
	TicketNumber  int             `gorm:"not null" json:"ticket_number"`
	Rank          int             `gorm:"not null" json:"rank"`
	RankLabel     string          `gorm:"type:varchar(32)" json:"rank_label"`
	Prize         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"prize"`
	Status        WinnerStatus    `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// ParameterChange is one audited edit of price or capacity.
type ParameterChange struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	RoundID   string    `gorm:"type:uuid;not null;index" json:"round_id"`
	Field     string    `gorm:"type:varchar(32);not null" json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	ChangedBy string    `json:"changed_by"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

// NewRound opens a round in the active state. The caller assigns RoundNumber = max + 1.
func NewRound(id string, number int64, cfg RoundConfig) (*JackpotRound, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &JackpotRound{
		ID:               id,
		RoundNumber:      number,
		TicketPrice:      cfg.TicketPrice,
		TotalTickets:     cfg.TotalTickets,
		NextTicketNumber: 1,
		TotalPrizePool:   decimal.Zero,
		Surplus:          decimal.Zero,
		Status:           RoundStatusActive,
		IsActive:         true,
		Version:          1,
	}, nil
}

// AddTicket appends one ticket and bumps the counters. Capacity is enforced by the caller.
func (r *JackpotRound) AddTicket(ticketID, userID, walletAddress string, at time.Time) JackpotTicket {
	if r.NextTicketNumber < 1 {
		r.NextTicketNumber = 1
	}
	t := JackpotTicket{
		ID:            ticketID,
		RoundID:       r.ID,
		TicketNumber:  r.NextTicketNumber,
		UserID:        userID,
		WalletAddress: walletAddress,
		PurchasedAt:   at,
	}
	r.NextTicketNumber++
	r.TicketsSold++
	r.Tickets = append(r.Tickets, t)
	r.TotalPrizePool = r.TicketPrice.Mul(decimal.NewFromInt(int64(r.TicketsSold)))
	return t
}

// CalculateSurplus recomputes the pool and surplus. Before a draw the worst-case payout for the
// tickets sold so far is reserved; once winners exist the actual awarded amounts are used.
func (r *JackpotRound) CalculateSurplus(chart PrizeChart) {
	r.TotalPrizePool = r.TicketPrice.Mul(decimal.NewFromInt(int64(r.TicketsSold)))

	payout := decimal.Zero
	if len(r.Winners) > 0 {
		for _, w := range r.Winners {
			payout = payout.Add(w.Prize)
		}
	} else {
		payout = chart.PayoutFor(r.TicketsSold)
	}
	r.Surplus = r.TotalPrizePool.Sub(payout)
}

// SetWinners assigns the draw result. Only legal while drawing.
func (r *JackpotRound) SetWinners(winners []JackpotWinner) error {
	if r.Status != RoundStatusDrawing {
		return fmt.Errorf("%w (round %d is %s)", ErrRoundNotDrawing, r.RoundNumber, r.Status)
	}
	for i := range winners {
		winners[i].RoundID = r.ID
	}
	r.Winners = winners
	return nil
}

// IsCurrent reports whether the round is the game's open (or mid-draw) round.
func (r *JackpotRound) IsCurrent() bool {
	return r.Status == RoundStatusActive || r.Status == RoundStatusDrawing
}

// RemainingTickets is the unsold capacity.
func (r *JackpotRound) RemainingTickets() int {
	if r.TicketsSold >= r.TotalTickets {
		return 0
	}
	return r.TotalTickets - r.TicketsSold
}

func (r *JackpotRound) IsFull() bool {
	return r.TicketsSold >= r.TotalTickets
}

// Progress is ticketsSold / totalTickets in [0,1].
func (r *JackpotRound) Progress() float64 {
	if r.TotalTickets <= 0 {
		return 0
	}
	return float64(r.TicketsSold) / float64(r.TotalTickets)
}
