package services

import (
	"context"
	"errors"

	"jackpot-service/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrRoundNumberTaken is returned by CreateRound when another writer already opened that round number.
	ErrRoundNumberTaken = errors.New("round number already exists")
	// ErrSettingsConflict is returned when a settings update lost a version race.
	ErrSettingsConflict = errors.New("platform settings were modified concurrently")
)

// Store is the persistence boundary of the jackpot engine.
// Lookups that find nothing return an error matching ErrNotFound.
type Store interface {
	// Transaction runs fn against a transaction-scoped Store. A returned error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// GetRound loads a round without its tickets or winners. forUpdate takes the row lock
	// that serializes purchases and draws on that round.
	GetRound(ctx context.Context, id string, forUpdate bool) (*models.JackpotRound, error)
	GetRoundByNumber(ctx context.Context, number int64) (*models.JackpotRound, error)
	// GetCurrentRound returns the highest-numbered active or drawing round.
	GetCurrentRound(ctx context.Context) (*models.JackpotRound, error)
	MaxRoundNumber(ctx context.Context) (int64, error)
	CreateRound(ctx context.Context, r *models.JackpotRound) error
	// SaveRound persists the round's own columns and bumps Version.
	SaveRound(ctx context.Context, r *models.JackpotRound) error
	// ListRounds returns completed rounds, newest first, and the total count.
	ListRounds(ctx context.Context, limit, offset int) ([]models.JackpotRound, int64, error)

	AddTickets(ctx context.Context, tickets []models.JackpotTicket) error
	// ListTickets returns a round's tickets ordered by ticket number.
	ListTickets(ctx context.Context, roundID string) ([]models.JackpotTicket, error)
	// ListUserTickets returns a user's tickets, optionally limited to one round.
	ListUserTickets(ctx context.Context, userID, roundID string) ([]models.JackpotTicket, error)

	CreateWinners(ctx context.Context, winners []models.JackpotWinner) error
	// ListWinners returns a round's winners ordered by rank.
	ListWinners(ctx context.Context, roundID string) ([]models.JackpotWinner, error)
	SaveWinner(ctx context.Context, w *models.JackpotWinner) error
	// RecentWinners returns the best-ranked winners of the most recent completed round.
	RecentWinners(ctx context.Context, limit int) ([]models.JackpotWinner, error)

	AddParameterChanges(ctx context.Context, changes []models.ParameterChange) error

	GetPlayer(ctx context.Context, id string, forUpdate bool) (*models.Player, error)
	SavePlayer(ctx context.Context, p *models.Player) error
	AddBalanceTransaction(ctx context.Context, tx *models.BalanceTransaction) error
	// ListAutoSpendPlayers returns opted-in players whose draw wallet holds at least minBalance.
	ListAutoSpendPlayers(ctx context.Context, minBalance decimal.Decimal) ([]models.Player, error)

	GetSettings(ctx context.Context) (*models.PlatformSettings, error)
	CreateSettings(ctx context.Context, s *models.PlatformSettings) error
	// UpdateSettings writes s only if the stored version equals expectedVersion.
	UpdateSettings(ctx context.Context, s *models.PlatformSettings, expectedVersion int64) error
}
