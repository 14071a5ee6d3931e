package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jackpot-service/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the Postgres-backed Store. Open the *gorm.DB with TranslateError so unique
// violations surface as gorm.ErrDuplicatedKey.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// AutoMigrate creates or updates every jackpot table.
func (s *GormStore) AutoMigrate() error {
	return s.DB.AutoMigrate(
		&models.JackpotRound{},
		&models.JackpotTicket{},
		&models.JackpotWinner{},
		&models.ParameterChange{},
		&models.Player{},
		&models.BalanceTransaction{},
		&models.PlatformSettings{},
	)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{DB: tx})
	})
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(CodeNotFound, "%s not found", what)
	}
	return err
}

func (s *GormStore) GetRound(ctx context.Context, id string, forUpdate bool) (*models.JackpotRound, error) {
	q := s.DB.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var r models.JackpotRound
	if err := q.Where("id = ?", id).First(&r).Error; err != nil {
		return nil, notFound(err, "round")
	}
	return &r, nil
}

func (s *GormStore) GetRoundByNumber(ctx context.Context, number int64) (*models.JackpotRound, error) {
	var r models.JackpotRound
	if err := s.DB.WithContext(ctx).Where("round_number = ?", number).First(&r).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("round #%d", number))
	}
	return &r, nil
}

func (s *GormStore) GetCurrentRound(ctx context.Context) (*models.JackpotRound, error) {
	var r models.JackpotRound
	err := s.DB.WithContext(ctx).
		Where("status IN ?", []models.RoundStatus{models.RoundStatusActive, models.RoundStatusDrawing}).
		Order("round_number DESC").
		First(&r).Error
	if err != nil {
		return nil, notFound(err, "current round")
	}
	return &r, nil
}

func (s *GormStore) MaxRoundNumber(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.JackpotRound{}).
		Select("COALESCE(MAX(round_number), 0)").
		Scan(&n).Error
	return n, err
}

func (s *GormStore) CreateRound(ctx context.Context, r *models.JackpotRound) error {
	err := s.DB.WithContext(ctx).Omit(clause.Associations).Create(r).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: #%d", ErrRoundNumberTaken, r.RoundNumber)
	}
	return err
}

func (s *GormStore) SaveRound(ctx context.Context, r *models.JackpotRound) error {
	r.Version++
	return s.DB.WithContext(ctx).Omit(clause.Associations).Save(r).Error
}

func (s *GormStore) ListRounds(ctx context.Context, limit, offset int) ([]models.JackpotRound, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.JackpotRound{}).Where("status = ?", models.RoundStatusCompleted)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rounds []models.JackpotRound
	if err := q.Order("round_number DESC").Limit(limit).Offset(offset).Find(&rounds).Error; err != nil {
		return nil, 0, err
	}
	return rounds, total, nil
}

func (s *GormStore) AddTickets(ctx context.Context, tickets []models.JackpotTicket) error {
	if len(tickets) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).CreateInBatches(tickets, 500).Error
}

func (s *GormStore) ListTickets(ctx context.Context, roundID string) ([]models.JackpotTicket, error) {
	var tickets []models.JackpotTicket
	err := s.DB.WithContext(ctx).Where("round_id = ?", roundID).Order("ticket_number ASC").Find(&tickets).Error
	return tickets, err
}

func (s *GormStore) ListUserTickets(ctx context.Context, userID, roundID string) ([]models.JackpotTicket, error) {
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if roundID != "" {
		q = q.Where("round_id = ?", roundID)
	}
	var tickets []models.JackpotTicket
	err := q.Order("purchased_at DESC, ticket_number DESC").Find(&tickets).Error
	return tickets, err
}

func (s *GormStore) CreateWinners(ctx context.Context, winners []models.JackpotWinner) error {
	if len(winners) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).CreateInBatches(winners, 500).Error
}

func (s *GormStore) ListWinners(ctx context.Context, roundID string) ([]models.JackpotWinner, error) {
	var winners []models.JackpotWinner
	err := s.DB.WithContext(ctx).Where("round_id = ?", roundID).Order("rank ASC").Find(&winners).Error
	return winners, err
}

func (s *GormStore) SaveWinner(ctx context.Context, w *models.JackpotWinner) error {
	return s.DB.WithContext(ctx).Save(w).Error
}

func (s *GormStore) RecentWinners(ctx context.Context, limit int) ([]models.JackpotWinner, error) {
	var last models.JackpotRound
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.RoundStatusCompleted).
		Order("round_number DESC").
		First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var winners []models.JackpotWinner
	err = s.DB.WithContext(ctx).Where("round_id = ?", last.ID).Order("rank ASC").Limit(limit).Find(&winners).Error
	return winners, err
}

func (s *GormStore) AddParameterChanges(ctx context.Context, changes []models.ParameterChange) error {
	if len(changes) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Create(&changes).Error
}

func (s *GormStore) GetPlayer(ctx context.Context, id string, forUpdate bool) (*models.Player, error) {
	q := s.DB.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.Player
	if err := q.Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &p, nil
}

func (s *GormStore) SavePlayer(ctx context.Context, p *models.Player) error {
	return s.DB.WithContext(ctx).Model(p).Select("lucky_draw_wallet", "game_balance", "jackpot_winnings", "version").Updates(p).Error
}

func (s *GormStore) AddBalanceTransaction(ctx context.Context, tx *models.BalanceTransaction) error {
	return s.DB.WithContext(ctx).Create(tx).Error
}

func (s *GormStore) ListAutoSpendPlayers(ctx context.Context, minBalance decimal.Decimal) ([]models.Player, error) {
	var players []models.Player
	err := s.DB.WithContext(ctx).
		Where("auto_jackpot = ? AND is_banned = ? AND lucky_draw_wallet >= ?", true, false, minBalance).
		Order("created_at ASC").
		Find(&players).Error
	return players, err
}

func (s *GormStore) GetSettings(ctx context.Context) (*models.PlatformSettings, error) {
	var ps models.PlatformSettings
	if err := s.DB.WithContext(ctx).Where("id = ?", models.PlatformSettingsID).First(&ps).Error; err != nil {
		return nil, notFound(err, "platform settings")
	}
	return &ps, nil
}

func (s *GormStore) CreateSettings(ctx context.Context, ps *models.PlatformSettings) error {
	ps.ID = models.PlatformSettingsID
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ps).Error
}

func (s *GormStore) UpdateSettings(ctx context.Context, ps *models.PlatformSettings, expectedVersion int64) error {
	res := s.DB.WithContext(ctx).Model(&models.PlatformSettings{}).
		Where("id = ? AND version = ?", models.PlatformSettingsID, expectedVersion).
		Updates(map[string]any{
			"jackpot_enabled":       ps.JackpotEnabled,
			"auto_spend_enabled":    ps.AutoSpendEnabled,
			"default_ticket_price":  ps.DefaultTicketPrice,
			"default_total_tickets": ps.DefaultTotalTickets,
			"updated_by":            ps.UpdatedBy,
			"version":               expectedVersion + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSettingsConflict
	}
	ps.ID = models.PlatformSettingsID
	ps.Version = expectedVersion + 1
	return nil
}

// UpsertPlayerProfiles inserts or refreshes profile columns from the account service.
// Balances and version stay as they are for existing rows.
func (s *GormStore) UpsertPlayerProfiles(ctx context.Context, players []models.Player) error {
	if len(players) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "wallet_address", "auto_jackpot", "is_banned", "updated_at",
		}),
	}).CreateInBatches(&players, 500).Error
}

// LastPlayerSync is the newest profile update seen so far, zero when the table is empty.
func (s *GormStore) LastPlayerSync(ctx context.Context) (time.Time, error) {
	var last sql.NullTime
	err := s.DB.WithContext(ctx).Model(&models.Player{}).Select("MAX(updated_at)").Scan(&last).Error
	if err != nil || !last.Valid {
		return time.Time{}, err
	}
	return last.Time, nil
}
