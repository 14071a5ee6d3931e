package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxJackpotTicket TransactionType = "jackpot_ticket"
	TxJackpotPrize  TransactionType = "jackpot_prize"
)

// BalanceTransaction is the append-only audit row for every balance change the jackpot makes.
// Table name: balance_transactions
type BalanceTransaction struct {
	ID            string          `gorm:"primaryKey;type:uuid;not null" json:"id"`
	PlayerID      string          `gorm:"type:uuid;not null;index" json:"player_id"`
	Bucket        BalanceBucket   `gorm:"type:varchar(32);not null" json:"bucket"`
	Type          TransactionType `gorm:"type:varchar(32);not null;index" json:"type"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"` // signed
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"balance_after"`
	Reference     string          `gorm:"type:varchar(128);index" json:"reference"` // round:<n> or round:<n>:rank:<r>
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}
