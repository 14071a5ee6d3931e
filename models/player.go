package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceBucket names one of the player's balance columns.
type BalanceBucket string

const (
	BucketLuckyDrawWallet BalanceBucket = "lucky_draw_wallet"
	BucketGameBalance     BalanceBucket = "game_balance"
	BucketJackpotWinnings BalanceBucket = "jackpot_winnings" // restricted withdrawal
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Player is the local view of a platform account as far as the jackpot needs it.
// Balances are owned by the account store; the jackpot only debits tickets and credits prizes.
type Player struct {
	ID              string          `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Username        string          `gorm:"index;not null" json:"username"`
	WalletAddress   string          `gorm:"type:varchar(128);index" json:"wallet_address"`
	LuckyDrawWallet decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"lucky_draw_wallet"`
	GameBalance     decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"game_balance"`
	JackpotWinnings decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"jackpot_winnings"`
	AutoJackpot     bool            `gorm:"not null;default:false;index" json:"auto_jackpot"`
	IsBanned        bool            `json:"is_banned" gorm:"default:false"`
	Version         int64           `gorm:"not null;default:1" json:"version"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TicketSource picks the bucket a purchase of cost is paid from: the draw wallet when it
// covers cost, else the game balance when that does. When neither covers it, the draw wallet
// is named if it holds anything, the game balance otherwise.
func (p *Player) TicketSource(cost decimal.Decimal) BalanceBucket {
	switch {
	case p.LuckyDrawWallet.GreaterThanOrEqual(cost):
		return BucketLuckyDrawWallet
	case p.GameBalance.GreaterThanOrEqual(cost):
		return BucketGameBalance
	case p.LuckyDrawWallet.IsPositive():
		return BucketLuckyDrawWallet
	}
	return BucketGameBalance
}

func (p *Player) Balance(b BalanceBucket) decimal.Decimal {
	switch b {
	case BucketLuckyDrawWallet:
		return p.LuckyDrawWallet
	case BucketGameBalance:
		return p.GameBalance
	case BucketJackpotWinnings:
		return p.JackpotWinnings
	}
	return decimal.Zero
}

func (p *Player) setBalance(b BalanceBucket, v decimal.Decimal) {
	switch b {
	case BucketLuckyDrawWallet:
		p.LuckyDrawWallet = v
	case BucketGameBalance:
		p.GameBalance = v
	case BucketJackpotWinnings:
		p.JackpotWinnings = v
	}
}

// Debit removes amount from bucket and returns the resulting ledger row (without ID).
func (p *Player) Debit(b BalanceBucket, amount decimal.Decimal, txType TransactionType, ref string) (BalanceTransaction, error) {
	before := p.Balance(b)
	if before.LessThan(amount) {
		return BalanceTransaction{}, fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientBalance, b, before.StringFixed(2), amount.StringFixed(2))
	}
	after := before.Sub(amount)
	p.setBalance(b, after)
	p.Version++
	return BalanceTransaction{
		PlayerID:      p.ID,
		Bucket:        b,
		Type:          txType,
		Amount:        amount.Neg(),
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     ref,
	}, nil
}

// Credit adds amount to bucket and returns the resulting ledger row (without ID).
func (p *Player) Credit(b BalanceBucket, amount decimal.Decimal, txType TransactionType, ref string) BalanceTransaction {
	before := p.Balance(b)
	after := before.Add(amount)
	p.setBalance(b, after)
	p.Version++
	return BalanceTransaction{
		PlayerID:      p.ID,
		Bucket:        b,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     ref,
	}
}
