package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlatformSettingsID is the primary key of the single settings row.
const PlatformSettingsID = 1

// PlatformSettings holds runtime-mutable jackpot configuration. One row, versioned.
type PlatformSettings struct {
	ID                  uint            `gorm:"primaryKey" json:"-"`
	JackpotEnabled      bool            `gorm:"not null;default:true" json:"jackpot_enabled"` // emergency stop
	AutoSpendEnabled    bool            `gorm:"not null;default:true" json:"auto_spend_enabled"`
	DefaultTicketPrice  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"default_ticket_price"`
	DefaultTotalTickets int             `gorm:"not null" json:"default_total_tickets"`
	UpdatedBy           string          `json:"updated_by"`
	Version             int64           `gorm:"not null;default:1" json:"version"`
	UpdatedAt           time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// RoundConfig returns the parameters new rounds open with.
func (s PlatformSettings) RoundConfig() RoundConfig {
	return RoundConfig{TicketPrice: s.DefaultTicketPrice, TotalTickets: s.DefaultTotalTickets}
}
