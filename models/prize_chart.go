package models

import (
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

// PrizeTier is one band of the prize chart. Tiers are ordered from the top prize down.
type PrizeTier struct {
	Key         string          `json:"key"`
	RankLabel   string          `json:"rank_label"`
	Prize       decimal.Decimal `json:"prize"`
	WinnerSlots int             `json:"winner_slots"`
}

// PrizeChart is the static ordered payout table.
type PrizeChart []PrizeTier

func tier(label string, prize int64, slots int) PrizeTier {
	return PrizeTier{
		Key:         slug.Make(label),
		RankLabel:   label,
		Prize:       decimal.NewFromInt(prize),
		WinnerSlots: slots,
	}
}

// DefaultPrizeChart is the reference chart: 1000 winning slots, 53,000 paid out when full.
func DefaultPrizeChart() PrizeChart {
	return PrizeChart{
		tier("1st", 10000, 1),
		tier("2nd", 5000, 1),
		tier("3rd", 3000, 1),
		tier("4th-10th", 1000, 7),
		tier("11th-100th", 100, 90),
		tier("101st-1000th", 20, 900),
	}
}

// TotalWinnerSlots is the sum of all tier slots.
func (c PrizeChart) TotalWinnerSlots() int {
	n := 0
	for _, t := range c {
		n += t.WinnerSlots
	}
	return n
}

// TotalPayout is the payout when every slot is filled.
func (c PrizeChart) TotalPayout() decimal.Decimal {
	return c.PayoutFor(c.TotalWinnerSlots())
}

// PayoutFor is the payout when the top min(n, slots) slots are filled, consumed top-down.
func (c PrizeChart) PayoutFor(n int) decimal.Decimal {
	total := decimal.Zero
	for _, t := range c {
		if n <= 0 {
			break
		}
		take := t.WinnerSlots
		if n < take {
			take = n
		}
		total = total.Add(t.Prize.Mul(decimal.NewFromInt(int64(take))))
		n -= take
	}
	return total
}

// TierForRank returns the tier covering a 1-based rank.
func (c PrizeChart) TierForRank(rank int) (PrizeTier, bool) {
	if rank < 1 {
		return PrizeTier{}, false
	}
	upper := 0
	for _, t := range c {
		upper += t.WinnerSlots
		if rank <= upper {
			return t, true
		}
	}
	return PrizeTier{}, false
}

// TopPrize is the first tier's prize, or zero for an empty chart.
func (c PrizeChart) TopPrize() decimal.Decimal {
	if len(c) == 0 {
		return decimal.Zero
	}
	return c[0].Prize
}
