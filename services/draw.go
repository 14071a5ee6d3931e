package services

import (
	"cmp"
	"crypto/rand"
	"encoding/hex"
	"slices"

	"jackpot-service/models"
	"jackpot-service/rng"
)

// seedBytes is the entropy drawn for each published seed.
const seedBytes = 32

// NewDrawSeed returns a fresh hex-encoded seed from the OS random source.
func NewDrawSeed() (string, error) {
	b := make([]byte, seedBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SelectWinners shuffles the round's tickets (in ticket-number order) with the seeded stream
// and hands out prize-chart slots top-down. Rank is position in the shuffled list plus one.
// Given the same tickets and seed the result is always identical. IDs are left empty.
func SelectWinners(tickets []models.JackpotTicket, seed string, chart models.PrizeChart) []models.JackpotWinner {
	ordered := slices.Clone(tickets)
	slices.SortFunc(ordered, func(a, b models.JackpotTicket) int {
		return cmp.Compare(a.TicketNumber, b.TicketNumber)
	})
	rng.Shuffle(len(ordered), seed, func(i, j int) {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	})

	winners := make([]models.JackpotWinner, 0, min(len(ordered), chart.TotalWinnerSlots()))
	pos := 0
	for _, tier := range chart {
		for slot := 0; slot < tier.WinnerSlots && pos < len(ordered); slot++ {
			t := ordered[pos]
			winners = append(winners, models.JackpotWinner{
				RoundID:       t.RoundID,
				UserID:        t.UserID,
				WalletAddress: t.WalletAddress,
				TicketNumber:  t.TicketNumber,
				Rank:          pos + 1,
				RankLabel:     tier.RankLabel,
				Prize:         tier.Prize,
				Status:        models.WinnerStatusPending,
			})
			pos++
		}
	}
	return winners
}

// sameDraw reports whether two winner lists agree on rank, ticket and prize, in order.
// It returns the first disagreeing rank, or 0 when they match.
func sameDraw(a, b []models.JackpotWinner) (bool, int) {
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		if i >= len(a) || i >= len(b) {
			return false, i + 1
		}
		if a[i].Rank != b[i].Rank || a[i].TicketNumber != b[i].TicketNumber || !a[i].Prize.Equal(b[i].Prize) {
			return false, i + 1
		}
	}
	return true, 0
}
