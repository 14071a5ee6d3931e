// Package events defines the push messages the jackpot engine emits.
// The engine builds these values; delivery is the dispatcher's job.
package events

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	TopicTicketSold      = "ticket_sold"
	TopicStatusUpdate    = "status_update"
	TopicDrawComplete    = "draw_complete"
	TopicWinnerAnnounced = "winner_announced"
	TopicNewRound        = "new_round"
)

// Event is one message for the push channel. Paced events are released on a timer
// instead of immediately.
type Event struct {
	Topic   string
	Payload any
	Paced   bool
}

type TicketSold struct {
	RoundNumber  int64     `json:"roundNumber"`
	TicketsSold  int       `json:"ticketsSold"`
	TotalTickets int       `json:"totalTickets"`
	Progress     float64   `json:"progress"`
	MaskedBuyer  string    `json:"maskedBuyer"`
	Quantity     int       `json:"quantity"`
	Timestamp    time.Time `json:"timestamp"`
}

type StatusUpdate struct {
	RoundNumber  int64           `json:"roundNumber"`
	TicketsSold  int             `json:"ticketsSold"`
	TotalTickets int             `json:"totalTickets"`
	TicketPrice  decimal.Decimal `json:"ticketPrice"`
	IsActive     bool            `json:"isActive"`
	Status       string          `json:"status"`
	Progress     float64         `json:"progress"`
}

type WinnerSummary struct {
	MaskedWallet string          `json:"maskedWallet"`
	Prize        decimal.Decimal `json:"prize"`
	Rank         int             `json:"rank"`
}

type DrawComplete struct {
	RoundNumber  int64           `json:"roundNumber"`
	TotalWinners int             `json:"totalWinners"`
	Top3         []WinnerSummary `json:"top3"`
}

type WinnerAnnounced struct {
	RoundNumber  int64           `json:"roundNumber"`
	MaskedWallet string          `json:"maskedWallet"`
	Prize        decimal.Decimal `json:"prize"`
	Rank         int             `json:"rank"`
	RankLabel    string          `json:"rankLabel"`
	Message      string          `json:"message"`
}

type NewRound struct {
	RoundNumber    int64           `json:"roundNumber"`
	TicketPrice    decimal.Decimal `json:"ticketPrice"`
	TotalTickets   int             `json:"totalTickets"`
	TotalPrizePool decimal.Decimal `json:"totalPrizePool"`
}

// MaskWallet keeps the first 6 and last 4 characters of an address.
// Addresses too short to mask that way keep only their first 2 characters.
func MaskWallet(addr string) string {
	r := []rune(addr)
	switch {
	case len(r) == 0:
		return ""
	case len(r) <= 10:
		if len(r) <= 2 {
			return "..."
		}
		return string(r[:2]) + "..."
	}
	return string(r[:6]) + "..." + string(r[len(r)-4:])
}

var printer = message.NewPrinter(language.English)

// FormatAmount renders a money amount with thousands separators, e.g. 10,000 or 12.50.
func FormatAmount(d decimal.Decimal) string {
	if d.IsInteger() {
		return printer.Sprintf("%d", d.IntPart())
	}
	return printer.Sprintf("%.2f", d.InexactFloat64())
}

// Announcement builds the per-winner message shown in the live feed.
func Announcement(roundNumber int64, wallet string, prize decimal.Decimal, rank int, label string) WinnerAnnounced {
	masked := MaskWallet(wallet)
	return WinnerAnnounced{
		RoundNumber:  roundNumber,
		MaskedWallet: masked,
		Prize:        prize,
		Rank:         rank,
		RankLabel:    label,
		Message:      printer.Sprintf("%s won $%s in round #%d (%s prize)", masked, FormatAmount(prize), roundNumber, label),
	}
}

// Frame is one encoded message ready for a live-feed client.
type Frame struct {
	Event string
	Data  []byte
}
