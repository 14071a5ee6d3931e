package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"jackpot-service/events"
	"jackpot-service/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return nil
}

func (p *recordingPublisher) byTopic(topic string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store    *memoryStore
	settings *SettingsService
	pub      *recordingPublisher
	svc      *JackpotService
}

func newFixture(t *testing.T, price int64, capacity int, opts ...Option) *fixture {
	t.Helper()
	store := newMemoryStore()
	settings := NewSettingsService(store, models.RoundConfig{
		TicketPrice:  decimal.NewFromInt(price),
		TotalTickets: capacity,
	}, zap.NewNop())
	require.NoError(t, settings.Load(context.Background()))
	pub := &recordingPublisher{}
	return &fixture{
		store:    store,
		settings: settings,
		pub:      pub,
		svc:      NewJackpotService(store, settings, pub, zap.NewNop(), opts...),
	}
}

func wallet(id string) string {
	return "0x" + strings.Repeat("a", 38-len(id)) + id
}

func (f *fixture) addPlayer(id string, gameBalance, drawWallet int64) {
	f.store.addPlayer(models.Player{
		ID:              id,
		Username:        id,
		WalletAddress:   wallet(id),
		GameBalance:     decimal.NewFromInt(gameBalance),
		LuckyDrawWallet: decimal.NewFromInt(drawWallet),
		JackpotWinnings: decimal.Zero,
	})
}

func (f *fixture) activeRound(t *testing.T) *models.JackpotRound {
	t.Helper()
	r, err := f.svc.GetActiveRound(context.Background())
	require.NoError(t, err)
	return r
}

func fixedSeed(seed string) Option {
	return WithSeedSource(func() (string, error) { return seed, nil })
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func TestGetActiveRoundOpensFirstRound(t *testing.T) {
	f := newFixture(t, 10, 10000)

	r := f.activeRound(t)
	assert.Equal(t, int64(1), r.RoundNumber)
	assert.Equal(t, models.RoundStatusActive, r.Status)
	assert.True(t, r.TicketPrice.Equal(dec(10)))
	assert.Equal(t, 10000, r.TotalTickets)
	require.Len(t, f.pub.byTopic(events.TopicNewRound), 1)

	again := f.activeRound(t)
	assert.Equal(t, r.ID, again.ID)
	assert.Len(t, f.store.allRounds(), 1)
}

func TestGetActiveRoundConcurrentBootstrap(t *testing.T) {
	f := newFixture(t, 10, 100)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.svc.GetActiveRound(context.Background())
			if assert.NoError(t, err) {
				ids[i] = r.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.store.allRounds(), 1)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestPurchaseTickets(t *testing.T) {
	f := newFixture(t, 10, 100)
	f.addPlayer("alice", 100, 0)

	res, err := f.svc.PurchaseTickets(context.Background(), "alice", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, res.TicketNumbers)
	assert.Len(t, res.TicketIDs, 3)
	assert.Equal(t, models.BucketGameBalance, res.Source)
	assert.True(t, res.Balance.Equal(dec(70)))
	assert.Equal(t, 3, res.TicketsSold)
	assert.InDelta(t, 0.03, res.Progress, 1e-9)
	assert.Nil(t, res.Draw)

	r := f.activeRound(t)
	assert.Equal(t, 3, r.TicketsSold)
	assert.Len(t, f.store.roundTickets(r.ID), 3)
	assert.True(t, r.TotalPrizePool.Equal(dec(30)))

	ledger := f.store.ledgerFor("alice")
	require.Len(t, ledger, 1)
	assert.True(t, ledger[0].Amount.Equal(dec(-30)))
	assert.Equal(t, models.TxJackpotTicket, ledger[0].Type)

	sold := f.pub.byTopic(events.TopicTicketSold)
	require.Len(t, sold, 1)
	payload := sold[0].Payload.(events.TicketSold)
	assert.Equal(t, 3, payload.Quantity)
	assert.Equal(t, events.MaskWallet(wallet("alice")), payload.MaskedBuyer)
	assert.NotEqual(t, wallet("alice"), payload.MaskedBuyer)
}

func TestPurchaseTicketNumbersContinue(t *testing.T) {
	f := newFixture(t, 10, 100)
	f.addPlayer("alice", 100, 0)
	f.addPlayer("bob", 100, 0)

	_, err := f.svc.PurchaseTickets(context.Background(), "alice", 2)
	require.NoError(t, err)
	res, err := f.svc.PurchaseTickets(context.Background(), "bob", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, res.TicketNumbers)
}

func TestPurchasePrefersDrawWallet(t *testing.T) {
	f := newFixture(t, 10, 100)
	f.addPlayer("alice", 1000, 50)

	res, err := f.svc.PurchaseTickets(context.Background(), "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, models.BucketLuckyDrawWallet, res.Source)
	assert.True(t, res.Balance.Equal(dec(30)))

	p := f.store.player("alice")
	assert.True(t, p.GameBalance.Equal(dec(1000)))
	assert.True(t, p.LuckyDrawWallet.Equal(dec(30)))
}

func TestPurchaseInsufficientFundsLeavesEverythingUntouched(t *testing.T) {
	f := newFixture(t, 10, 100)
	f.addPlayer("alice", 25, 0)

	_, err := f.svc.PurchaseTickets(context.Background(), "alice", 3)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Contains(t, err.Error(), string(models.BucketGameBalance))

	assert.True(t, f.store.player("alice").GameBalance.Equal(dec(25)))
	r := f.activeRound(t)
	assert.Zero(t, r.TicketsSold)
	assert.Empty(t, f.store.roundTickets(r.ID))
	assert.Empty(t, f.store.ledgerFor("alice"))
	assert.Empty(t, f.pub.byTopic(events.TopicTicketSold))
}

func TestPurchaseFallsBackWhenDrawWalletShort(t *testing.T) {
	f := newFixture(t, 10, 100)
	f.addPlayer("alice", 1000, 1)

	res, err := f.svc.PurchaseTickets(context.Background(), "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, models.BucketGameBalance, res.Source)

	alice := f.store.player("alice")
	assert.True(t, alice.GameBalance.Equal(dec(990)))
	assert.True(t, alice.LuckyDrawWallet.Equal(dec(1)))
}

func TestPurchaseInsufficientFundsNamesDrawWallet(t *testing.T) {
	f := newFixture(t, 10, 100)
	f.addPlayer("alice", 5, 25)

	_, err := f.svc.PurchaseTickets(context.Background(), "alice", 3)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Contains(t, err.Error(), string(models.BucketLuckyDrawWallet))

	alice := f.store.player("alice")
	assert.True(t, alice.LuckyDrawWallet.Equal(dec(25)))
	assert.True(t, alice.GameBalance.Equal(dec(5)))
}

func TestPurchaseHugeQuantityExceedsCapacity(t *testing.T) {
	f := newFixture(t, 10, 100)
	f.addPlayer("alice", 1000, 0)
	_, err := f.svc.PurchaseTickets(context.Background(), "alice", 1)
	require.NoError(t, err)

	_, err = f.svc.PurchaseTickets(context.Background(), "alice", math.MaxInt)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.True(t, f.store.player("alice").GameBalance.Equal(dec(990)))
	assert.Equal(t, 1, f.activeRound(t).TicketsSold)
}

func TestPurchaseRejectedWhileDrawing(t *testing.T) {
	f := newFixture(t, 10, 100)
	f.addPlayer("alice", 100, 0)
	r := f.activeRound(t)

	drawing, err := f.store.GetRound(context.Background(), r.ID, false)
	require.NoError(t, err)
	drawing.Status = models.RoundStatusDrawing
	require.NoError(t, f.store.SaveRound(context.Background(), drawing))

	_, err = f.svc.PurchaseTickets(context.Background(), "alice", 1)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, f.store.player("alice").GameBalance.Equal(dec(100)))
	assert.Empty(t, f.store.roundTickets(r.ID))
	assert.Empty(t, f.store.ledgerFor("alice"))
}

func TestPurchaseRejectsBannedPlayer(t *testing.T) {
	f := newFixture(t, 10, 100)
	f.addPlayer("mallory", 100, 0)
	p := f.store.player("mallory")
	p.IsBanned = true
	f.store.addPlayer(p)

	_, err := f.svc.PurchaseTickets(context.Background(), "mallory", 1)
	require.ErrorIs(t, err, ErrForbidden)
	assert.True(t, f.store.player("mallory").GameBalance.Equal(dec(100)))
	assert.Zero(t, f.activeRound(t).TicketsSold)
}

func TestPurchaseCapacityExceededIsAtomic(t *testing.T) {
	f := newFixture(t, 10, 5)
	f.addPlayer("alice", 1000, 0)

	_, err := f.svc.PurchaseTickets(context.Background(), "alice", 3)
	require.NoError(t, err)

	_, err = f.svc.PurchaseTickets(context.Background(), "alice", 3)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	r := f.activeRound(t)
	assert.Equal(t, 3, r.TicketsSold)
	assert.Len(t, f.store.roundTickets(r.ID), 3)
	assert.True(t, f.store.player("alice").GameBalance.Equal(dec(970)))
}

func TestPurchaseRejections(t *testing.T) {
	t.Run("zero quantity", func(t *testing.T) {
		f := newFixture(t, 10, 100)
		f.addPlayer("alice", 100, 0)
		_, err := f.svc.PurchaseTickets(context.Background(), "alice", 0)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t, 10, 100)
		_, err := f.svc.PurchaseTickets(context.Background(), "ghost", 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("paused round", func(t *testing.T) {
		f := newFixture(t, 10, 100)
		f.addPlayer("alice", 100, 0)
		_, err := f.svc.TogglePause(context.Background(), f.activeRound(t).ID, "admin")
		require.NoError(t, err)
		_, err = f.svc.PurchaseTickets(context.Background(), "alice", 1)
		assert.ErrorIs(t, err, ErrPaused)
		assert.True(t, f.store.player("alice").GameBalance.Equal(dec(100)))
	})
	t.Run("disabled platform-wide", func(t *testing.T) {
		f := newFixture(t, 10, 100)
		f.addPlayer("alice", 100, 0)
		_, err := f.settings.Update(context.Background(), "admin", func(ps *models.PlatformSettings) error {
			ps.JackpotEnabled = false
			return nil
		})
		require.NoError(t, err)
		_, err = f.svc.PurchaseTickets(context.Background(), "alice", 1)
		assert.ErrorIs(t, err, ErrPaused)
	})
}

func TestFillingRoundRunsDrawSynchronously(t *testing.T) {
	f := newFixture(t, 10, 1000)
	f.addPlayer("whale", 10000, 0)

	res, err := f.svc.PurchaseTickets(context.Background(), "whale", 1000)
	require.NoError(t, err)
	require.NotNil(t, res.Draw)
	assert.Equal(t, int64(1), res.Draw.RoundNumber)
	assert.Equal(t, int64(2), res.Draw.NextRoundNumber)
	assert.Len(t, res.Draw.Winners, 1000)
	assert.Equal(t, 1000, res.Draw.Distribution.Completed)
	assert.True(t, res.Draw.Distribution.Paid.Equal(dec(53000)))

	rounds := f.store.allRounds()
	require.Len(t, rounds, 2)
	first := rounds[0]
	assert.Equal(t, models.RoundStatusCompleted, first.Status)
	require.NotNil(t, first.DrawSeed)
	assert.Len(t, *first.DrawSeed, 64)
	assert.Equal(t, models.DrawMethodAuto, first.DrawMethod)
	assert.Equal(t, "system", first.DrawExecutedBy)
	assert.True(t, first.Surplus.Equal(dec(10000-53000)))
	assert.Equal(t, models.RoundStatusActive, rounds[1].Status)
	assert.Zero(t, rounds[1].TicketsSold)

	p := f.store.player("whale")
	assert.True(t, p.GameBalance.IsZero())
	assert.True(t, p.JackpotWinnings.Equal(dec(53000)))

	newRounds := f.pub.byTopic(events.TopicNewRound)
	require.NotEmpty(t, newRounds)
	assert.Equal(t, int64(2), newRounds[len(newRounds)-1].Payload.(events.NewRound).RoundNumber)

	complete := f.pub.byTopic(events.TopicDrawComplete)
	require.Len(t, complete, 1)
	dc := complete[0].Payload.(events.DrawComplete)
	assert.Equal(t, 1000, dc.TotalWinners)
	require.Len(t, dc.Top3, 3)
	assert.Equal(t, 1, dc.Top3[0].Rank)

	announced := f.pub.byTopic(events.TopicWinnerAnnounced)
	assert.Len(t, announced, 1000)
	for _, e := range announced {
		assert.True(t, e.Paced)
	}
}

func TestDrawIsReproducibleFromSeed(t *testing.T) {
	f := newFixture(t, 10, 5, fixedSeed("abc"))
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("u%d", i)
		f.addPlayer(id, 10, 0)
		_, err := f.svc.PurchaseTickets(context.Background(), id, 1)
		require.NoError(t, err)
	}

	first := f.store.allRounds()[0]
	require.Equal(t, models.RoundStatusCompleted, first.Status)
	assert.Equal(t, "abc", *first.DrawSeed)

	winners, err := f.store.ListWinners(context.Background(), first.ID)
	require.NoError(t, err)
	require.Len(t, winners, 5)
	// shuffle of tickets 1..5 with seed "abc" is [4 2 5 3 1]
	assert.Equal(t, 4, winners[0].TicketNumber)
	assert.Equal(t, "u4", winners[0].UserID)
	assert.Equal(t, "1st", winners[0].RankLabel)
	assert.True(t, f.store.player("u4").JackpotWinnings.Equal(dec(10000)))

	v, err := f.svc.VerifyRound(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, v.Match)
	assert.Equal(t, 5, v.Tickets)
	assert.Equal(t, 5, v.Winners)
}

func TestExecuteDrawRejectsNonActiveRound(t *testing.T) {
	f := newFixture(t, 10, 2)
	f.addPlayer("alice", 100, 0)
	_, err := f.svc.PurchaseTickets(context.Background(), "alice", 2)
	require.NoError(t, err)

	done := f.store.allRounds()[0]
	require.Equal(t, models.RoundStatusCompleted, done.Status)

	_, err = f.svc.ExecuteDraw(context.Background(), done.ID, "admin", models.DrawMethodManual)
	require.ErrorIs(t, err, ErrInvalidState)

	after, err := f.store.GetRound(context.Background(), done.ID, false)
	require.NoError(t, err)
	assert.Equal(t, done.Version, after.Version)
	assert.Equal(t, *done.DrawSeed, *after.DrawSeed)
}

func TestExecuteDrawRollsBackOnFailure(t *testing.T) {
	f := newFixture(t, 10, 10)
	f.addPlayer("alice", 100, 0)
	_, err := f.svc.PurchaseTickets(context.Background(), "alice", 3)
	require.NoError(t, err)
	r := f.activeRound(t)

	f.store.failOn("CreateWinners", errors.New("disk full"))
	_, err = f.svc.ExecuteDraw(context.Background(), r.ID, "admin", models.DrawMethodManual)
	require.ErrorContains(t, err, "disk full")

	after, err := f.store.GetRound(context.Background(), r.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusActive, after.Status)
	assert.Nil(t, after.DrawSeed)
	winners, _ := f.store.ListWinners(context.Background(), r.ID)
	assert.Empty(t, winners)
	assert.Len(t, f.store.allRounds(), 1)
	assert.Empty(t, f.pub.byTopic(events.TopicDrawComplete))

	// still purchasable
	_, err = f.svc.PurchaseTickets(context.Background(), "alice", 1)
	require.NoError(t, err)

	f.store.failOn("CreateWinners", nil)
	res, err := f.svc.ExecuteDraw(context.Background(), r.ID, "admin", models.DrawMethodManual)
	require.NoError(t, err)
	assert.Len(t, res.Winners, 4)
	assert.Equal(t, int64(2), res.NextRoundNumber)
}

func TestDistributionFailureIsIsolated(t *testing.T) {
	f := newFixture(t, 10, 10)
	for _, id := range []string{"a", "b", "c"} {
		f.addPlayer(id, 100, 0)
		_, err := f.svc.PurchaseTickets(context.Background(), id, 1)
		require.NoError(t, err)
	}
	r := f.activeRound(t)

	f.store.failOn("SavePlayer", errors.New("ledger unavailable"))
	res, err := f.svc.ExecuteDraw(context.Background(), r.ID, "admin", models.DrawMethodManual)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Distribution.Failed)
	assert.Zero(t, res.Distribution.Completed)

	winners, err := f.store.ListWinners(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, winners, 3)
	for _, w := range winners {
		assert.Equal(t, models.WinnerStatusFailed, w.Status)
		assert.Contains(t, w.FailureReason, "ledger unavailable")
		assert.Nil(t, w.ClaimedAt)
	}
	// the draw itself stands
	done, err := f.store.GetRound(context.Background(), r.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusCompleted, done.Status)
}

func TestDistributionContinuesPastMissingPlayer(t *testing.T) {
	f := newFixture(t, 10, 10, fixedSeed("abc"))
	for _, id := range []string{"a", "b", "c"} {
		f.addPlayer(id, 100, 0)
		_, err := f.svc.PurchaseTickets(context.Background(), id, 1)
		require.NoError(t, err)
	}
	r := f.activeRound(t)
	round, err := f.store.GetRound(context.Background(), r.ID, false)
	require.NoError(t, err)

	// a winner whose account no longer exists
	round.Winners = []models.JackpotWinner{
		{ID: "w1", RoundID: r.ID, UserID: "a", Rank: 1, Prize: dec(100), Status: models.WinnerStatusPending},
		{ID: "w2", RoundID: r.ID, UserID: "gone", Rank: 2, Prize: dec(50), Status: models.WinnerStatusPending},
		{ID: "w3", RoundID: r.ID, UserID: "c", Rank: 3, Prize: dec(20), Status: models.WinnerStatusPending},
	}
	require.NoError(t, f.store.CreateWinners(context.Background(), round.Winners))

	res := f.svc.DistributePrizes(context.Background(), round)
	assert.Equal(t, 2, res.Completed)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.Paid.Equal(dec(120)))
	assert.True(t, f.store.player("a").JackpotWinnings.Equal(dec(100)))
	assert.True(t, f.store.player("c").JackpotWinnings.Equal(dec(20)))

	winners, _ := f.store.ListWinners(context.Background(), r.ID)
	assert.Equal(t, models.WinnerStatusCompleted, winners[0].Status)
	assert.NotNil(t, winners[0].ClaimedAt)
	assert.Equal(t, models.WinnerStatusFailed, winners[1].Status)
	assert.Equal(t, models.WinnerStatusCompleted, winners[2].Status)
}

func TestUpdateParameters(t *testing.T) {
	f := newFixture(t, 10, 100)
	r := f.activeRound(t)
	price := dec(25)
	capacity := 400

	updated, err := f.svc.UpdateParameters(context.Background(), r.ID, &price, &capacity, "admin-1")
	require.NoError(t, err)
	assert.True(t, updated.TicketPrice.Equal(dec(25)))
	assert.Equal(t, 400, updated.TotalTickets)

	changes := f.store.parameterChanges(r.ID)
	require.Len(t, changes, 2)
	assert.Equal(t, "ticketPrice", changes[0].Field)
	assert.Equal(t, "10", changes[0].OldValue)
	assert.Equal(t, "25", changes[0].NewValue)
	assert.Equal(t, "admin-1", changes[0].ChangedBy)
	assert.Len(t, f.pub.byTopic(events.TopicStatusUpdate), 1)

	zero := 0
	_, err = f.svc.UpdateParameters(context.Background(), r.ID, nil, &zero, "admin-1")
	assert.ErrorIs(t, err, ErrConfig)

	f.addPlayer("alice", 100, 0)
	_, err = f.svc.PurchaseTickets(context.Background(), "alice", 1)
	require.NoError(t, err)
	_, err = f.svc.UpdateParameters(context.Background(), r.ID, &price, nil, "admin-1")
	assert.ErrorIs(t, err, ErrImmutableParameters)
}

func TestTogglePause(t *testing.T) {
	f := newFixture(t, 10, 100)
	r := f.activeRound(t)

	paused, err := f.svc.TogglePause(context.Background(), r.ID, "admin")
	require.NoError(t, err)
	assert.False(t, paused.IsActive)
	assert.Equal(t, models.RoundStatusActive, paused.Status)

	resumed, err := f.svc.TogglePause(context.Background(), r.ID, "admin")
	require.NoError(t, err)
	assert.True(t, resumed.IsActive)

	updates := f.pub.byTopic(events.TopicStatusUpdate)
	require.Len(t, updates, 2)
	assert.False(t, updates[0].Payload.(events.StatusUpdate).IsActive)

	_, err = f.svc.TogglePause(context.Background(), "missing", "admin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func smallChart() models.PrizeChart {
	return models.PrizeChart{
		{Key: "1st", RankLabel: "1st", Prize: dec(50), WinnerSlots: 1},
		{Key: "2nd", RankLabel: "2nd", Prize: dec(20), WinnerSlots: 1},
	}
}

func TestWithdrawSurplusOnce(t *testing.T) {
	f := newFixture(t, 10, 10, WithPrizeChart(smallChart()))
	f.addPlayer("alice", 100, 0)
	r := f.activeRound(t)

	_, err := f.svc.WithdrawSurplus(context.Background(), r.ID, "admin")
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.PurchaseTickets(context.Background(), "alice", 10)
	require.NoError(t, err)

	amount, err := f.svc.WithdrawSurplus(context.Background(), r.ID, "admin")
	require.NoError(t, err)
	// 100 pool - 70 paid
	assert.True(t, amount.Equal(dec(30)))

	_, err = f.svc.WithdrawSurplus(context.Background(), r.ID, "admin")
	require.ErrorIs(t, err, ErrAlreadyWithdrawn)

	done, err := f.store.GetRound(context.Background(), r.ID, false)
	require.NoError(t, err)
	assert.True(t, done.SurplusWithdrawn)
	assert.Equal(t, "admin", done.SurplusWithdrawnBy)
}

func TestWithdrawSurplusOfDeficitRound(t *testing.T) {
	f := newFixture(t, 10, 2)
	f.addPlayer("alice", 100, 0)
	r := f.activeRound(t)
	_, err := f.svc.PurchaseTickets(context.Background(), "alice", 2)
	require.NoError(t, err)

	done, err := f.store.GetRound(context.Background(), r.ID, false)
	require.NoError(t, err)
	require.True(t, done.Surplus.IsNegative())

	amount, err := f.svc.WithdrawSurplus(context.Background(), r.ID, "admin")
	require.NoError(t, err)
	assert.True(t, amount.IsZero())

	after, err := f.store.GetRound(context.Background(), r.ID, false)
	require.NoError(t, err)
	assert.True(t, after.SurplusWithdrawn)
	assert.Equal(t, "admin", after.SurplusWithdrawnBy)

	_, err = f.svc.WithdrawSurplus(context.Background(), r.ID, "admin")
	assert.ErrorIs(t, err, ErrAlreadyWithdrawn)
}

func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	const buyers = 40
	f := newFixture(t, 10, 10)
	for i := 0; i < buyers; i++ {
		f.addPlayer(fmt.Sprintf("p%02d", i), 10, 0)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		okRuns int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.PurchaseTickets(context.Background(), id, 1)
			if err != nil {
				// a buyer can only lose the race to a round that just sold out
				code := CodeOf(err)
				assert.True(t, code == CodeInvalidState || code == CodeCapacityExceeded, "unexpected error %v", err)
				assert.True(t, f.store.player(id).GameBalance.Equal(dec(10)))
				return
			}
			mu.Lock()
			okRuns++
			mu.Unlock()
		}(fmt.Sprintf("p%02d", i))
	}
	wg.Wait()

	sold := 0
	for _, r := range f.store.allRounds() {
		tickets := f.store.roundTickets(r.ID)
		assert.LessOrEqual(t, r.TicketsSold, r.TotalTickets)
		assert.Equal(t, r.TicketsSold, len(tickets))
		for i, tk := range tickets {
			assert.Equal(t, i+1, tk.TicketNumber)
		}
		if r.TicketsSold == r.TotalTickets {
			assert.Equal(t, models.RoundStatusCompleted, r.Status)
		}
		sold += r.TicketsSold
	}
	assert.Equal(t, okRuns, sold)
}

func TestGetRoundStatus(t *testing.T) {
	f := newFixture(t, 10, 10000)
	view, err := f.svc.GetRoundStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1 in 10", view.WinChance)
	assert.Equal(t, 1000, view.TotalWinnerSlots)
	assert.Len(t, view.PrizeChart, 6)
	assert.Empty(t, view.RecentWinners)
	assert.False(t, view.IsFull)
}

func TestGetRoundStatusRecentWinners(t *testing.T) {
	f := newFixture(t, 10, 5)
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("u%d", i)
		f.addPlayer(id, 10, 0)
		_, err := f.svc.PurchaseTickets(context.Background(), id, 1)
		require.NoError(t, err)
	}

	view, err := f.svc.GetRoundStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.RoundNumber)
	assert.Equal(t, "1 in 1", view.WinChance)
	require.Len(t, view.RecentWinners, 3)
	for i, w := range view.RecentWinners {
		assert.Equal(t, i+1, w.Rank)
		assert.Contains(t, w.MaskedWallet, "...")
		assert.Len(t, w.MaskedWallet, 13)
	}
}

func TestWinChance(t *testing.T) {
	assert.Equal(t, "1 in 10", WinChance(10000, 1000))
	assert.Equal(t, "1 in 11", WinChance(10001, 1000))
	assert.Equal(t, "1 in 1", WinChance(500, 1000))
}

func TestVerifyRoundRequiresDrawnRound(t *testing.T) {
	f := newFixture(t, 10, 5)
	f.activeRound(t)
	_, err := f.svc.VerifyRound(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.VerifyRound(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRoundsAndUserTickets(t *testing.T) {
	f := newFixture(t, 10, 2)
	f.addPlayer("alice", 100, 0)
	f.addPlayer("bob", 100, 0)
	for i := 0; i < 3; i++ {
		_, err := f.svc.PurchaseTickets(context.Background(), "alice", 1)
		require.NoError(t, err)
		_, err = f.svc.PurchaseTickets(context.Background(), "bob", 1)
		require.NoError(t, err)
	}

	rounds, total, err := f.svc.ListRounds(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rounds, 2)
	assert.Equal(t, int64(3), rounds[0].RoundNumber)

	r, err := f.svc.GetRoundByNumber(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, r.Winners, 2)

	tickets, round, err := f.svc.ListUserTickets(context.Background(), "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), round.RoundNumber)
	require.Len(t, tickets, 1)
	assert.Equal(t, 1, tickets[0].TicketNumber)

	tickets, round, err = f.svc.ListUserTickets(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), round.RoundNumber)
	assert.Empty(t, tickets)
}

func TestSettingsChangeBroadcastsStatus(t *testing.T) {
	f := newFixture(t, 10, 100)
	f.activeRound(t)

	_, err := f.settings.Update(context.Background(), "admin", func(ps *models.PlatformSettings) error {
		ps.JackpotEnabled = false
		return nil
	})
	require.NoError(t, err)

	updates := f.pub.byTopic(events.TopicStatusUpdate)
	require.Len(t, updates, 1)
	assert.False(t, updates[0].Payload.(events.StatusUpdate).IsActive)
}

type fakeArchive struct {
	key  string
	body []byte
}

func (a *fakeArchive) UploadJSON(_ context.Context, key string, body []byte) (string, error) {
	a.key, a.body = key, body
	return "https://cdn.test/" + key, nil
}

func TestDrawProofArchived(t *testing.T) {
	archive := &fakeArchive{}
	f := newFixture(t, 10, 2, WithProofArchive(archive), fixedSeed("abc"))
	f.addPlayer("alice", 100, 0)

	res, err := f.svc.PurchaseTickets(context.Background(), "alice", 2)
	require.NoError(t, err)
	require.NotNil(t, res.Draw)
	assert.Equal(t, "jackpot/proofs/round-000001.json", archive.key)
	assert.Equal(t, "https://cdn.test/jackpot/proofs/round-000001.json", res.Draw.ProofURL)
	assert.Contains(t, string(archive.body), `"seed":"abc"`)
	assert.NotContains(t, string(archive.body), wallet("alice"))
}

func TestClockIsInjectable(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := newFixture(t, 10, 1, WithClock(func() time.Time { return at }))
	f.addPlayer("alice", 10, 0)
	_, err := f.svc.PurchaseTickets(context.Background(), "alice", 1)
	require.NoError(t, err)

	done := f.store.allRounds()[0]
	require.NotNil(t, done.DrawExecutedAt)
	assert.Equal(t, at, *done.DrawExecutedAt)
}
