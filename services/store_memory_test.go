package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"jackpot-service/models"

	"github.com/shopspring/decimal"
)

// memData is the full contents of the in-memory store. It is cloned at the start of each
// transaction and swapped in on commit.
type memData struct {
	rounds   map[string]models.JackpotRound
	tickets  map[string][]models.JackpotTicket
	winners  map[string][]models.JackpotWinner
	changes  []models.ParameterChange
	players  map[string]models.Player
	ledger   []models.BalanceTransaction
	settings *models.PlatformSettings
}

func (d *memData) clone() *memData {
	c := &memData{
		rounds:  make(map[string]models.JackpotRound, len(d.rounds)),
		tickets: make(map[string][]models.JackpotTicket, len(d.tickets)),
		winners: make(map[string][]models.JackpotWinner, len(d.winners)),
		changes: slices.Clone(d.changes),
		players: make(map[string]models.Player, len(d.players)),
		ledger:  slices.Clone(d.ledger),
	}
	for k, v := range d.rounds {
		c.rounds[k] = v
	}
	for k, v := range d.tickets {
		c.tickets[k] = slices.Clone(v)
	}
	for k, v := range d.winners {
		c.winners[k] = slices.Clone(v)
	}
	for k, v := range d.players {
		c.players[k] = v
	}
	if d.settings != nil {
		s := *d.settings
		c.settings = &s
	}
	return c
}

type memState struct {
	data *memData
	fail map[string]error
}

// memoryStore implements Store in memory. Transactions serialize on one mutex and roll back
// by discarding their snapshot.
type memoryStore struct {
	mu    *sync.Mutex
	state *memState
	inTx  bool
	hooks *memState
}

func newMemoryStore() *memoryStore {
	st := &memState{
		data: &memData{
			rounds:  map[string]models.JackpotRound{},
			tickets: map[string][]models.JackpotTicket{},
			winners: map[string][]models.JackpotWinner{},
			players: map[string]models.Player{},
		},
		fail: map[string]error{},
	}
	return &memoryStore{mu: &sync.Mutex{}, state: st, hooks: st}
}

// failOn makes every call of method return err until cleared with failOn(method, nil).
func (m *memoryStore) failOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.hooks.fail, method)
		return
	}
	m.hooks.fail[method] = err
}

func (m *memoryStore) guard() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memoryStore) failure(method string) error {
	return m.hooks.fail[method]
}

func (m *memoryStore) d() *memData { return m.state.data }

func (m *memoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("Transaction"); err != nil {
		return err
	}
	snapshot := m.state.data.clone()
	tx := &memoryStore{mu: m.mu, state: &memState{data: snapshot}, inTx: true, hooks: m.hooks}
	if err := fn(tx); err != nil {
		return err
	}
	m.state.data = snapshot
	return nil
}

// --- test helpers (not part of Store) ---

func (m *memoryStore) addPlayer(p models.Player) {
	defer m.guard()()
	m.d().players[p.ID] = p
}

func (m *memoryStore) player(id string) models.Player {
	defer m.guard()()
	return m.d().players[id]
}

func (m *memoryStore) roundTickets(roundID string) []models.JackpotTicket {
	defer m.guard()()
	return slices.Clone(m.d().tickets[roundID])
}

func (m *memoryStore) allRounds() []models.JackpotRound {
	defer m.guard()()
	out := make([]models.JackpotRound, 0, len(m.d().rounds))
	for _, r := range m.d().rounds {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b models.JackpotRound) int { return cmp.Compare(a.RoundNumber, b.RoundNumber) })
	return out
}

func (m *memoryStore) ledgerFor(playerID string) []models.BalanceTransaction {
	defer m.guard()()
	var out []models.BalanceTransaction
	for _, e := range m.d().ledger {
		if e.PlayerID == playerID {
			out = append(out, e)
		}
	}
	return out
}

func (m *memoryStore) parameterChanges(roundID string) []models.ParameterChange {
	defer m.guard()()
	var out []models.ParameterChange
	for _, c := range m.d().changes {
		if c.RoundID == roundID {
			out = append(out, c)
		}
	}
	return out
}

// --- Store ---

func stripRound(r models.JackpotRound) models.JackpotRound {
	r.Tickets, r.Winners, r.ParameterChanges = nil, nil, nil
	return r
}

func (m *memoryStore) GetRound(ctx context.Context, id string, forUpdate bool) (*models.JackpotRound, error) {
	defer m.guard()()
	if err := m.failure("GetRound"); err != nil {
		return nil, err
	}
	r, ok := m.d().rounds[id]
	if !ok {
		return nil, newError(CodeNotFound, "round not found")
	}
	return &r, nil
}

func (m *memoryStore) GetRoundByNumber(ctx context.Context, number int64) (*models.JackpotRound, error) {
	defer m.guard()()
	for _, r := range m.d().rounds {
		if r.RoundNumber == number {
			return &r, nil
		}
	}
	return nil, newError(CodeNotFound, "round #%d not found", number)
}

func (m *memoryStore) GetCurrentRound(ctx context.Context) (*models.JackpotRound, error) {
	defer m.guard()()
	var best *models.JackpotRound
	for _, r := range m.d().rounds {
		if !r.IsCurrent() {
			continue
		}
		if best == nil || r.RoundNumber > best.RoundNumber {
			r := r
			best = &r
		}
	}
	if best == nil {
		return nil, newError(CodeNotFound, "current round not found")
	}
	return best, nil
}

func (m *memoryStore) MaxRoundNumber(ctx context.Context) (int64, error) {
	defer m.guard()()
	var n int64
	for _, r := range m.d().rounds {
		n = max(n, r.RoundNumber)
	}
	return n, nil
}

func (m *memoryStore) CreateRound(ctx context.Context, r *models.JackpotRound) error {
	defer m.guard()()
	if err := m.failure("CreateRound"); err != nil {
		return err
	}
	for _, existing := range m.d().rounds {
		if existing.RoundNumber == r.RoundNumber {
			return fmt.Errorf("%w: #%d", ErrRoundNumberTaken, r.RoundNumber)
		}
	}
	m.d().rounds[r.ID] = stripRound(*r)
	return nil
}

func (m *memoryStore) SaveRound(ctx context.Context, r *models.JackpotRound) error {
	defer m.guard()()
	if err := m.failure("SaveRound"); err != nil {
		return err
	}
	r.Version++
	m.d().rounds[r.ID] = stripRound(*r)
	return nil
}

func (m *memoryStore) ListRounds(ctx context.Context, limit, offset int) ([]models.JackpotRound, int64, error) {
	defer m.guard()()
	var done []models.JackpotRound
	for _, r := range m.d().rounds {
		if r.Status == models.RoundStatusCompleted {
			done = append(done, r)
		}
	}
	slices.SortFunc(done, func(a, b models.JackpotRound) int { return cmp.Compare(b.RoundNumber, a.RoundNumber) })
	total := int64(len(done))
	if offset >= len(done) {
		return nil, total, nil
	}
	done = done[offset:]
	if len(done) > limit {
		done = done[:limit]
	}
	return done, total, nil
}

func (m *memoryStore) AddTickets(ctx context.Context, tickets []models.JackpotTicket) error {
	defer m.guard()()
	if err := m.failure("AddTickets"); err != nil {
		return err
	}
	for _, t := range tickets {
		m.d().tickets[t.RoundID] = append(m.d().tickets[t.RoundID], t)
	}
	return nil
}

func (m *memoryStore) ListTickets(ctx context.Context, roundID string) ([]models.JackpotTicket, error) {
	defer m.guard()()
	out := slices.Clone(m.d().tickets[roundID])
	slices.SortFunc(out, func(a, b models.JackpotTicket) int { return cmp.Compare(a.TicketNumber, b.TicketNumber) })
	return out, nil
}

func (m *memoryStore) ListUserTickets(ctx context.Context, userID, roundID string) ([]models.JackpotTicket, error) {
	defer m.guard()()
	var out []models.JackpotTicket
	for rid, ts := range m.d().tickets {
		if roundID != "" && rid != roundID {
			continue
		}
		for _, t := range ts {
			if t.UserID == userID {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (m *memoryStore) CreateWinners(ctx context.Context, winners []models.JackpotWinner) error {
	defer m.guard()()
	if err := m.failure("CreateWinners"); err != nil {
		return err
	}
	for _, w := range winners {
		m.d().winners[w.RoundID] = append(m.d().winners[w.RoundID], w)
	}
	return nil
}

func (m *memoryStore) ListWinners(ctx context.Context, roundID string) ([]models.JackpotWinner, error) {
	defer m.guard()()
	out := slices.Clone(m.d().winners[roundID])
	slices.SortFunc(out, func(a, b models.JackpotWinner) int { return cmp.Compare(a.Rank, b.Rank) })
	return out, nil
}

func (m *memoryStore) SaveWinner(ctx context.Context, w *models.JackpotWinner) error {
	defer m.guard()()
	list := m.d().winners[w.RoundID]
	for i := range list {
		if list[i].ID == w.ID {
			list[i] = *w
			return nil
		}
	}
	return newError(CodeNotFound, "winner %s not found", w.ID)
}

func (m *memoryStore) RecentWinners(ctx context.Context, limit int) ([]models.JackpotWinner, error) {
	defer m.guard()()
	var last *models.JackpotRound
	for _, r := range m.d().rounds {
		if r.Status != models.RoundStatusCompleted {
			continue
		}
		if last == nil || r.RoundNumber > last.RoundNumber {
			r := r
			last = &r
		}
	}
	if last == nil {
		return nil, nil
	}
	out := slices.Clone(m.d().winners[last.ID])
	slices.SortFunc(out, func(a, b models.JackpotWinner) int { return cmp.Compare(a.Rank, b.Rank) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) AddParameterChanges(ctx context.Context, changes []models.ParameterChange) error {
	defer m.guard()()
	m.d().changes = append(m.d().changes, changes...)
	return nil
}

func (m *memoryStore) GetPlayer(ctx context.Context, id string, forUpdate bool) (*models.Player, error) {
	defer m.guard()()
	p, ok := m.d().players[id]
	if !ok {
		return nil, newError(CodeNotFound, "user not found")
	}
	return &p, nil
}

func (m *memoryStore) SavePlayer(ctx context.Context, p *models.Player) error {
	defer m.guard()()
	if err := m.failure("SavePlayer"); err != nil {
		return err
	}
	m.d().players[p.ID] = *p
	return nil
}

func (m *memoryStore) AddBalanceTransaction(ctx context.Context, tx *models.BalanceTransaction) error {
	defer m.guard()()
	m.d().ledger = append(m.d().ledger, *tx)
	return nil
}

func (m *memoryStore) ListAutoSpendPlayers(ctx context.Context, minBalance decimal.Decimal) ([]models.Player, error) {
	defer m.guard()()
	var out []models.Player
	for _, p := range m.d().players {
		if p.AutoJackpot && !p.IsBanned && p.LuckyDrawWallet.GreaterThanOrEqual(minBalance) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b models.Player) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *memoryStore) GetSettings(ctx context.Context) (*models.PlatformSettings, error) {
	defer m.guard()()
	if m.d().settings == nil {
		return nil, newError(CodeNotFound, "platform settings not found")
	}
	s := *m.d().settings
	return &s, nil
}

func (m *memoryStore) CreateSettings(ctx context.Context, s *models.PlatformSettings) error {
	defer m.guard()()
	if m.d().settings == nil {
		c := *s
		m.d().settings = &c
	}
	return nil
}

func (m *memoryStore) UpdateSettings(ctx context.Context, s *models.PlatformSettings, expectedVersion int64) error {
	defer m.guard()()
	cur := m.d().settings
	if cur == nil || cur.Version != expectedVersion {
		return ErrSettingsConflict
	}
	s.Version = expectedVersion + 1
	c := *s
	m.d().settings = &c
	return nil
}
