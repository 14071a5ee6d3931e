// workers/player_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"jackpot-service/models"

	"go.uber.org/zap"
)

// RemotePlayer is one profile row as returned by the account sync service.
type RemotePlayer struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	WalletAddress string    `json:"wallet_address"`
	AutoJackpot   bool      `json:"auto_jackpot"`
	IsBanned      bool      `json:"is_banned"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type GetPlayerChangesResponse struct {
	Players []RemotePlayer `json:"players"`
}

// PlayerMirror persists synced profiles. Balances are never touched by a sync.
type PlayerMirror interface {
	UpsertPlayerProfiles(ctx context.Context, players []models.Player) error
	LastPlayerSync(ctx context.Context) (time.Time, error)
}

// PlayerSyncWorker keeps the local players table in step with the account service:
// usernames, wallet addresses, the auto-jackpot opt-in and bans.
type PlayerSyncWorker struct {
	mirror       PlayerMirror
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
	log          *zap.Logger
}

func NewPlayerSyncWorker(mirror PlayerMirror, baseURL, serviceToken string, interval time.Duration, log *zap.Logger) *PlayerSyncWorker {
	return &PlayerSyncWorker{
		mirror:       mirror,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: "/api/v1/public/players",
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

func (w *PlayerSyncWorker) Start(ctx context.Context) {
	w.log.Info("starting player sync worker", zap.String("base_url", w.baseURL), zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *PlayerSyncWorker) run(ctx context.Context) {
	since, err := w.mirror.LastPlayerSync(ctx)
	if err != nil {
		w.log.Warn("could not read last player sync time, backfilling", zap.Error(err))
		since = time.Time{}
	}
	if next, err := w.SyncOnce(ctx, since); err != nil {
		w.log.Warn("initial player sync failed", zap.Error(err))
	} else {
		since = next
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			next, err := w.SyncOnce(ctx, since)
			if err != nil {
				// keep the window, retry it next tick
				w.log.Error("player sync batch failed", zap.Error(err))
				continue
			}
			since = next
		case <-ctx.Done():
			w.log.Info("player sync worker stopped")
			return
		}
	}
}

// SyncOnce pulls every profile changed after since and upserts it. It returns the cursor
// for the next call: the newest updated_at seen, or since when nothing changed.
func (w *PlayerSyncWorker) SyncOnce(ctx context.Context, since time.Time) (time.Time, error) {
	remote, err := w.fetch(ctx, since)
	if err != nil {
		return since, err
	}
	if len(remote) == 0 {
		w.log.Debug("no player changes", zap.Time("since", since))
		return since, nil
	}

	players := make([]models.Player, 0, len(remote))
	latest := since
	for _, rp := range remote {
		if rp.ID == "" {
			w.log.Warn("skipping player without id", zap.String("username", rp.Username))
			continue
		}
		p := models.Player{
			ID:            rp.ID,
			Username:      rp.Username,
			WalletAddress: rp.WalletAddress,
			AutoJackpot:   rp.AutoJackpot,
			IsBanned:      rp.IsBanned,
		}
		p.UpdatedAt = rp.UpdatedAt
		players = append(players, p)
		if rp.UpdatedAt.After(latest) {
			latest = rp.UpdatedAt
		}
	}
	if err := w.mirror.UpsertPlayerProfiles(ctx, players); err != nil {
		return since, fmt.Errorf("upsert %d player(s): %w", len(players), err)
	}

	w.log.Info("players synced", zap.Int("count", len(players)), zap.Time("latest", latest))
	return latest, nil
}

func (w *PlayerSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemotePlayer, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	u := base.JoinPath(w.endpointPath)
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call sync service: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var out GetPlayerChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sync service response: %w", err)
	}
	return out.Players, nil
}
