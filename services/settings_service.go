package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"jackpot-service/models"

	"go.uber.org/zap"
)

// SettingsService owns the platform settings row and keeps an in-memory copy for hot paths.
type SettingsService struct {
	store    Store
	defaults models.PlatformSettings
	log      *zap.Logger

	mu        sync.RWMutex
	current   models.PlatformSettings
	listeners []func(prev, next models.PlatformSettings)
}

// NewSettingsService builds the service. defaults seeds the row the first time Load finds none.
func NewSettingsService(store Store, defaults models.RoundConfig, log *zap.Logger) *SettingsService {
	seed := models.PlatformSettings{
		ID:                  models.PlatformSettingsID,
		JackpotEnabled:      true,
		AutoSpendEnabled:    true,
		DefaultTicketPrice:  defaults.TicketPrice,
		DefaultTotalTickets: defaults.TotalTickets,
		UpdatedBy:           "system",
		Version:             1,
	}
	return &SettingsService{store: store, defaults: seed, current: seed, log: log}
}

// Load reads the settings row, creating it from defaults if missing.
func (s *SettingsService) Load(ctx context.Context) error {
	ps, err := s.store.GetSettings(ctx)
	if errors.Is(err, ErrNotFound) {
		seed := s.defaults
		if err := s.store.CreateSettings(ctx, &seed); err != nil {
			return fmt.Errorf("seed platform settings: %w", err)
		}
		ps, err = s.store.GetSettings(ctx)
	}
	if err != nil {
		return fmt.Errorf("load platform settings: %w", err)
	}

	s.mu.Lock()
	s.current = *ps
	s.mu.Unlock()
	s.log.Info("platform settings loaded",
		zap.Bool("jackpot_enabled", ps.JackpotEnabled),
		zap.String("default_ticket_price", ps.DefaultTicketPrice.String()),
		zap.Int("default_total_tickets", ps.DefaultTotalTickets),
		zap.Int64("version", ps.Version),
	)
	return nil
}

func (s *SettingsService) Current() models.PlatformSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers fn to run after every successful Update.
func (s *SettingsService) OnChange(fn func(prev, next models.PlatformSettings)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Update applies mutate to a copy of the current settings and writes it if nobody else
// changed the row in the meantime. On a lost race it refreshes the cache and returns ErrSettingsConflict.
func (s *SettingsService) Update(ctx context.Context, updatedBy string, mutate func(*models.PlatformSettings) error) (models.PlatformSettings, error) {
	prev := s.Current()
	next := prev
	if err := mutate(&next); err != nil {
		return prev, err
	}
	if err := next.RoundConfig().Validate(); err != nil {
		return prev, newError(CodeConfigError, "%v", err)
	}
	next.UpdatedBy = updatedBy

	if err := s.store.UpdateSettings(ctx, &next, prev.Version); err != nil {
		if errors.Is(err, ErrSettingsConflict) {
			if reloadErr := s.Load(ctx); reloadErr != nil {
				s.log.Warn("settings reload after conflict failed", zap.Error(reloadErr))
			}
		}
		return prev, err
	}

	s.mu.Lock()
	s.current = next
	listeners := append([]func(prev, next models.PlatformSettings){}, s.listeners...)
	s.mu.Unlock()

	s.log.Info("platform settings updated",
		zap.String("updated_by", updatedBy),
		zap.Bool("jackpot_enabled", next.JackpotEnabled),
		zap.Bool("auto_spend_enabled", next.AutoSpendEnabled),
		zap.Int64("version", next.Version),
	)
	for _, fn := range listeners {
		fn(prev, next)
	}
	return next, nil
}
