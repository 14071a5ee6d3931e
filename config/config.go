package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the process configuration read once at startup.
// Values that admins may change at runtime live in models.PlatformSettings instead.
type Config struct {
	DatabaseURL      string
	Port             string
	GameServiceToken string
	AllowedOrigins   string
	LogLevel         string

	DefaultTicketPrice  decimal.Decimal
	DefaultTotalTickets int

	AnnounceInterval  time.Duration
	AutoSpendInterval time.Duration

	// SyncServiceURL enables the player mirror when set.
	SyncServiceURL     string
	PlayerSyncInterval time.Duration

	R2 R2Config
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether proof archival has enough to connect.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.Bucket != "" && c.AccessKeyID != ""
}

// Load reads .env (if present) then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getenv("DATABASE_URL"),
		Port:             withDefault(getenv("PORT"), "5200"),
		GameServiceToken: getenv("GAME_SERVICE_TOKEN"),
		AllowedOrigins:   normalizeOrigins(withDefault(getenv("ALLOWED_ORIGINS"), "http://localhost:3000")),
		LogLevel:         withDefault(getenv("LOG_LEVEL"), "info"),
		SyncServiceURL:   strings.TrimSpace(getenv("SYNC_SERVICE_URL")),
		R2: R2Config{
			AccountID:       getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      getenv("CDN_BASE_URL"),
		},
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	var err error
	if cfg.DefaultTicketPrice, err = decimal.NewFromString(withDefault(getenv("DEFAULT_TICKET_PRICE"), "10")); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TICKET_PRICE: %w", err)
	}
	if !cfg.DefaultTicketPrice.IsPositive() {
		return nil, fmt.Errorf("DEFAULT_TICKET_PRICE must be positive, got %s", cfg.DefaultTicketPrice)
	}
	if cfg.DefaultTotalTickets, err = strconv.Atoi(withDefault(getenv("DEFAULT_TOTAL_TICKETS"), "10000")); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TOTAL_TICKETS: %w", err)
	}
	if cfg.DefaultTotalTickets <= 0 {
		return nil, fmt.Errorf("DEFAULT_TOTAL_TICKETS must be positive, got %d", cfg.DefaultTotalTickets)
	}
	if cfg.AnnounceInterval, err = time.ParseDuration(withDefault(getenv("ANNOUNCE_INTERVAL"), "2s")); err != nil {
		return nil, fmt.Errorf("invalid ANNOUNCE_INTERVAL: %w", err)
	}
	if cfg.AutoSpendInterval, err = time.ParseDuration(withDefault(getenv("AUTO_SPEND_INTERVAL"), "5m")); err != nil {
		return nil, fmt.Errorf("invalid AUTO_SPEND_INTERVAL: %w", err)
	}
	if cfg.PlayerSyncInterval, err = time.ParseDuration(withDefault(getenv("PLAYER_SYNC_INTERVAL"), "1m")); err != nil {
		return nil, fmt.Errorf("invalid PLAYER_SYNC_INTERVAL: %w", err)
	}
	if cfg.SyncServiceURL != "" && cfg.GameServiceToken == "" {
		return nil, fmt.Errorf("GAME_SERVICE_TOKEN is required when SYNC_SERVICE_URL is set")
	}
	return cfg, nil
}

func withDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// normalizeOrigins trims spaces around each comma-separated origin for Fiber's CORS config.
func normalizeOrigins(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}
