package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jackpot-service/config"
	"jackpot-service/dispatcher"
	"jackpot-service/handlers"
	"jackpot-service/logger"
	"jackpot-service/middleware"
	"jackpot-service/models"
	"jackpot-service/services"
	"jackpot-service/utils"
	"jackpot-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log, _ := logger.New("info")
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log, level := logger.New(cfg.LogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	store := services.NewGormStore(db)
	if err := store.AutoMigrate(); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	settings := services.NewSettingsService(store, models.RoundConfig{
		TicketPrice:  cfg.DefaultTicketPrice,
		TotalTickets: cfg.DefaultTotalTickets,
	}, log)
	if err := settings.Load(ctx); err != nil {
		log.Fatal("failed to load platform settings", zap.Error(err))
	}

	disp := dispatcher.New(dispatcher.NewHub(64), cfg.AnnounceInterval, log)
	if err := disp.Start(ctx); err != nil {
		log.Fatal("failed to start event dispatcher", zap.Error(err))
	}
	defer disp.Close()

	opts := []services.Option{services.WithStream(disp.Hub())}
	if cfg.R2.Enabled() {
		archive, err := utils.NewR2Archive(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket, cfg.R2.CDNBaseURL)
		if err != nil {
			log.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		opts = append(opts, services.WithProofArchive(archive))
	} else {
		log.Warn("R2 not configured, draw proofs will not be archived")
	}
	jackpot := services.NewJackpotService(store, settings, disp, log, opts...)

	// Make sure a round is open before the first request
	if r, err := jackpot.GetActiveRound(ctx); err != nil {
		log.Fatal("failed to open jackpot round", zap.Error(err))
	} else {
		log.Info("current jackpot round", zap.Int64("round_number", r.RoundNumber), zap.String("status", string(r.Status)))
	}

	if cfg.SyncServiceURL != "" {
		workers.NewPlayerSyncWorker(store, cfg.SyncServiceURL, cfg.GameServiceToken, cfg.PlayerSyncInterval, log).Start(ctx)
	} else {
		log.Warn("SYNC_SERVICE_URL not set, player mirror sync disabled")
	}

	sched, err := jackpot.StartScheduler(ctx, cfg.AutoSpendInterval)
	if err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// 🔐 GLOBAL: Only Gateway requests allowed, except health and metrics
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken, log, "/health", "/metrics"))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.SetupJackpotRoutes(app, jackpot, settings, log)
	handlers.SetupAdminRoutes(app, level, log)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server error", zap.Error(err))
		}
	}()

	log.Info("✅ Server running", zap.String("port", cfg.Port), zap.String("cors_origins", cfg.AllowedOrigins))

	<-ctx.Done()
	log.Info("Shutting down server...")

	if err := sched.Shutdown(); err != nil {
		log.Warn("scheduler shutdown", zap.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}
}
