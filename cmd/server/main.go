package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorlane/scheduler/internal/app"
	"github.com/tutorlane/scheduler/internal/clock"
	"github.com/tutorlane/scheduler/internal/config"
	"github.com/tutorlane/scheduler/internal/repository"
	"github.com/tutorlane/scheduler/internal/server"
	"github.com/tutorlane/scheduler/internal/service"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	slotRepo := repository.NewSlotRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	templateRepo := repository.NewTemplateRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	recorder := service.NewAuditRecorder(auditRepo, logger)
	recorder.Start()
	defer recorder.Stop()

	clk := clock.System()
	notifier := service.NewLogNotifier(logger)

	scheduling := service.NewSchedulingService(slotRepo, bookingRepo, sessionRepo, recorder, notifier, clk, logger)
	templates := service.NewTemplateService(slotRepo, templateRepo, recorder, clk, logger)

	reconciler := app.NewReconciler(scheduling, templates, logger)
	reconciler.Start(ctx)
	defer reconciler.Stop()

	handler := server.NewHandler(scheduling, templates, sessionRepo, auditRepo, clk, logger)
	router := server.NewRouter(handler, cfg.JWTSecret, cfg.Environment)

	logger.Info("Starting scheduling engine",
		zap.String("environment", cfg.Environment),
		zap.String("addr", cfg.HTTPAddr),
	)

	if err := server.Run(ctx, router, cfg.HTTPAddr, logger); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}
}
