package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/josh-kwaku/valorpoint/internal/config"
	"github.com/josh-kwaku/valorpoint/internal/events"
	"github.com/josh-kwaku/valorpoint/internal/handler"
	"github.com/josh-kwaku/valorpoint/internal/logging"
	"github.com/josh-kwaku/valorpoint/internal/repository"
	"github.com/josh-kwaku/valorpoint/internal/service"
	"github.com/josh-kwaku/valorpoint/migrations"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("valorpoint-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}, 30)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.AutoMigrate {
		applied, err := migrations.Up(ctx, db)
		if err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("migrations applied", "versions", applied)
	}

	publisher, brokerCheck := newPublisher(cfg, logger)
	defer publisher.Close()

	app := newApp(cfg, db)
	if brokerCheck != nil {
		app.health.WithCheck("broker", brokerCheck)
	}

	dispatcher := service.NewOutboxDispatcher(
		app.eventRepo, publisher, db,
		logger.With("component", "outbox"),
		cfg.OutboxPollInterval, cfg.OutboxBatchSize, cfg.PublishTimeout,
	)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Start(ctx)
	}()

	maintenance := service.NewMaintenance(app.replayRepo, logger.With("component", "maintenance"), cfg.IdempotencyCleanupSchedule)
	if err := maintenance.Start(); err != nil {
		slog.Error("failed to start maintenance", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.routes(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	select {
	case <-maintenance.Stop().Done():
	case <-shutdownCtx.Done():
		slog.Warn("maintenance job still running at shutdown")
	}
	<-dispatchDone

	slog.Info("server stopped")
}

// newPublisher connects to the broker when AMQP_URL is set. Without a broker
// the outbox still drains, into the log.
func newPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, handler.ReadinessCheck) {
	if cfg.AMQPURL == "" {
		slog.Info("AMQP_URL not set, account events will be logged only")
		return events.NewLogPublisher(logger), nil
	}

	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange)
	if err != nil {
		slog.Error("broker unavailable, falling back to log publisher", "error", err)
		return events.NewLogPublisher(logger), nil
	}
	slog.Info("publishing account events", "exchange", cfg.EventsExchange)
	return p, p.Healthy
}
