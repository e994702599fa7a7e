package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"schedule-service/internal/config"
	"schedule-service/internal/logging"
	"schedule-service/internal/repository"
	"schedule-service/internal/worker"
)

const serviceName = "notification-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Env, serviceName)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	push, err := worker.NewAPNSClient(cfg)
	if err != nil {
		logger.Fatal("failed to initialize APNs client", zap.Error(err))
	}
	if push == nil {
		logger.Warn("APNs credentials not found, worker will run in mock mode")
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer nc.Drain()

	w := worker.New(push, repository.NewPostgresDeviceTokenRepository(db), nc, cfg.APNSTopic, logger)
	if _, err := w.Subscribe(ctx, nc); err != nil {
		logger.Fatal("failed to subscribe", zap.Error(err))
	}

	logger.Info("notification worker started, waiting for events")
	<-ctx.Done()
	logger.Info("shutting down notification worker")
}
