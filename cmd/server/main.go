package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"schedule-service/internal/api"
	"schedule-service/internal/config"
	"schedule-service/internal/dispatch"
	"schedule-service/internal/events"
	"schedule-service/internal/hub"
	"schedule-service/internal/jwt"
	"schedule-service/internal/logging"
	"schedule-service/internal/model"
	"schedule-service/internal/repository"
	"schedule-service/internal/service"
	"schedule-service/internal/storage"
	"schedule-service/internal/tracing"
	_ "schedule-service/migrations"
)

const (
	serviceName     = "schedule-service"
	shutdownTimeout = 10 * time.Second
)

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

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		handleMigrations(cfg, logger)
		return
	}

	shutdownTracer, err := tracing.InitTracerProvider(serviceName, cfg.OtelEndpoint, logger)
	if err != nil {
		logger.Fatal("failed to initialize OpenTelemetry", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("error shutting down tracer provider", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to the database")

	publisher, nc, err := events.NewNatsPublisher(cfg.NatsURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer nc.Drain()
	logger.Info("connected to NATS", zap.String("url", cfg.NatsURL))

	profile, _ := service.ParseProfile(cfg.LifecycleProfile)

	queue := dispatch.NewQueue(cfg.DispatchQueueSize, cfg.DispatchWorkers, logger)
	queue.Start()

	realtime := hub.New(hub.Config{
		BufferSize:        cfg.HubBufferSize,
		ClientSendBuffer:  cfg.ClientSendBuffer,
		MessagesPerSecond: cfg.SocketMessagesPerSecond,
	}, logger)
	go func() {
		if err := realtime.Run(ctx); err != nil {
			logger.Error("hub stopped", zap.Error(err))
		}
	}()

	userRepo := repository.NewPostgresUserRepository(db)
	sessionRepo := repository.NewPostgresSessionRepository(db)
	notificationRepo := repository.NewPostgresNotificationRepository(db)
	messageRepo := repository.NewPostgresMessageRepository(db)
	deviceRepo := repository.NewPostgresDeviceTokenRepository(db)

	notifier := service.NewNotifier(realtime, queue, publisher, userRepo, logger)
	notificationService := service.NewNotificationService(notificationRepo, userRepo, notifier, logger)
	sessionService := service.NewSessionService(sessionRepo, userRepo, notificationService, notifier,
		service.NewLifecycle(profile, time.Now), logger)

	var presigner service.AttachmentPresigner
	if cfg.S3Configured() {
		p, err := storage.NewFilePresigner(ctx, storage.Options{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.AWSRegion,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.AWSAccessKey,
			SecretKey:    cfg.AWSSecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			logger.Fatal("failed to initialize attachment storage", zap.Error(err))
		}
		presigner = p
	} else {
		logger.Warn("S3 is not configured, attachment uploads are disabled")
	}
	messageService := service.NewMessageService(messageRepo, userRepo, notificationService, notifier, presigner, logger)
	deviceService := service.NewDeviceService(deviceRepo)

	app := api.NewApp(api.RouterConfig{
		ServiceName:     serviceName,
		JWTSecret:       cfg.JWTSecret,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateWindow(),
	}, api.Handlers{
		Sessions:      api.NewSessionHandler(sessionService, logger),
		Notifications: api.NewNotificationHandler(notificationService, logger),
		Messages:      api.NewMessageHandler(messageService, logger),
		Devices:       api.NewDeviceHandler(deviceService, logger),
	}, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", realtime.Handler(func(token string) (model.Identity, error) {
		return jwt.Authenticate(cfg.JWTSecret, token)
	}, api.NewSocketEvents(messageService, logger)))
	wsServer := &http.Server{
		Addr:              ":" + cfg.WSPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("realtime endpoint listening", zap.String("port", cfg.WSPort))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("websocket server failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("http api listening", zap.String("port", cfg.Port), zap.String("profile", string(profile)))
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("websocket shutdown", zap.Error(err))
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		logger.Warn("side-effect queue did not drain", zap.Error(err))
	}
}

func handleMigrations(cfg *config.Config, logger *zap.Logger) {
	logger.Info("running database migrations")

	db, err := sql.Open("pgx", cfg.DatabaseURL())
	if err != nil {
		logger.Fatal("failed to connect to database for migration", zap.Error(err))
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Fatal("failed to set goose dialect", zap.Error(err))
	}

	if err := goose.Up(db, "migrations"); err != nil {
		logger.Fatal("goose: failed to run migrations", zap.Error(err))
	}

	logger.Info("migrations applied successfully")
}
