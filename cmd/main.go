package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dosada05/club-events/config"
	"github.com/Dosada05/club-events/db"
	"github.com/Dosada05/club-events/handlers"
	"github.com/Dosada05/club-events/live"
	"github.com/Dosada05/club-events/metrics"
	"github.com/Dosada05/club-events/queue"
	"github.com/Dosada05/club-events/repositories"
	api "github.com/Dosada05/club-events/routes"
	"github.com/Dosada05/club-events/services"
	"github.com/Dosada05/club-events/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	if err := run(cfg, logger); err != nil {
		logger.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level, TimeFormat: time.Kitchen}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	location, err := time.LoadLocation(cfg.SchedulerTimezone)
	if err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", cfg.SchedulerTimezone, err)
	}

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	if err := db.Migrate(ctx, dbConn); err != nil {
		return err
	}
	logger.Info("database schema applied")

	database := repositories.NewPostgresDatabase(dbConn)
	m := metrics.New(prometheus.DefaultRegisterer)

	notifyQueue, err := newQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var notifier services.Notifier
	if cfg.SMTPEnabled() {
		notifier = services.NewSMTPNotifier(cfg)
		logger.Info("SMTP notifier enabled", slog.String("host", cfg.SMTPHost), slog.Int("port", cfg.SMTPPort))
	} else {
		notifier = services.NewLogNotifier(logger)
		logger.Warn("SMTP is not configured, notifications are only logged")
	}

	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	defer stopDispatcher()
	dispatcher := services.NewDispatcher(notifyQueue, notifier, services.DispatcherConfig{
		Workers: cfg.NotifyWorkers,
		Timeout: cfg.NotifyTimeout,
	}, logger, m)
	dispatcher.Start(dispatcherCtx)

	hub := live.NewHub(logger)
	go hub.Run(ctx)
	logger.Info("WebSocket hub started")

	var archiver services.RosterArchiver
	if cfg.R2Enabled() {
		uploader, err := storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
		}
		archiver = storage.NewRosterArchive(uploader)
		logger.Info("roster archive enabled", slog.String("bucket", cfg.R2BucketName))
	}

	identity := services.NewJWTIdentity(cfg.JWTSecretKey, services.DefaultTokenTTL)
	ledger := services.NewScoreLedger()
	clubNow := func() time.Time { return time.Now().In(location) }

	registrationService := services.NewRegistrationService(database, ledger, dispatcher, hub, logger, m)
	allocationService := services.NewAllocationService(
		database,
		registrationService,
		services.NewRandomShuffler(),
		dispatcher,
		hub,
		archiver,
		logger,
		m,
		services.WithAllocationClock(clubNow),
	)
	eventService := services.NewEventService(database, ledger, hub, logger)
	memberService := services.NewMemberService(database.Members(), registrationService)
	authService := services.NewAuthService(database.Members(), identity)
	logger.Info("services initialized")

	scheduler, err := services.NewDeadlineScheduler(database.Events(), allocationService, services.SchedulerConfig{
		RunAt:        cfg.SchedulerRunAt,
		Location:     location,
		Concurrency:  cfg.SchedulerConcurrency,
		EventTimeout: cfg.SchedulerEventTimeout,
	}, logger, m)
	if err != nil {
		return err
	}
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(ctx)
	}()

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		logger,
		identity,
		cfg.CORSAllowedOrigins,
		handlers.NewAuthHandler(authService, memberService, registrationService),
		handlers.NewEventHandler(eventService, allocationService),
		handlers.NewParticipationHandler(registrationService),
		handlers.NewMemberHandler(memberService),
		handlers.NewWebSocketHandler(hub, eventService, cfg.CORSAllowedOrigins, logger),
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}
	stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("failed to force close server", slog.Any("error", closeErr))
		}
	}

	<-schedulerDone

	// Workers drain what is already queued, then stop.
	if err := notifyQueue.Close(); err != nil {
		logger.Error("failed to close notification queue", slog.Any("error", err))
	}
	drained := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		stopDispatcher()
		<-drained
	}
	logger.Info("server shutdown complete")
	return nil
}

func newQueue(ctx context.Context, cfg *config.Config, logger *slog.Logger) (queue.Queue, error) {
	if cfg.RedisURL == "" {
		logger.Info("using in-memory notification queue", slog.Int("size", cfg.NotifyQueueSize))
		return queue.NewMemoryQueue(cfg.NotifyQueueSize), nil
	}
	client, err := queue.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("using redis notification queue", slog.String("key", queue.DefaultRedisKey))
	return queue.NewRedisQueue(client, queue.DefaultRedisKey, cfg.NotifyQueueSize), nil
}
