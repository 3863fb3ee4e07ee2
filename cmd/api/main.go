package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/skillx/backend/internal/config"
	"github.com/skillx/backend/internal/notify"
	"github.com/skillx/backend/internal/repository"
	"github.com/skillx/backend/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := repository.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. make dev-up or docker-compose up -d", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL, migrations applied")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first (e.g. make dev-up)", "error", err)
		os.Exit(1)
	}

	// Repositories
	userRepo := repository.NewUserRepo(pool)
	requestRepo := repository.NewRequestRepo(pool)
	escrowRepo := repository.NewEscrowRepo(pool)
	transactionRepo := repository.NewTransactionRepo(pool)
	notificationRepo := repository.NewNotificationRepo(pool)
	reviewRepo := repository.NewReviewRepo(pool)
	serviceRepo := repository.NewServiceRepo(pool)

	// Notification enqueue func is set after the River client exists
	// (breaks the init cycle between engine and worker).
	var enqueueMu sync.Mutex
	var enqueueFn services.EnqueueNotifyTxFunc
	enqueueNotify := func(ctx context.Context, tx pgx.Tx, notificationID uuid.UUID) error {
		enqueueMu.Lock()
		fn := enqueueFn
		enqueueMu.Unlock()
		if fn == nil {
			return nil
		}
		return fn(ctx, tx, notificationID)
	}

	engine := services.NewEscrowEngine(pool, userRepo, escrowRepo, requestRepo, transactionRepo, notificationRepo, enqueueNotify, logger)
	lifecycle := services.NewLifecycle(requestRepo, serviceRepo, engine, notificationRepo, logger)
	reviews := services.NewReviewService(reviewRepo, requestRepo, serviceRepo, notificationRepo, logger)

	validator, err := services.NewValidator()
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}

	// Background workers
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewDeliverNotificationWorker(notificationRepo, &notify.LogDeliverer{Log: logger}, logger))

	var periodic []*river.PeriodicJob
	if cfg.AutoReleaseWindow > 0 {
		river.AddWorker(workers, notify.NewAutoReleaseWorker(requestRepo, engine, cfg.AutoReleaseWindow, logger))
		periodic = append(periodic, notify.AutoReleasePeriodicJob(cfg.AutoReleaseSweepInterval))
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	enqueueMu.Lock()
	enqueueFn = func(ctx context.Context, tx pgx.Tx, notificationID uuid.UUID) error {
		_, err := riverClient.InsertTx(ctx, tx, notify.DeliverNotificationArgs{NotificationID: notificationID}, nil)
		return err
	}
	enqueueMu.Unlock()

	apiRouter := buildRouter(cfg, pool, engine, lifecycle, reviews, validator,
		userRepo, escrowRepo, serviceRepo, reviewRepo, transactionRepo, notificationRepo, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
