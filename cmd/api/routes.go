package main

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillx/backend/internal/auth"
	"github.com/skillx/backend/internal/catalog"
	"github.com/skillx/backend/internal/config"
	"github.com/skillx/backend/internal/dashboard"
	"github.com/skillx/backend/internal/handlers"
	"github.com/skillx/backend/internal/repository"
	"github.com/skillx/backend/internal/router"
	"github.com/skillx/backend/internal/services"
)

// buildRouter assembles the handler layer over the core services and
// returns the /api/v1 router.
func buildRouter(
	cfg *config.Config,
	pool *pgxpool.Pool,
	engine *services.EscrowEngine,
	lifecycle *services.Lifecycle,
	reviews *services.ReviewService,
	validator *services.Validator,
	userRepo *repository.UserRepo,
	escrowRepo *repository.EscrowRepo,
	serviceRepo *repository.ServiceRepo,
	reviewRepo *repository.ReviewRepo,
	transactionRepo *repository.TransactionRepo,
	notificationRepo *repository.NotificationRepo,
	logger *slog.Logger,
) http.Handler {
	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret, cfg.SignupCredits)
	authHandler := auth.NewHandler(authSvc, logger)

	catalogSvc := catalog.NewService(serviceRepo, reviewRepo)
	catalogHandler := catalog.NewHandler(catalogSvc, logger)

	requestHandler := &handlers.RequestHandler{Lifecycle: lifecycle, Engine: engine, Logger: logger}
	escrowHandler := &handlers.EscrowHandler{Engine: engine, Lookup: escrowRepo, Logger: logger}
	creditsHandler := &handlers.CreditsHandler{Engine: engine, Logger: logger}
	reviewHandler := &handlers.ReviewHandler{Reviews: reviews, Logger: logger}
	dashHandler := dashboard.NewHandler(userRepo, transactionRepo, notificationRepo, logger)

	return router.New(authSvc, authHandler, requestHandler, escrowHandler, creditsHandler, reviewHandler, catalogHandler, dashHandler, validator)
}
