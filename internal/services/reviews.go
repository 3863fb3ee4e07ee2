package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/skillx/backend/internal/models"
)

// ReviewRepoForService persists reviews inside a transaction.
type ReviewRepoForService interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, rev *models.Review) error
}

// ReviewRequestRepo links the review back to its request.
type ReviewRequestRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	SetReviewID(ctx context.Context, tx pgx.Tx, id, reviewID uuid.UUID) error
}

// RatingAggregator folds a rating into the service's running aggregate.
type RatingAggregator interface {
	AddRating(ctx context.Context, tx pgx.Tx, serviceID uuid.UUID, rating int) error
}

// ReviewService files reviews for completed requests. The service rating is
// a running sum and count updated with each review, so cost does not grow
// with review volume.
type ReviewService struct {
	reviews       ReviewRepoForService
	requests      ReviewRequestRepo
	ratings       RatingAggregator
	notifications LifecycleNotifier
	log           *slog.Logger
}

func NewReviewService(reviews ReviewRepoForService, requests ReviewRequestRepo, ratings RatingAggregator, notifications LifecycleNotifier, log *slog.Logger) *ReviewService {
	if log == nil {
		log = slog.Default()
	}
	return &ReviewService{reviews: reviews, requests: requests, ratings: ratings, notifications: notifications, log: log}
}

// Create files a review. Only the client of a completed request may review,
// once per request.
func (s *ReviewService) Create(ctx context.Context, actor Actor, requestID uuid.UUID, rating int, comment string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, mapNoRows(err, "request")
	}
	if req.ClientID != actor.ID {
		return nil, fmt.Errorf("%w: only the client can review this request", ErrForbidden)
	}
	if req.Status != models.RequestStatusCompleted {
		return nil, fmt.Errorf("%w: cannot review a %s request", ErrInvalidState, req.Status)
	}
	if req.ReviewID != nil {
		return nil, fmt.Errorf("%w: request already reviewed", ErrInvalidState)
	}

	rev := &models.Review{
		ID:           uuid.New(),
		ServiceID:    req.ServiceID,
		RequestID:    req.ID,
		ReviewerID:   actor.ID,
		FreelancerID: req.FreelancerID,
		Rating:       rating,
		Comment:      comment,
	}

	tx, err := s.reviews.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin review tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.reviews.CreateTx(ctx, tx, rev); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: request already reviewed", ErrInvalidState)
		}
		return nil, fmt.Errorf("create review: %w", err)
	}
	if err := s.requests.SetReviewID(ctx, tx, req.ID, rev.ID); err != nil {
		return nil, fmt.Errorf("link review: %w", err)
	}
	if err := s.ratings.AddRating(ctx, tx, req.ServiceID, rating); err != nil {
		return nil, fmt.Errorf("update rating aggregate: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit review tx: %w", err)
	}

	if s.notifications != nil {
		n := &models.Notification{
			ID:        uuid.New(),
			UserID:    req.FreelancerID,
			Title:     "New Review",
			Message:   fmt.Sprintf("You received a %d-star review for %q", rating, req.ServiceName),
			Type:      models.NotificationTypeReview,
			LinkTo:    "/dashboard/requests/" + req.ID.String(),
			RelatedID: &req.ID,
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			s.log.Error("create review notification", "error", err)
		}
	}
	return rev, nil
}
