package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/skillx/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockReviews struct {
	mu      sync.Mutex
	reviews map[uuid.UUID]*models.Review // keyed by request id
}

func newMockReviews() *mockReviews {
	return &mockReviews{reviews: make(map[uuid.UUID]*models.Review)}
}

func (m *mockReviews) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

func (m *mockReviews) CreateTx(_ context.Context, _ pgx.Tx, rev *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// request_id carries a unique constraint.
	if _, ok := m.reviews[rev.RequestID]; ok {
		return &pgconn.PgError{Code: "23505"}
	}
	cp := *rev
	m.reviews[rev.RequestID] = &cp
	return nil
}

type mockReviewRequests struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*models.ServiceRequest
}

func (m *mockReviewRequests) GetByID(_ context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (m *mockReviewRequests) SetReviewID(_ context.Context, _ pgx.Tx, id, reviewID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[id].ReviewID = &reviewID
	return nil
}

type mockRatings struct {
	sum   int64
	count int64
}

func (m *mockRatings) AddRating(_ context.Context, _ pgx.Tx, _ uuid.UUID, rating int) error {
	m.sum += int64(rating)
	m.count++
	return nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func reviewFixture(status string) (*ReviewService, *mockReviewRequests, *mockRatings, *models.ServiceRequest) {
	req := &models.ServiceRequest{
		ID:           uuid.New(),
		ServiceID:    uuid.New(),
		ServiceName:  "Logo design",
		ClientID:     uuid.New(),
		FreelancerID: uuid.New(),
		Status:       status,
	}
	requests := &mockReviewRequests{requests: map[uuid.UUID]*models.ServiceRequest{req.ID: req}}
	ratings := &mockRatings{}
	svc := NewReviewService(newMockReviews(), requests, ratings, &mockNotifier{}, nil)
	return svc, requests, ratings, req
}

func TestCreateReview(t *testing.T) {
	svc, requests, ratings, req := reviewFixture(models.RequestStatusCompleted)
	ctx := context.Background()
	client := Actor{ID: req.ClientID, Role: models.RoleClient}

	rev, err := svc.Create(ctx, client, req.ID, 5, "great work")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rev.ServiceID != req.ServiceID || rev.FreelancerID != req.FreelancerID {
		t.Error("review must link the request's service and freelancer")
	}
	if ratings.sum != 5 || ratings.count != 1 {
		t.Errorf("rating aggregate: sum %d count %d, want 5/1", ratings.sum, ratings.count)
	}
	linked, _ := requests.GetByID(ctx, req.ID)
	if linked.ReviewID == nil || *linked.ReviewID != rev.ID {
		t.Error("request must be linked to its review")
	}

	// One review per request.
	if _, err := svc.Create(ctx, client, req.ID, 4, "again"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second review: expected ErrInvalidState, got %v", err)
	}
	if ratings.count != 1 {
		t.Errorf("aggregate must not move on rejected review: count %d", ratings.count)
	}
}

func TestCreateReviewGuards(t *testing.T) {
	ctx := context.Background()

	svc, _, _, req := reviewFixture(models.RequestStatusCompleted)
	client := Actor{ID: req.ClientID, Role: models.RoleClient}

	if _, err := svc.Create(ctx, client, req.ID, 0, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("rating 0: expected ErrValidation, got %v", err)
	}
	if _, err := svc.Create(ctx, client, req.ID, 6, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("rating 6: expected ErrValidation, got %v", err)
	}

	freelancer := Actor{ID: req.FreelancerID, Role: models.RoleFreelancer}
	if _, err := svc.Create(ctx, freelancer, req.ID, 5, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("freelancer reviewing: expected ErrForbidden, got %v", err)
	}

	if _, err := svc.Create(ctx, client, uuid.New(), 5, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown request: expected ErrNotFound, got %v", err)
	}

	// Only completed requests can be reviewed.
	svc, _, _, req = reviewFixture(models.RequestStatusDelivered)
	client = Actor{ID: req.ClientID, Role: models.RoleClient}
	if _, err := svc.Create(ctx, client, req.ID, 5, ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("review before completion: expected ErrInvalidState, got %v", err)
	}
}
