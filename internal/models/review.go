package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is filed by the client of a completed request, once per request.
type Review struct {
	ID           uuid.UUID `json:"id"`
	ServiceID    uuid.UUID `json:"service_id"`
	RequestID    uuid.UUID `json:"request_id"`
	ReviewerID   uuid.UUID `json:"reviewer_id"`
	FreelancerID uuid.UUID `json:"freelancer_id"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"created_at"`
}

// Service listing status values.
const (
	ServiceStatusActive = "active"
	ServiceStatusPaused = "paused"
)

// Service is the listing a request is made against. The rating aggregate is
// maintained incrementally on review creation instead of re-scanning all
// reviews.
type Service struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       int64     `json:"price"`
	Status      string    `json:"status"`
	RatingSum   int64     `json:"-"`
	RatingCount int64     `json:"rating_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// AverageRating returns the running average, or 0 with no reviews.
func (s *Service) AverageRating() float64 {
	if s.RatingCount == 0 {
		return 0
	}
	return float64(s.RatingSum) / float64(s.RatingCount)
}
