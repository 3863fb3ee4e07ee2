package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/skillx/backend/internal/models"
	"github.com/skillx/backend/internal/services"
)

// ServiceStore is the listing repository slice the catalog uses.
type ServiceStore interface {
	Create(ctx context.Context, s *models.Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
	ListActive(ctx context.Context) ([]*models.Service, error)
}

// ReviewStore lists reviews for a service detail view.
type ReviewStore interface {
	ListByServiceID(ctx context.Context, serviceID uuid.UUID) ([]*models.Review, error)
}

type Service interface {
	CreateListing(ctx context.Context, actor services.Actor, name, description, category string, price int64) (*models.Service, error)
	ListActive(ctx context.Context) ([]*models.Service, error)
	GetListing(ctx context.Context, id uuid.UUID) (*models.Service, []*models.Review, error)
}

type catalog struct {
	listings ServiceStore
	reviews  ReviewStore
}

func NewService(listings ServiceStore, reviews ReviewStore) *catalog {
	return &catalog{listings: listings, reviews: reviews}
}

var _ Service = (*catalog)(nil)

var slugSanitize = regexp.MustCompile(`[^a-z0-9-]+`)

func slugFromName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugSanitize.ReplaceAllString(s, "")
	if s == "" {
		s = "service"
	}
	return s + "-" + uuid.New().String()[:8]
}

// CreateListing opens a new service listing. Only freelancers list services.
func (c *catalog) CreateListing(ctx context.Context, actor services.Actor, name, description, category string, price int64) (*models.Service, error) {
	if actor.Role != models.RoleFreelancer && !actor.Admin() {
		return nil, fmt.Errorf("%w: only freelancers can list services", services.ErrForbidden)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", services.ErrValidation)
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", services.ErrValidation)
	}
	s := &models.Service{
		ID:          uuid.New(),
		OwnerID:     actor.ID,
		Name:        strings.TrimSpace(name),
		Slug:        slugFromName(name),
		Description: description,
		Category:    strings.ToLower(strings.TrimSpace(category)),
		Price:       price,
		Status:      models.ServiceStatusActive,
	}
	if err := c.listings.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *catalog) ListActive(ctx context.Context) ([]*models.Service, error) {
	return c.listings.ListActive(ctx)
}

// GetListing returns one listing with its reviews.
func (c *catalog) GetListing(ctx context.Context, id uuid.UUID) (*models.Service, []*models.Review, error) {
	s, err := c.listings.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	reviews, err := c.reviews.ListByServiceID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return s, reviews, nil
}
