package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillx/backend/internal/models"
)

type ReviewRepo struct {
	pool *pgxpool.Pool
}

func NewReviewRepo(pool *pgxpool.Pool) *ReviewRepo {
	return &ReviewRepo{pool: pool}
}

func (r *ReviewRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// CreateTx inserts the review inside the caller's transaction. The unique
// request_id constraint rejects a second review for the same request.
func (r *ReviewRepo) CreateTx(ctx context.Context, tx pgx.Tx, rev *models.Review) error {
	return tx.QueryRow(ctx, `
		INSERT INTO reviews (id, service_id, request_id, reviewer_id, freelancer_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, rev.ID, rev.ServiceID, rev.RequestID, rev.ReviewerID, rev.FreelancerID, rev.Rating, rev.Comment).
		Scan(&rev.CreatedAt)
}

func (r *ReviewRepo) ListByServiceID(ctx context.Context, serviceID uuid.UUID) ([]*models.Review, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, service_id, request_id, reviewer_id, freelancer_id, rating, comment, created_at
		FROM reviews WHERE service_id = $1 ORDER BY created_at DESC
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Review
	for rows.Next() {
		var rev models.Review
		if err := rows.Scan(&rev.ID, &rev.ServiceID, &rev.RequestID, &rev.ReviewerID, &rev.FreelancerID,
			&rev.Rating, &rev.Comment, &rev.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &rev)
	}
	return list, rows.Err()
}

// ServiceRepo maintains service listings and their running rating aggregate.
type ServiceRepo struct {
	pool *pgxpool.Pool
}

func NewServiceRepo(pool *pgxpool.Pool) *ServiceRepo {
	return &ServiceRepo{pool: pool}
}

const serviceColumns = `id, owner_id, name, slug, description, category, price, status,
	rating_sum, rating_count, created_at`

func (r *ServiceRepo) Create(ctx context.Context, s *models.Service) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO services (id, owner_id, name, slug, description, category, price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, s.ID, s.OwnerID, s.Name, s.Slug, s.Description, s.Category, s.Price, s.Status).Scan(&s.CreatedAt)
}

func (r *ServiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	return scanService(r.pool.QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
}

// ListActive returns listings open for new requests, newest first.
func (r *ServiceRepo) ListActive(ctx context.Context) ([]*models.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+` FROM services
		WHERE status = 'active' ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanService(row pgx.Row) (*models.Service, error) {
	var s models.Service
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Slug, &s.Description, &s.Category,
		&s.Price, &s.Status, &s.RatingSum, &s.RatingCount, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AddRating folds one new rating into the running sum and count, inside the
// caller's transaction. Cost stays constant no matter how many reviews exist.
func (r *ServiceRepo) AddRating(ctx context.Context, tx pgx.Tx, serviceID uuid.UUID, rating int) error {
	_, err := tx.Exec(ctx, `
		UPDATE services SET rating_sum = rating_sum + $2, rating_count = rating_count + 1
		WHERE id = $1
	`, serviceID, rating)
	return err
}
