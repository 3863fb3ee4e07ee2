package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillx/backend/internal/models"
)

const requestColumns = `id, service_id, service_name, client_id, freelancer_id, requirements,
	timeline_days, budget, attachments, status, payment_status, delivery_files, review_id,
	created_at, updated_at`

type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

func (r *RequestRepo) Create(ctx context.Context, req *models.ServiceRequest) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO requests (id, service_id, service_name, client_id, freelancer_id, requirements,
			timeline_days, budget, attachments, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, req.ID, req.ServiceID, req.ServiceName, req.ClientID, req.FreelancerID, req.Requirements,
		req.TimelineDays, req.Budget, req.Attachments, req.Status, req.PaymentStatus).
		Scan(&req.CreatedAt, &req.UpdatedAt)
}

func (r *RequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	return scanRequest(r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1`, id))
}

// GetByIDForUpdate locks the request row. Call within a transaction.
func (r *RequestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ServiceRequest, error) {
	return scanRequest(tx.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1 FOR UPDATE`, id))
}

// TransitionStatus flips status only when the current persisted status still
// matches from. Returns false when the row no longer satisfies the
// precondition, which means another actor got there first.
func (r *RequestRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE requests SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetDelivered records delivery files and flips to delivered in one statement,
// guarded on the current status so a stale submission cannot overwrite.
func (r *RequestRepo) SetDelivered(ctx context.Context, id uuid.UUID, from string, files []string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE requests SET status = $3, delivery_files = $4, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, models.RequestStatusDelivered, files)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetStatusTx updates status inside the caller's transaction. Callers must
// hold the row lock (GetByIDForUpdate) so the precondition they validated
// still holds.
func (r *RequestRepo) SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE requests SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}

// SetPaymentStatus updates payment_status inside the caller's transaction.
func (r *RequestRepo) SetPaymentStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, paymentStatus string) error {
	_, err := tx.Exec(ctx, `
		UPDATE requests SET payment_status = $2, updated_at = now() WHERE id = $1
	`, id, paymentStatus)
	return err
}

// SetReviewID links a filed review to its request, inside the caller's transaction.
func (r *RequestRepo) SetReviewID(ctx context.Context, tx pgx.Tx, id, reviewID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE requests SET review_id = $2, updated_at = now() WHERE id = $1 AND review_id IS NULL
	`, id, reviewID)
	return err
}

func (r *RequestRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.ServiceRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE client_id = $1 OR freelancer_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, req)
	}
	return list, rows.Err()
}

// ListDeliveredBefore returns requests still awaiting client approval whose
// delivery happened before the cutoff and whose funds sit in escrow. Used by
// the auto-release sweep.
func (r *RequestRepo) ListDeliveredBefore(ctx context.Context, cutoff time.Time) ([]*models.ServiceRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE status = $1 AND payment_status = $2 AND updated_at < $3
	`, models.RequestStatusDelivered, models.PaymentStatusInEscrow, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, req)
	}
	return list, rows.Err()
}

func scanRequest(row pgx.Row) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	err := row.Scan(&req.ID, &req.ServiceID, &req.ServiceName, &req.ClientID, &req.FreelancerID,
		&req.Requirements, &req.TimelineDays, &req.Budget, &req.Attachments, &req.Status,
		&req.PaymentStatus, &req.DeliveryFiles, &req.ReviewID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
