package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillx/backend/internal/models"
)

// EscrowRepo persists escrow accounts. Written to exclusively by the escrow
// engine; settlement flips are guarded on status = 'held' so at most one
// settlement can ever succeed per account.
type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

// Create inserts a held escrow account inside the caller's transaction.
// The request_id primary key rejects a second escrow for the same request.
func (r *EscrowRepo) Create(ctx context.Context, tx pgx.Tx, e *models.EscrowAccount) error {
	return tx.QueryRow(ctx, `
		INSERT INTO escrow_accounts (request_id, client_id, freelancer_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, e.RequestID, e.ClientID, e.FreelancerID, e.Amount, e.Status).Scan(&e.CreatedAt)
}

func (r *EscrowRepo) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.EscrowAccount, error) {
	return scanEscrow(r.pool.QueryRow(ctx, `
		SELECT request_id, client_id, freelancer_id, amount, status, created_at, released_at, refunded_at
		FROM escrow_accounts WHERE request_id = $1
	`, requestID))
}

// GetByRequestIDForUpdate locks the escrow row. Call within a transaction.
func (r *EscrowRepo) GetByRequestIDForUpdate(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (*models.EscrowAccount, error) {
	return scanEscrow(tx.QueryRow(ctx, `
		SELECT request_id, client_id, freelancer_id, amount, status, created_at, released_at, refunded_at
		FROM escrow_accounts WHERE request_id = $1 FOR UPDATE
	`, requestID))
}

// MarkReleased flips held -> released. Returns false when the account was
// already settled; the status check and the flip are one statement.
func (r *EscrowRepo) MarkReleased(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_accounts SET status = $2, released_at = now()
		WHERE request_id = $1 AND status = $3
	`, requestID, models.EscrowStatusReleased, models.EscrowStatusHeld)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRefunded flips held -> refunded under the same guard as MarkReleased.
func (r *EscrowRepo) MarkRefunded(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_accounts SET status = $2, refunded_at = now()
		WHERE request_id = $1 AND status = $3
	`, requestID, models.EscrowStatusRefunded, models.EscrowStatusHeld)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanEscrow(row pgx.Row) (*models.EscrowAccount, error) {
	var e models.EscrowAccount
	err := row.Scan(&e.RequestID, &e.ClientID, &e.FreelancerID, &e.Amount, &e.Status,
		&e.CreatedAt, &e.ReleasedAt, &e.RefundedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
