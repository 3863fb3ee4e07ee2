package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillx/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new user with the signup credit grant and records the
// grant in the transaction log, atomically.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName, role string, signupCredits int64) (*models.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: passwordHash,
		Credits:      signupCredits,
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO users (id, email, display_name, role, password_hash, credits)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.DisplayName, u.Role, u.PasswordHash, u.Credits).Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}

	if signupCredits > 0 {
		if _, err := tx.Exec(ctx, `
			INSERT INTO transactions (id, user_id, amount, currency, type, status, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New(), u.ID, signupCredits, models.Currency, models.TxTypeSignupBonus,
			models.TxStatusCompleted, "Signup credit grant"); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByEmail returns the user for login. Returns nil when not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, role, password_hash, credits, created_at, updated_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.PasswordHash, &u.Credits, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
