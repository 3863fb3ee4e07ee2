package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles. Admin is the escalation path for dispute resolution and
// bypasses ownership checks on lifecycle and escrow actions.
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
	RoleAdmin      = "admin"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	// Credits is the platform-held balance in whole credits (USD-equivalent).
	// Mutated only through ledger operations; never overwritten directly
	// except the signup grant.
	Credits   int64     `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
