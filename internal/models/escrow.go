package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow account status values. An account leaves held exactly once.
const (
	EscrowStatusHeld     = "held"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
)

// EscrowAccount holds funds for one service request while work is in flight.
// Keyed by request id, so at most one escrow can exist per request. Amount is
// fixed at creation.
type EscrowAccount struct {
	RequestID    uuid.UUID  `json:"request_id"`
	ClientID     uuid.UUID  `json:"client_id"`
	FreelancerID uuid.UUID  `json:"freelancer_id"`
	Amount       int64      `json:"amount"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
	RefundedAt   *time.Time `json:"refunded_at,omitempty"`
}

// ExternalID returns the escrow identifier exposed on the API,
// derived from the request id.
func (e *EscrowAccount) ExternalID() string {
	return "escrow_" + e.RequestID.String()
}
