package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction type values.
const (
	TxTypePaymentToEscrow = "payment_to_escrow"
	TxTypeEscrowRelease   = "escrow_release"
	TxTypeEscrowRefund    = "escrow_refund"
	TxTypeCreditPurchase  = "credit_purchase"
	TxTypeSignupBonus     = "signup_bonus"
)

// TxStatusCompleted is the only status the engine writes; failed movements
// never reach the log because the surrounding transaction rolls back.
const TxStatusCompleted = "completed"

// Currency is fixed platform-wide; no multi-currency conversion.
const Currency = "USD"

// Transaction is an immutable audit entry. Rows are never updated or
// deleted; corrections are new compensating entries.
type Transaction struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	RequestID   *uuid.UUID `json:"request_id,omitempty"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}
