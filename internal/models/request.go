package models

import (
	"time"

	"github.com/google/uuid"
)

// Service request status values.
const (
	RequestStatusPending           = "pending"
	RequestStatusAccepted          = "accepted"
	RequestStatusRejected          = "rejected"
	RequestStatusCancelled         = "cancelled"
	RequestStatusInProgress        = "in_progress"
	RequestStatusDelivered         = "delivered"
	RequestStatusRevisionRequested = "revision_requested"
	RequestStatusCompleted         = "completed"
)

// Payment status values. paid and refunded are only reachable through
// in_escrow; the escrow engine owns those flips.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusInEscrow = "in_escrow"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

// ServiceRequest is one client's engagement of one freelancer's service.
// ClientID and FreelancerID are immutable after creation.
type ServiceRequest struct {
	ID            uuid.UUID  `json:"id"`
	ServiceID     uuid.UUID  `json:"service_id"`
	ServiceName   string     `json:"service_name"`
	ClientID      uuid.UUID  `json:"client_id"`
	FreelancerID  uuid.UUID  `json:"freelancer_id"`
	Requirements  string     `json:"requirements"`
	TimelineDays  int        `json:"timeline_days"`
	Budget        int64      `json:"budget"`
	Attachments   []string   `json:"attachments,omitempty"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	DeliveryFiles []string   `json:"delivery_files,omitempty"`
	ReviewID      *uuid.UUID `json:"review_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Terminal reports whether no further lifecycle transitions are possible.
func (r *ServiceRequest) Terminal() bool {
	switch r.Status {
	case RequestStatusRejected, RequestStatusCancelled, RequestStatusCompleted:
		return true
	}
	return false
}
