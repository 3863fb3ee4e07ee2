package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification type values.
const (
	NotificationTypeRequest = "request"
	NotificationTypePayment = "payment"
	NotificationTypeReview  = "review"
	NotificationTypeSystem  = "system"
)

type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	Read      bool       `json:"read"`
	LinkTo    string     `json:"link_to,omitempty"`
	RelatedID *uuid.UUID `json:"related_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
