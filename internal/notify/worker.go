package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/skillx/backend/internal/models"
)

type DeliverNotificationArgs struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

func (DeliverNotificationArgs) Kind() string { return "deliver_notification" }

// NotificationLookup resolves the notification row written in the same
// transaction that enqueued the delivery job.
type NotificationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
}

// Deliverer is best-effort fan-out to out-of-band channels (email, push).
// The in-app notification row is already committed before this job runs.
type Deliverer interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

type DeliverNotificationWorker struct {
	river.WorkerDefaults[DeliverNotificationArgs]
	notifications NotificationLookup
	deliverer     Deliverer
	log           *slog.Logger
}

func NewDeliverNotificationWorker(notifications NotificationLookup, deliverer Deliverer, log *slog.Logger) *DeliverNotificationWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DeliverNotificationWorker{notifications: notifications, deliverer: deliverer, log: log}
}

func (w *DeliverNotificationWorker) Work(ctx context.Context, job *river.Job[DeliverNotificationArgs]) error {
	n, err := w.notifications.GetByID(ctx, job.Args.NotificationID)
	if err != nil {
		return fmt.Errorf("load notification %s: %w", job.Args.NotificationID, err)
	}
	if err := w.deliverer.Deliver(ctx, n); err != nil {
		return fmt.Errorf("deliver notification %s: %w", n.ID, err)
	}
	w.log.Info("notification delivered", "notification_id", n.ID, "user_id", n.UserID, "type", n.Type)
	return nil
}

// LogDeliverer writes deliveries to the log. Stands in until an email or
// push channel is wired.
type LogDeliverer struct {
	Log *slog.Logger
}

func (d *LogDeliverer) Deliver(_ context.Context, n *models.Notification) error {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification out-of-band delivery", "user_id", n.UserID, "title", n.Title)
	return nil
}
