package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/skillx/backend/internal/models"
	"github.com/skillx/backend/internal/services"
)

type AutoReleaseArgs struct{}

func (AutoReleaseArgs) Kind() string { return "escrow_auto_release" }

// DeliveredLister finds delivered requests whose escrow is still held past
// the release window.
type DeliveredLister interface {
	ListDeliveredBefore(ctx context.Context, cutoff time.Time) ([]*models.ServiceRequest, error)
}

type EscrowReleaser interface {
	ReleaseEscrow(ctx context.Context, requestID uuid.UUID, actor services.Actor) (*models.EscrowAccount, error)
}

// AutoReleaseWorker sweeps delivered requests the client never approved and
// releases their escrow to the freelancer after the configured window.
type AutoReleaseWorker struct {
	river.WorkerDefaults[AutoReleaseArgs]
	requests DeliveredLister
	engine   EscrowReleaser
	window   time.Duration
	log      *slog.Logger
}

func NewAutoReleaseWorker(requests DeliveredLister, engine EscrowReleaser, window time.Duration, log *slog.Logger) *AutoReleaseWorker {
	if log == nil {
		log = slog.Default()
	}
	return &AutoReleaseWorker{requests: requests, engine: engine, window: window, log: log}
}

func (w *AutoReleaseWorker) Work(ctx context.Context, _ *river.Job[AutoReleaseArgs]) error {
	cutoff := time.Now().Add(-w.window)
	stale, err := w.requests.ListDeliveredBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	system := services.Actor{Role: models.RoleAdmin}
	for _, req := range stale {
		if req.PaymentStatus != models.PaymentStatusInEscrow {
			continue
		}
		if _, err := w.engine.ReleaseEscrow(ctx, req.ID, system); err != nil {
			// A concurrent manual settlement wins the race; skip it.
			if errors.Is(err, services.ErrAlreadyProcessed) || errors.Is(err, services.ErrInvalidState) {
				continue
			}
			w.log.Error("auto-release failed", "request_id", req.ID, "error", err)
			continue
		}
		w.log.Info("escrow auto-released", "request_id", req.ID, "delivered_at", req.UpdatedAt)
	}
	return nil
}

// AutoReleasePeriodicJob returns the periodic sweep definition for river.Config.
func AutoReleasePeriodicJob(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return AutoReleaseArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
