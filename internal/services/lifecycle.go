package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/skillx/backend/internal/models"
)

// LifecycleRequestRepo is the request store interface for the controller.
// TransitionStatus and SetDelivered re-check the persisted status as part of
// the update; false means the request moved on since it was read.
type LifecycleRequestRepo interface {
	Create(ctx context.Context, req *models.ServiceRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	SetDelivered(ctx context.Context, id uuid.UUID, from string, files []string) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.ServiceRequest, error)
}

// ServiceLookup resolves the listing a request is made against.
type ServiceLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

// LifecycleNotifier writes a standalone notification record.
type LifecycleNotifier interface {
	Create(ctx context.Context, n *models.Notification) error
}

// EscrowReleaser is the slice of the escrow engine the controller uses when
// client approval triggers a release.
type EscrowReleaser interface {
	ReleaseEscrow(ctx context.Context, requestID uuid.UUID, actor Actor) (*models.EscrowAccount, error)
}

// Lifecycle translates actor intents (accept, decline, deliver, approve...)
// into guarded request transitions, delegating value movement to the escrow
// engine. It never trusts a status it read earlier: every transition is a
// compare-and-swap against the persisted row.
type Lifecycle struct {
	requests      LifecycleRequestRepo
	services      ServiceLookup
	engine        EscrowReleaser
	notifications LifecycleNotifier
	log           *slog.Logger
}

func NewLifecycle(requests LifecycleRequestRepo, services ServiceLookup, engine EscrowReleaser, notifications LifecycleNotifier, log *slog.Logger) *Lifecycle {
	if log == nil {
		log = slog.Default()
	}
	return &Lifecycle{requests: requests, services: services, engine: engine, notifications: notifications, log: log}
}

// CreateInput is the client-supplied body for a new service request.
type CreateInput struct {
	ServiceID    uuid.UUID
	Requirements string
	TimelineDays int
	Budget       int64
	Attachments  []string
}

// Create opens a pending request against a service listing. Only clients
// create requests; the freelancer party comes from the listing owner.
func (l *Lifecycle) Create(ctx context.Context, actor Actor, in CreateInput) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleClient {
		return nil, fmt.Errorf("%w: only clients can create requests", ErrForbidden)
	}
	if in.Requirements == "" || in.TimelineDays <= 0 || in.Budget <= 0 {
		return nil, fmt.Errorf("%w: requirements, timeline and budget are required", ErrValidation)
	}
	svc, err := l.services.GetByID(ctx, in.ServiceID)
	if err != nil {
		return nil, mapNoRows(err, "service")
	}
	if svc.OwnerID == actor.ID {
		return nil, fmt.Errorf("%w: cannot request your own service", ErrValidation)
	}

	req := &models.ServiceRequest{
		ID:            uuid.New(),
		ServiceID:     svc.ID,
		ServiceName:   svc.Name,
		ClientID:      actor.ID,
		FreelancerID:  svc.OwnerID,
		Requirements:  in.Requirements,
		TimelineDays:  in.TimelineDays,
		Budget:        in.Budget,
		Attachments:   in.Attachments,
		Status:        models.RequestStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
	if err := l.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	l.notifyAsync(ctx, &models.Notification{
		ID:        uuid.New(),
		UserID:    req.FreelancerID,
		Title:     "New Service Request",
		Message:   fmt.Sprintf("You have a new request for %q", req.ServiceName),
		Type:      models.NotificationTypeRequest,
		LinkTo:    "/dashboard/requests/" + req.ID.String(),
		RelatedID: &req.ID,
	})
	return req, nil
}

// Accept: freelancer takes on a pending request.
func (l *Lifecycle) Accept(ctx context.Context, actor Actor, requestID uuid.UUID) (*models.ServiceRequest, error) {
	return l.transition(ctx, actor, requestID, transitionSpec{
		from:     []string{models.RequestStatusPending},
		to:       models.RequestStatusAccepted,
		byClient: false,
	})
}

// Decline: freelancer turns down a pending request. Terminal.
func (l *Lifecycle) Decline(ctx context.Context, actor Actor, requestID uuid.UUID) (*models.ServiceRequest, error) {
	return l.transition(ctx, actor, requestID, transitionSpec{
		from:     []string{models.RequestStatusPending},
		to:       models.RequestStatusRejected,
		byClient: false,
	})
}

// Cancel: client withdraws a pending request. Terminal.
func (l *Lifecycle) Cancel(ctx context.Context, actor Actor, requestID uuid.UUID) (*models.ServiceRequest, error) {
	return l.transition(ctx, actor, requestID, transitionSpec{
		from:     []string{models.RequestStatusPending},
		to:       models.RequestStatusCancelled,
		byClient: true,
	})
}

// RequestRevision: client sends delivered work back for another pass.
// Delivery may be resubmitted straight from revision_requested.
func (l *Lifecycle) RequestRevision(ctx context.Context, actor Actor, requestID uuid.UUID) (*models.ServiceRequest, error) {
	return l.transition(ctx, actor, requestID, transitionSpec{
		from:     []string{models.RequestStatusDelivered},
		to:       models.RequestStatusRevisionRequested,
		byClient: true,
	})
}

// Deliver: freelancer submits work. Requires the funds to be in escrow (or
// already paid) so no work is handed over unpaid.
func (l *Lifecycle) Deliver(ctx context.Context, actor Actor, requestID uuid.UUID, files []string) (*models.ServiceRequest, error) {
	req, err := l.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, mapNoRows(err, "request")
	}
	if req.FreelancerID != actor.ID && !actor.Admin() {
		return nil, fmt.Errorf("%w: only the freelancer can deliver", ErrForbidden)
	}
	if req.PaymentStatus != models.PaymentStatusPaid && req.PaymentStatus != models.PaymentStatusInEscrow {
		return nil, fmt.Errorf("%w: cannot deliver before payment (payment is %s)", ErrInvalidState, req.PaymentStatus)
	}

	for _, from := range []string{models.RequestStatusInProgress, models.RequestStatusRevisionRequested} {
		ok, err := l.requests.SetDelivered(ctx, requestID, from, files)
		if err != nil {
			return nil, fmt.Errorf("set delivered: %w", err)
		}
		if ok {
			l.notifyAsync(ctx, &models.Notification{
				ID:        uuid.New(),
				UserID:    req.ClientID,
				Title:     "Work Delivered",
				Message:   fmt.Sprintf("Your order %q has been delivered", req.ServiceName),
				Type:      models.NotificationTypeRequest,
				LinkTo:    "/dashboard/requests/" + req.ID.String(),
				RelatedID: &req.ID,
			})
			return l.requests.GetByID(ctx, requestID)
		}
	}
	return nil, fmt.Errorf("%w: cannot deliver a %s request", ErrInvalidState, req.Status)
}

// Approve: client accepts delivered work, completing the request. When the
// payment still sits in escrow the approval releases it to the freelancer.
func (l *Lifecycle) Approve(ctx context.Context, actor Actor, requestID uuid.UUID) (*models.ServiceRequest, error) {
	req, err := l.transition(ctx, actor, requestID, transitionSpec{
		from:     []string{models.RequestStatusDelivered},
		to:       models.RequestStatusCompleted,
		byClient: true,
	})
	if err != nil {
		return nil, err
	}

	if req.PaymentStatus == models.PaymentStatusInEscrow && l.engine != nil {
		if _, err := l.engine.ReleaseEscrow(ctx, requestID, actor); err != nil && !errors.Is(err, ErrAlreadyProcessed) {
			return nil, fmt.Errorf("release on approval: %w", err)
		}
		return l.requests.GetByID(ctx, requestID)
	}
	return req, nil
}

func (l *Lifecycle) Get(ctx context.Context, actor Actor, requestID uuid.UUID) (*models.ServiceRequest, error) {
	req, err := l.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, mapNoRows(err, "request")
	}
	if req.ClientID != actor.ID && req.FreelancerID != actor.ID && !actor.Admin() {
		return nil, fmt.Errorf("%w: not a party to this request", ErrForbidden)
	}
	return req, nil
}

func (l *Lifecycle) ListForActor(ctx context.Context, actor Actor) ([]*models.ServiceRequest, error) {
	return l.requests.ListForUser(ctx, actor.ID)
}

// transitionSpec is one row of the transition table.
type transitionSpec struct {
	from     []string
	to       string
	byClient bool // owner side allowed to apply it; admin always may
}

func (l *Lifecycle) transition(ctx context.Context, actor Actor, requestID uuid.UUID, spec transitionSpec) (*models.ServiceRequest, error) {
	req, err := l.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, mapNoRows(err, "request")
	}

	owner := req.FreelancerID
	if spec.byClient {
		owner = req.ClientID
	}
	if owner != actor.ID && !actor.Admin() {
		return nil, fmt.Errorf("%w: actor may not %s this request", ErrForbidden, spec.to)
	}

	// CAS against the persisted status; the earlier read is advisory only.
	for _, from := range spec.from {
		ok, err := l.requests.TransitionStatus(ctx, requestID, from, spec.to)
		if err != nil {
			return nil, fmt.Errorf("transition %s -> %s: %w", from, spec.to, err)
		}
		if ok {
			l.log.Info("request transitioned", "request_id", requestID, "to", spec.to)
			return l.requests.GetByID(ctx, requestID)
		}
	}
	return nil, fmt.Errorf("%w: cannot move a %s request to %s", ErrInvalidState, req.Status, spec.to)
}

func (l *Lifecycle) notifyAsync(ctx context.Context, n *models.Notification) {
	if l.notifications == nil {
		return
	}
	if err := l.notifications.Create(ctx, n); err != nil {
		l.log.Error("create notification", "user_id", n.UserID, "error", err)
	}
}
