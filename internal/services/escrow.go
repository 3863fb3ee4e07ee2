package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/skillx/backend/internal/models"
)

// Actor is the verified identity performing an operation. Token verification
// happens upstream; the engine only ever sees the resolved id and role.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Admin reports whether the actor may bypass ownership checks.
func (a Actor) Admin() bool { return a.Role == models.RoleAdmin }

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EscrowUserRepo is the minimal ledger interface for the engine.
type EscrowUserRepo interface {
	DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
}

// EscrowAccountRepo is the escrow account store interface for the engine.
// MarkReleased/MarkRefunded must check status == held and flip it in the
// same statement; false means the account was already settled.
type EscrowAccountRepo interface {
	Create(ctx context.Context, tx pgx.Tx, e *models.EscrowAccount) error
	GetByRequestIDForUpdate(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (*models.EscrowAccount, error)
	MarkReleased(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (bool, error)
	MarkRefunded(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (bool, error)
}

// EscrowRequestRepo is the request store interface for the engine.
type EscrowRequestRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ServiceRequest, error)
	SetPaymentStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, paymentStatus string) error
	SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// EscrowTransactionRepo appends to the audit log.
type EscrowTransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
}

// EscrowNotificationRepo inserts notification records in the settlement tx.
type EscrowNotificationRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, n *models.Notification) error
}

// EnqueueNotifyTxFunc schedules async delivery of a notification within the
// given transaction. Typically a closure over river.Client.InsertTx; nil
// disables delivery (records are still written).
type EnqueueNotifyTxFunc func(ctx context.Context, tx pgx.Tx, notificationID uuid.UUID) error

// EscrowEngine moves value between user balances and mutates the escrow
// account, request, and transaction log as one unit. Each operation runs in
// a single database transaction: either every effect commits or none do.
type EscrowEngine struct {
	pool          TxBeginner
	users         EscrowUserRepo
	escrows       EscrowAccountRepo
	requests      EscrowRequestRepo
	transactions  EscrowTransactionRepo
	notifications EscrowNotificationRepo
	enqueueNotify EnqueueNotifyTxFunc
	log           *slog.Logger
}

func NewEscrowEngine(
	pool TxBeginner,
	users EscrowUserRepo,
	escrows EscrowAccountRepo,
	requests EscrowRequestRepo,
	transactions EscrowTransactionRepo,
	notifications EscrowNotificationRepo,
	enqueueNotify EnqueueNotifyTxFunc,
	log *slog.Logger,
) *EscrowEngine {
	if log == nil {
		log = slog.Default()
	}
	return &EscrowEngine{
		pool:          pool,
		users:         users,
		escrows:       escrows,
		requests:      requests,
		transactions:  transactions,
		notifications: notifications,
		enqueueNotify: enqueueNotify,
		log:           log,
	}
}

// FundEscrow debits the client's balance and opens a held escrow account for
// the request. Only the request's client (or an admin acting on their behalf)
// may pay, and only from accepted or in_progress with payment still pending.
// Funding moves an accepted request into in_progress so delivery becomes
// possible.
func (e *EscrowEngine) FundEscrow(ctx context.Context, requestID uuid.UUID, actor Actor) (*models.EscrowAccount, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin fund tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := e.requests.GetByIDForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, mapNoRows(err, "request")
	}
	if req.ClientID != actor.ID && !actor.Admin() {
		return nil, fmt.Errorf("%w: only the client can fund this request", ErrForbidden)
	}
	if req.Status != models.RequestStatusAccepted && req.Status != models.RequestStatusInProgress {
		return nil, fmt.Errorf("%w: cannot fund a %s request", ErrInvalidState, req.Status)
	}
	if req.PaymentStatus != models.PaymentStatusPending {
		return nil, fmt.Errorf("%w: payment is already %s", ErrInvalidState, req.PaymentStatus)
	}
	if req.Budget <= 0 {
		return nil, fmt.Errorf("%w: request has no budget", ErrValidation)
	}

	if _, err := e.users.DeductCredits(ctx, tx, req.ClientID, req.Budget); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("debit client: %w", err)
	}

	escrow := &models.EscrowAccount{
		RequestID:    req.ID,
		ClientID:     req.ClientID,
		FreelancerID: req.FreelancerID,
		Amount:       req.Budget,
		Status:       models.EscrowStatusHeld,
	}
	if err := e.escrows.Create(ctx, tx, escrow); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: escrow already exists for this request", ErrInvalidState)
		}
		return nil, fmt.Errorf("create escrow: %w", err)
	}

	if err := e.transactions.CreateTx(ctx, tx, &models.Transaction{
		ID:          uuid.New(),
		UserID:      req.ClientID,
		RequestID:   &req.ID,
		Amount:      req.Budget,
		Currency:    models.Currency,
		Type:        models.TxTypePaymentToEscrow,
		Status:      models.TxStatusCompleted,
		Description: fmt.Sprintf("Payment to escrow for %s", req.ServiceName),
	}); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	if err := e.requests.SetPaymentStatus(ctx, tx, req.ID, models.PaymentStatusInEscrow); err != nil {
		return nil, fmt.Errorf("set payment status: %w", err)
	}
	if req.Status == models.RequestStatusAccepted {
		if err := e.requests.SetStatusTx(ctx, tx, req.ID, models.RequestStatusInProgress); err != nil {
			return nil, fmt.Errorf("set status: %w", err)
		}
	}

	if err := e.notify(ctx, tx, &models.Notification{
		ID:        uuid.New(),
		UserID:    req.FreelancerID,
		Title:     "Payment Received",
		Message:   fmt.Sprintf("Funds for %q are now held in escrow", req.ServiceName),
		Type:      models.NotificationTypePayment,
		LinkTo:    "/dashboard/requests/" + req.ID.String(),
		RelatedID: &req.ID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit fund tx: %w", err)
	}
	e.log.Info("escrow funded", "request_id", req.ID, "amount", escrow.Amount)
	return escrow, nil
}

// ReleaseEscrow credits the freelancer with the held amount. Only the
// request's client or an admin may release; the freelancer never can, since
// that would let a party pay itself. Valid once the work has been delivered
// (or the request completed). At most one settlement succeeds per account.
func (e *EscrowEngine) ReleaseEscrow(ctx context.Context, requestID uuid.UUID, actor Actor) (*models.EscrowAccount, error) {
	return e.settle(ctx, requestID, actor, true)
}

// RefundEscrow returns the held amount to the client. Only the client or an
// admin may refund, and not after delivery unless the actor is an admin
// resolving a dispute.
func (e *EscrowEngine) RefundEscrow(ctx context.Context, requestID uuid.UUID, actor Actor) (*models.EscrowAccount, error) {
	return e.settle(ctx, requestID, actor, false)
}

func (e *EscrowEngine) settle(ctx context.Context, requestID uuid.UUID, actor Actor, release bool) (*models.EscrowAccount, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin settle tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := e.requests.GetByIDForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, mapNoRows(err, "request")
	}
	escrow, err := e.escrows.GetByRequestIDForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, mapNoRows(err, "escrow account")
	}

	if req.ClientID != actor.ID && !actor.Admin() {
		return nil, fmt.Errorf("%w: only the client can settle escrow", ErrForbidden)
	}

	if release {
		if req.Status != models.RequestStatusDelivered && req.Status != models.RequestStatusCompleted {
			return nil, fmt.Errorf("%w: cannot release before delivery (request is %s)", ErrInvalidState, req.Status)
		}
	} else {
		delivered := req.Status == models.RequestStatusDelivered || req.Status == models.RequestStatusCompleted
		if delivered && !actor.Admin() {
			return nil, fmt.Errorf("%w: cannot refund after delivery", ErrInvalidState)
		}
	}

	// The held check and the flip are one conditional update; a concurrent
	// settlement that committed first makes this one lose here.
	var flipped bool
	if release {
		flipped, err = e.escrows.MarkReleased(ctx, tx, requestID)
	} else {
		flipped, err = e.escrows.MarkRefunded(ctx, tx, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("flip escrow status: %w", err)
	}
	if !flipped {
		return nil, ErrAlreadyProcessed
	}

	recipient := escrow.ClientID
	txType := models.TxTypeEscrowRefund
	paymentStatus := models.PaymentStatusRefunded
	description := fmt.Sprintf("Escrow refund for %s", req.ServiceName)
	if release {
		recipient = escrow.FreelancerID
		txType = models.TxTypeEscrowRelease
		paymentStatus = models.PaymentStatusPaid
		description = fmt.Sprintf("Escrow release for %s", req.ServiceName)
	}

	if _, err := e.users.AddCredits(ctx, tx, recipient, escrow.Amount); err != nil {
		return nil, fmt.Errorf("credit recipient: %w", err)
	}
	if err := e.transactions.CreateTx(ctx, tx, &models.Transaction{
		ID:          uuid.New(),
		UserID:      recipient,
		RequestID:   &req.ID,
		Amount:      escrow.Amount,
		Currency:    models.Currency,
		Type:        txType,
		Status:      models.TxStatusCompleted,
		Description: description,
	}); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	if err := e.requests.SetPaymentStatus(ctx, tx, req.ID, paymentStatus); err != nil {
		return nil, fmt.Errorf("set payment status: %w", err)
	}

	title := "Funds Refunded"
	message := fmt.Sprintf("Your payment for %q has been refunded", req.ServiceName)
	if release {
		title = "Funds Released"
		message = fmt.Sprintf("You've been paid %d credits for %q", escrow.Amount, req.ServiceName)
	}
	if err := e.notify(ctx, tx, &models.Notification{
		ID:        uuid.New(),
		UserID:    recipient,
		Title:     title,
		Message:   message,
		Type:      models.NotificationTypePayment,
		LinkTo:    "/dashboard/requests/" + req.ID.String(),
		RelatedID: &req.ID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settle tx: %w", err)
	}

	escrow.Status = models.EscrowStatusReleased
	if !release {
		escrow.Status = models.EscrowStatusRefunded
	}
	e.log.Info("escrow settled", "request_id", requestID, "released", release, "amount", escrow.Amount)
	return escrow, nil
}

// PurchaseCredits adds purchased credits to a balance and appends a
// credit_purchase entry.
// TODO: verify transactionHash against the external payment rail before
// crediting; until then this trusts the caller.
func (e *EscrowEngine) PurchaseCredits(ctx context.Context, userID uuid.UUID, amount int64, transactionHash string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin purchase tx: %w", err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := e.users.AddCredits(ctx, tx, userID, amount)
	if err != nil {
		return 0, mapNoRows(err, "user")
	}
	if err := e.transactions.CreateTx(ctx, tx, &models.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Currency:    models.Currency,
		Type:        models.TxTypeCreditPurchase,
		Status:      models.TxStatusCompleted,
		Description: fmt.Sprintf("Purchased %d credits (%s)", amount, transactionHash),
	}); err != nil {
		return 0, fmt.Errorf("append transaction: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit purchase tx: %w", err)
	}
	return newBalance, nil
}

func (e *EscrowEngine) notify(ctx context.Context, tx pgx.Tx, n *models.Notification) error {
	if e.notifications == nil {
		return nil
	}
	if err := e.notifications.CreateTx(ctx, tx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if e.enqueueNotify != nil {
		if err := e.enqueueNotify(ctx, tx, n.ID); err != nil {
			return fmt.Errorf("enqueue notification delivery: %w", err)
		}
	}
	return nil
}

// mapNoRows turns pgx.ErrNoRows into the taxonomy's not-found error.
func mapNoRows(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}
