package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/skillx/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks. These let us test the real engine logic without a
// database; the CAS semantics of the escrow store are reproduced under a
// mutex so concurrency tests are meaningful.
// ---------------------------------------------------------------------------

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- user balances ---

type mockUsers struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
}

func newMockUsers() *mockUsers { return &mockUsers{balances: make(map[uuid.UUID]int64)} }

func (m *mockUsers) DeductCredits(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// The real store's conditional UPDATE matches no row when the balance
	// is short, which surfaces as pgx.ErrNoRows.
	if m.balances[id] < amount {
		return 0, pgx.ErrNoRows
	}
	m.balances[id] -= amount
	return m.balances[id], nil
}

func (m *mockUsers) AddCredits(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[id]; !ok {
		return 0, pgx.ErrNoRows
	}
	m.balances[id] += amount
	return m.balances[id], nil
}

func (m *mockUsers) balance(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[id]
}

// --- escrow accounts ---

type mockEscrows struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.EscrowAccount
}

func newMockEscrows() *mockEscrows {
	return &mockEscrows{accounts: make(map[uuid.UUID]*models.EscrowAccount)}
}

func (m *mockEscrows) Create(_ context.Context, _ pgx.Tx, e *models.EscrowAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[e.RequestID]; ok {
		return &pgconn.PgError{Code: "23505"}
	}
	cp := *e
	m.accounts[e.RequestID] = &cp
	return nil
}

func (m *mockEscrows) GetByRequestIDForUpdate(_ context.Context, _ pgx.Tx, requestID uuid.UUID) (*models.EscrowAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.accounts[requestID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

// flip reproduces the conditional-update semantics: check and flip are one
// critical section, so exactly one concurrent settlement wins.
func (m *mockEscrows) flip(requestID uuid.UUID, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.accounts[requestID]
	if !ok || e.Status != models.EscrowStatusHeld {
		return false, nil
	}
	e.Status = to
	return true, nil
}

func (m *mockEscrows) MarkReleased(_ context.Context, _ pgx.Tx, requestID uuid.UUID) (bool, error) {
	return m.flip(requestID, models.EscrowStatusReleased)
}

func (m *mockEscrows) MarkRefunded(_ context.Context, _ pgx.Tx, requestID uuid.UUID) (bool, error) {
	return m.flip(requestID, models.EscrowStatusRefunded)
}

func (m *mockEscrows) status(requestID uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[requestID].Status
}

// --- requests ---

type mockRequests struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*models.ServiceRequest
}

func newMockRequests(reqs ...*models.ServiceRequest) *mockRequests {
	m := &mockRequests{requests: make(map[uuid.UUID]*models.ServiceRequest)}
	for _, r := range reqs {
		cp := *r
		m.requests[r.ID] = &cp
	}
	return m
}

func (m *mockRequests) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (m *mockRequests) SetPaymentStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, paymentStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[id].PaymentStatus = paymentStatus
	return nil
}

func (m *mockRequests) SetStatusTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[id].Status = status
	return nil
}

func (m *mockRequests) get(id uuid.UUID) models.ServiceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.requests[id]
}

// --- transaction log ---

type mockTxLog struct {
	mu      sync.Mutex
	entries []*models.Transaction
}

func (m *mockTxLog) CreateTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockTxLog) byType(txType string) []*models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, e := range m.entries {
		if e.Type == txType {
			out = append(out, e)
		}
	}
	return out
}

// --- notifications ---

type mockNotifs struct {
	mu      sync.Mutex
	entries []*models.Notification
}

func (m *mockNotifs) CreateTx(_ context.Context, _ pgx.Tx, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockNotifs) forUser(id uuid.UUID) []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.entries {
		if n.UserID == id {
			out = append(out, n)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type engineFixture struct {
	engine   *EscrowEngine
	users    *mockUsers
	escrows  *mockEscrows
	requests *mockRequests
	txlog    *mockTxLog
	notifs   *mockNotifs

	client     uuid.UUID
	freelancer uuid.UUID
	request    uuid.UUID
}

func newFixture(status, paymentStatus string, budget, clientBalance int64) *engineFixture {
	f := &engineFixture{
		users:      newMockUsers(),
		escrows:    newMockEscrows(),
		txlog:      &mockTxLog{},
		notifs:     &mockNotifs{},
		client:     uuid.New(),
		freelancer: uuid.New(),
		request:    uuid.New(),
	}
	f.users.balances[f.client] = clientBalance
	f.users.balances[f.freelancer] = 0
	f.requests = newMockRequests(&models.ServiceRequest{
		ID:            f.request,
		ServiceName:   "Logo design",
		ClientID:      f.client,
		FreelancerID:  f.freelancer,
		Budget:        budget,
		Status:        status,
		PaymentStatus: paymentStatus,
	})
	f.engine = NewEscrowEngine(mockPool{}, f.users, f.escrows, f.requests, f.txlog, f.notifs, nil, nil)
	return f
}

// fundedFixture seeds a held escrow directly, as FundEscrow would have.
func fundedFixture(status string, amount int64) *engineFixture {
	f := newFixture(status, models.PaymentStatusInEscrow, amount, 0)
	f.escrows.accounts[f.request] = &models.EscrowAccount{
		RequestID:    f.request,
		ClientID:     f.client,
		FreelancerID: f.freelancer,
		Amount:       amount,
		Status:       models.EscrowStatusHeld,
	}
	return f
}

func (f *engineFixture) clientActor() Actor {
	return Actor{ID: f.client, Role: models.RoleClient}
}

func (f *engineFixture) freelancerActor() Actor {
	return Actor{ID: f.freelancer, Role: models.RoleFreelancer}
}

// ---------------------------------------------------------------------------
// FundEscrow
// ---------------------------------------------------------------------------

func TestFundEscrow(t *testing.T) {
	f := newFixture(models.RequestStatusAccepted, models.PaymentStatusPending, 100, 1000)
	ctx := context.Background()

	escrow, err := f.engine.FundEscrow(ctx, f.request, f.clientActor())
	if err != nil {
		t.Fatalf("FundEscrow: %v", err)
	}

	if escrow.Status != models.EscrowStatusHeld {
		t.Errorf("escrow status: got %s, want held", escrow.Status)
	}
	if escrow.Amount != 100 {
		t.Errorf("escrow amount: got %d, want 100", escrow.Amount)
	}
	if got := f.users.balance(f.client); got != 900 {
		t.Errorf("client balance: got %d, want 900", got)
	}

	req := f.requests.get(f.request)
	if req.PaymentStatus != models.PaymentStatusInEscrow {
		t.Errorf("payment status: got %s, want in_escrow", req.PaymentStatus)
	}
	// Funding an accepted request moves it into in_progress.
	if req.Status != models.RequestStatusInProgress {
		t.Errorf("request status: got %s, want in_progress", req.Status)
	}

	payments := f.txlog.byType(models.TxTypePaymentToEscrow)
	if len(payments) != 1 {
		t.Fatalf("payment_to_escrow entries: got %d, want 1", len(payments))
	}
	if payments[0].UserID != f.client || payments[0].Amount != 100 {
		t.Errorf("payment entry: got user %s amount %d", payments[0].UserID, payments[0].Amount)
	}

	if n := len(f.notifs.forUser(f.freelancer)); n != 1 {
		t.Errorf("freelancer notifications: got %d, want 1", n)
	}
}

func TestFundEscrowInsufficientFunds(t *testing.T) {
	f := newFixture(models.RequestStatusAccepted, models.PaymentStatusPending, 100, 50)
	ctx := context.Background()

	_, err := f.engine.FundEscrow(ctx, f.request, f.clientActor())
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got: %v", err)
	}
	if got := f.users.balance(f.client); got != 50 {
		t.Errorf("client balance should be untouched: got %d, want 50", got)
	}
	if len(f.txlog.byType(models.TxTypePaymentToEscrow)) != 0 {
		t.Error("no transaction should be logged for a failed funding")
	}
}

func TestFundEscrowGuards(t *testing.T) {
	ctx := context.Background()

	// Not the client.
	f := newFixture(models.RequestStatusAccepted, models.PaymentStatusPending, 100, 1000)
	if _, err := f.engine.FundEscrow(ctx, f.request, f.freelancerActor()); !errors.Is(err, ErrForbidden) {
		t.Errorf("freelancer funding: expected ErrForbidden, got %v", err)
	}

	// Pending requests cannot be funded; the freelancer has not accepted.
	f = newFixture(models.RequestStatusPending, models.PaymentStatusPending, 100, 1000)
	if _, err := f.engine.FundEscrow(ctx, f.request, f.clientActor()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("pending funding: expected ErrInvalidState, got %v", err)
	}

	// Funding twice hits the one-escrow-per-request constraint.
	f = newFixture(models.RequestStatusAccepted, models.PaymentStatusPending, 100, 1000)
	if _, err := f.engine.FundEscrow(ctx, f.request, f.clientActor()); err != nil {
		t.Fatalf("first funding: %v", err)
	}
	f.requests.requests[f.request].PaymentStatus = models.PaymentStatusPending // force past the payment guard
	if _, err := f.engine.FundEscrow(ctx, f.request, f.clientActor()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second funding: expected ErrInvalidState, got %v", err)
	}

	// Unknown request.
	if _, err := f.engine.FundEscrow(ctx, uuid.New(), f.clientActor()); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown request: expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Release
// ---------------------------------------------------------------------------

func TestReleaseEscrow(t *testing.T) {
	f := fundedFixture(models.RequestStatusDelivered, 100)
	ctx := context.Background()

	escrow, err := f.engine.ReleaseEscrow(ctx, f.request, f.clientActor())
	if err != nil {
		t.Fatalf("ReleaseEscrow: %v", err)
	}
	if escrow.Status != models.EscrowStatusReleased {
		t.Errorf("escrow status: got %s, want released", escrow.Status)
	}
	if got := f.users.balance(f.freelancer); got != 100 {
		t.Errorf("freelancer balance: got %d, want 100", got)
	}
	if got := f.requests.get(f.request).PaymentStatus; got != models.PaymentStatusPaid {
		t.Errorf("payment status: got %s, want paid", got)
	}
	releases := f.txlog.byType(models.TxTypeEscrowRelease)
	if len(releases) != 1 || releases[0].UserID != f.freelancer || releases[0].Amount != 100 {
		t.Errorf("escrow_release entry wrong: %+v", releases)
	}

	// A second release is rejected: the escrow already left held.
	if _, err := f.engine.ReleaseEscrow(ctx, f.request, f.clientActor()); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("second release: expected ErrAlreadyProcessed, got %v", err)
	}
	if got := f.users.balance(f.freelancer); got != 100 {
		t.Errorf("freelancer must not be paid twice: got %d, want 100", got)
	}
}

func TestReleaseBeforeDelivery(t *testing.T) {
	f := fundedFixture(models.RequestStatusInProgress, 100)
	_, err := f.engine.ReleaseEscrow(context.Background(), f.request, f.clientActor())
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if f.escrows.status(f.request) != models.EscrowStatusHeld {
		t.Error("escrow must stay held after a rejected release")
	}
}

// ---------------------------------------------------------------------------
// Refund
// ---------------------------------------------------------------------------

func TestRefundEscrow(t *testing.T) {
	f := fundedFixture(models.RequestStatusInProgress, 50)
	ctx := context.Background()

	escrow, err := f.engine.RefundEscrow(ctx, f.request, f.clientActor())
	if err != nil {
		t.Fatalf("RefundEscrow: %v", err)
	}
	if escrow.Status != models.EscrowStatusRefunded {
		t.Errorf("escrow status: got %s, want refunded", escrow.Status)
	}
	if got := f.users.balance(f.client); got != 50 {
		t.Errorf("client balance: got %d, want 50", got)
	}
	if got := f.users.balance(f.freelancer); got != 0 {
		t.Errorf("freelancer balance should be unchanged: got %d, want 0", got)
	}
	if got := f.requests.get(f.request).PaymentStatus; got != models.PaymentStatusRefunded {
		t.Errorf("payment status: got %s, want refunded", got)
	}
	refunds := f.txlog.byType(models.TxTypeEscrowRefund)
	if len(refunds) != 1 || refunds[0].UserID != f.client || refunds[0].Amount != 50 {
		t.Errorf("escrow_refund entry wrong: %+v", refunds)
	}

	if _, err := f.engine.RefundEscrow(ctx, f.request, f.clientActor()); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("second refund: expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestRefundAfterDelivery(t *testing.T) {
	f := fundedFixture(models.RequestStatusDelivered, 100)
	ctx := context.Background()

	// The client cannot claw back delivered work.
	if _, err := f.engine.RefundEscrow(ctx, f.request, f.clientActor()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("client refund after delivery: expected ErrInvalidState, got %v", err)
	}

	// An admin resolving a dispute can.
	admin := Actor{ID: uuid.New(), Role: models.RoleAdmin}
	if _, err := f.engine.RefundEscrow(ctx, f.request, admin); err != nil {
		t.Fatalf("admin refund after delivery: %v", err)
	}
	if got := f.users.balance(f.client); got != 100 {
		t.Errorf("client balance after admin refund: got %d, want 100", got)
	}
}

// ---------------------------------------------------------------------------
// Authorization: the freelancer can never settle, whatever the state.
// ---------------------------------------------------------------------------

func TestFreelancerCannotSettle(t *testing.T) {
	ctx := context.Background()
	for _, status := range []string{
		models.RequestStatusInProgress,
		models.RequestStatusDelivered,
		models.RequestStatusCompleted,
	} {
		f := fundedFixture(status, 100)
		if _, err := f.engine.ReleaseEscrow(ctx, f.request, f.freelancerActor()); !errors.Is(err, ErrForbidden) {
			t.Errorf("release by freelancer in %s: expected ErrForbidden, got %v", status, err)
		}
		if _, err := f.engine.RefundEscrow(ctx, f.request, f.freelancerActor()); !errors.Is(err, ErrForbidden) {
			t.Errorf("refund by freelancer in %s: expected ErrForbidden, got %v", status, err)
		}
		if f.escrows.status(f.request) != models.EscrowStatusHeld {
			t.Errorf("escrow must stay held after forbidden settlement in %s", status)
		}
	}
}

// ---------------------------------------------------------------------------
// At-most-once settlement under concurrency.
// ---------------------------------------------------------------------------

func TestConcurrentSettlement(t *testing.T) {
	f := fundedFixture(models.RequestStatusDelivered, 100)
	ctx := context.Background()
	admin := Actor{ID: uuid.New(), Role: models.RoleAdmin}

	// One release racing one refund: exactly one must win.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.engine.ReleaseEscrow(ctx, f.request, f.clientActor())
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.engine.RefundEscrow(ctx, f.request, admin)
	}()
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyProcessed):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || already != 1 {
		t.Fatalf("want exactly one winner: got %d successes, %d already-processed", ok, already)
	}

	// Whichever way it settled, value moved exactly once.
	total := f.users.balance(f.client) + f.users.balance(f.freelancer)
	if total != 100 {
		t.Errorf("conservation broken: balances sum to %d, want 100", total)
	}
}

// ---------------------------------------------------------------------------
// Balance conservation across a full fund-then-settle cycle.
// ---------------------------------------------------------------------------

func TestBalanceConservation(t *testing.T) {
	ctx := context.Background()

	// Fund then release: client pays once, freelancer receives exactly that.
	f := newFixture(models.RequestStatusAccepted, models.PaymentStatusPending, 100, 1000)
	before := f.users.balance(f.client) + f.users.balance(f.freelancer)
	if _, err := f.engine.FundEscrow(ctx, f.request, f.clientActor()); err != nil {
		t.Fatalf("FundEscrow: %v", err)
	}
	f.requests.requests[f.request].Status = models.RequestStatusDelivered
	if _, err := f.engine.ReleaseEscrow(ctx, f.request, f.clientActor()); err != nil {
		t.Fatalf("ReleaseEscrow: %v", err)
	}
	after := f.users.balance(f.client) + f.users.balance(f.freelancer)
	if before != after {
		t.Errorf("released cycle: total before %d != after %d", before, after)
	}
	if got := f.users.balance(f.client); got != 900 {
		t.Errorf("client: got %d, want 900", got)
	}
	if got := f.users.balance(f.freelancer); got != 100 {
		t.Errorf("freelancer: got %d, want 100", got)
	}

	// Fund then refund: net zero for the client.
	f = newFixture(models.RequestStatusAccepted, models.PaymentStatusPending, 50, 500)
	if _, err := f.engine.FundEscrow(ctx, f.request, f.clientActor()); err != nil {
		t.Fatalf("FundEscrow: %v", err)
	}
	if _, err := f.engine.RefundEscrow(ctx, f.request, f.clientActor()); err != nil {
		t.Fatalf("RefundEscrow: %v", err)
	}
	if got := f.users.balance(f.client); got != 500 {
		t.Errorf("client after refund: got %d, want 500", got)
	}
	if got := f.users.balance(f.freelancer); got != 0 {
		t.Errorf("freelancer after refund: got %d, want 0", got)
	}
}

// ---------------------------------------------------------------------------
// PurchaseCredits
// ---------------------------------------------------------------------------

func TestPurchaseCredits(t *testing.T) {
	f := newFixture(models.RequestStatusAccepted, models.PaymentStatusPending, 100, 10)
	ctx := context.Background()

	balance, err := f.engine.PurchaseCredits(ctx, f.client, 490, "0xabc")
	if err != nil {
		t.Fatalf("PurchaseCredits: %v", err)
	}
	if balance != 500 {
		t.Errorf("new balance: got %d, want 500", balance)
	}
	purchases := f.txlog.byType(models.TxTypeCreditPurchase)
	if len(purchases) != 1 || purchases[0].Amount != 490 {
		t.Errorf("credit_purchase entry wrong: %+v", purchases)
	}

	if _, err := f.engine.PurchaseCredits(ctx, f.client, 0, "0xabc"); !errors.Is(err, ErrValidation) {
		t.Errorf("zero amount: expected ErrValidation, got %v", err)
	}
	if _, err := f.engine.PurchaseCredits(ctx, uuid.New(), 10, "0xabc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: expected ErrNotFound, got %v", err)
	}
}
