package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/BTreeMap/LuckyPipe/internal/store"
	"github.com/shopspring/decimal"
)

// fakeIntentGate answers every message with the same decision.
type fakeIntentGate struct {
	yes bool
}

func (g *fakeIntentGate) IsLuckyDrawIntent(ctx context.Context, text string) bool {
	return g.yes
}

// fakeProcessor returns fixed values or an error.
type fakeProcessor struct {
	amount     decimal.Decimal
	confidence float64
	err        error
}

func (p *fakeProcessor) Process(ctx context.Context) (decimal.Decimal, float64, error) {
	return p.amount, p.confidence, p.err
}

// faultyLedger wraps a ledger and fails inserts with insertErr.
type faultyLedger struct {
	store.Ledger
	insertErr error
	inserts   int
}

func (l *faultyLedger) InsertEntry(ctx context.Context, e models.LedgerEntry) (int64, error) {
	l.inserts++
	return 0, l.insertErr
}

var errLedgerDown = errors.New("ledger down")

type testEnv struct {
	ctx    context.Context
	ledger *store.InMemoryStore
	proc   *fakeProcessor
	gate   *fakeIntentGate
	ctrl   *Controller
}

func newTestEnv(t *testing.T, amount string, confidence float64) *testEnv {
	t.Helper()
	ledger := store.NewInMemoryStore()
	proc := &fakeProcessor{amount: decimal.RequireFromString(amount), confidence: confidence}
	gate := &fakeIntentGate{yes: true}
	intake := NewReceiptIntake(proc, NewLedgerAllocator(ledger))
	return &testEnv{
		ctx:    context.Background(),
		ledger: ledger,
		proc:   proc,
		gate:   gate,
		ctrl:   NewController(gate, intake, ledger),
	}
}

// send runs one message through the controller and fails the test on error.
func (e *testEnv) send(t *testing.T, sess *models.Session, text string) Reply {
	t.Helper()
	r, err := e.ctrl.Handle(e.ctx, sess, text)
	if err != nil {
		t.Fatalf("Handle(%q) returned error: %v", text, err)
	}
	return r
}

// sessionAwaitingDetails drives a new session up to AwaitingDetails.
func (e *testEnv) sessionAwaitingDetails(t *testing.T, id string) *models.Session {
	t.Helper()
	sess := models.NewSession(id)
	e.send(t, sess, "join the lucky draw")
	e.send(t, sess, "image")
	if sess.State.Current() != models.StepAwaitingDetails {
		t.Fatalf("expected %s, got %s", models.StepAwaitingDetails, sess.State.Current())
	}
	return sess
}

func details(name, phone, email string) string {
	return "Name: " + name + "\nNumber: " + phone + "\nEmail: " + email
}

// slowLookupLedger delays approved lookups, widening the window between the
// lookup and the insert of a finalization.
type slowLookupLedger struct {
	store.Ledger
	delay time.Duration
}

func (l *slowLookupLedger) FindApprovedByPhone(ctx context.Context, phone string) (*models.LedgerEntry, error) {
	time.Sleep(l.delay)
	return l.Ledger.FindApprovedByPhone(ctx, phone)
}

// staleLookupLedger misses approved entries on its first lookups, as a reader
// racing a writer in another process would.
type staleLookupLedger struct {
	store.Ledger
	mu    sync.Mutex
	stale int
}

func (l *staleLookupLedger) FindApprovedByPhone(ctx context.Context, phone string) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stale > 0 {
		l.stale--
		return nil, nil
	}
	return l.Ledger.FindApprovedByPhone(ctx, phone)
}

// seedApproved records an approved entry directly in the ledger.
func (e *testEnv) seedApproved(t *testing.T, receiptNo int64, phone string) {
	t.Helper()
	_, err := e.ledger.InsertEntry(e.ctx, models.LedgerEntry{
		ReceiptNumber: receiptNo, Name: "Jo", PhoneNumber: phone, Email: "jo@x.com",
		TransactionAmount: decimal.NewFromInt(25), ConfidenceLevel: 95, Status: models.EntryStatusApproved,
	})
	if err != nil {
		t.Fatalf("seed approved entry: %v", err)
	}
}
