package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/BTreeMap/LuckyPipe/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioA_Welcome(t *testing.T) {
	env := newTestEnv(t, "25.00", 90)
	sess := models.NewSession("s1")

	r := env.send(t, sess, "join the lucky draw")
	assert.True(t, r.Handled)
	assert.Equal(t, WelcomeMessage, r.Text)
	assert.Equal(t, models.StepAwaitingReceipt, sess.State.Current())
}

func TestInactive_NoDecision(t *testing.T) {
	env := newTestEnv(t, "25.00", 90)
	env.gate.yes = false
	sess := models.NewSession("s1")

	r := env.send(t, sess, "what does the handbook say about leave?")
	assert.False(t, r.Handled)
	assert.Empty(t, r.Text)
	assert.Equal(t, models.StepInactive, sess.State.Current())
}

func TestScenarioB_ReceiptProcessed(t *testing.T) {
	env := newTestEnv(t, "25.00", 90)
	sess := models.NewSession("s1")
	env.send(t, sess, "join the lucky draw")

	r := env.send(t, sess, "  IMAGE ")
	assert.True(t, r.Handled)
	assert.Contains(t, r.Text, "**Receipt No:** 1")
	assert.Contains(t, r.Text, "**Amount:** $25.00")
	assert.Contains(t, r.Text, "**Confidence Level:** 90%")
	assert.Equal(t, models.StepAwaitingDetails, sess.State.Current())

	pending, ok := sess.State.PendingReceipt()
	require.True(t, ok)
	assert.Equal(t, int64(1), pending.ReceiptNumber)
	assert.True(t, pending.Amount.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, 90.0, pending.Confidence)
}

func TestScenarioC_Approved(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	sess := env.sessionAwaitingDetails(t, "s1")

	r := env.send(t, sess, "Name: Jo\nNumber: 555\nEmail: jo@x.com")
	assert.True(t, r.Handled)
	assert.Contains(t, r.Text, "Approved")
	assert.Equal(t, models.StepInactive, sess.State.Current())

	entry, err := env.ledger.GetEntryByReceipt(env.ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.EntryStatusApproved, entry.Status)
	assert.NotNil(t, entry.ApprovedAt)
	assert.Equal(t, "555", entry.PhoneNumber)
}

func TestScenarioD_RejectedLowAmount(t *testing.T) {
	env := newTestEnv(t, "10", 90)
	sess := env.sessionAwaitingDetails(t, "s1")

	r := env.send(t, sess, "Name: Jo\nNumber: 555\nEmail: jo@x.com")
	assert.Contains(t, r.Text, "$10.00")
	assert.Contains(t, r.Text, "$20.00")
	assert.Equal(t, models.StepInactive, sess.State.Current())

	entry, err := env.ledger.GetEntryByReceipt(env.ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.EntryStatusRejected, entry.Status)
	assert.Nil(t, entry.ApprovedAt)
}

func TestPendingReview(t *testing.T) {
	env := newTestEnv(t, "25", 80)
	sess := env.sessionAwaitingDetails(t, "s1")

	r := env.send(t, sess, details("Jo", "555", "jo@x.com"))
	assert.Contains(t, r.Text, StatusLabelPending)

	entry, err := env.ledger.GetEntryByReceipt(env.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPending, entry.Status)
}

func TestScenarioE_ExitDeclinedResumesDetails(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	sess := env.sessionAwaitingDetails(t, "s1")

	r := env.send(t, sess, "what is the refund policy?")
	assert.Equal(t, ConfirmExitMessage, r.Text)
	assert.Equal(t, models.StepConfirmingExit, sess.State.Current())
	prev, ok := sess.State.PreviousStep()
	require.True(t, ok)
	assert.Equal(t, models.StepAwaitingDetails, prev)

	r = env.send(t, sess, "no")
	assert.Equal(t, AwaitingDetailsReminder, r.Text)
	assert.Equal(t, models.StepAwaitingDetails, sess.State.Current())
	_, ok = sess.State.PreviousStep()
	assert.False(t, ok)

	// The receipt survived the detour.
	pending, ok := sess.State.PendingReceipt()
	require.True(t, ok)
	assert.Equal(t, int64(1), pending.ReceiptNumber)

	r = env.send(t, sess, details("Jo", "555", "jo@x.com"))
	assert.Contains(t, r.Text, "**Receipt No:** 1")
}

func TestExitDeclinedResumesReceipt(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	sess := models.NewSession("s1")
	env.send(t, sess, "lucky draw please")

	r := env.send(t, sess, "a photo of my receipt")
	assert.Equal(t, ConfirmExitMessage, r.Text)

	r = env.send(t, sess, "nope")
	assert.Equal(t, AwaitingReceiptReminder, r.Text)
	assert.Equal(t, models.StepAwaitingReceipt, sess.State.Current())
}

func TestExitConfirmed(t *testing.T) {
	for _, yes := range []string{"yes", "Y", " Yeah ", "yep", "sure", "OK", "okay", "ya", "yup"} {
		env := newTestEnv(t, "25", 90)
		sess := env.sessionAwaitingDetails(t, "s1")
		env.send(t, sess, "hello there")

		r := env.send(t, sess, yes)
		assert.Equal(t, ExitConfirmedMessage, r.Text, yes)
		assert.Equal(t, models.StepInactive, sess.State.Current(), yes)
		_, ok := sess.State.PendingReceipt()
		assert.False(t, ok)
	}
}

func TestConfirmingExit_UnknownResume(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	sess := models.NewSession("s1")
	sess.State.Step = models.ConfirmingExit{}

	r := env.send(t, sess, "no")
	assert.Equal(t, ExitConfirmedMessage, r.Text)
	assert.Equal(t, models.StepInactive, sess.State.Current())
}

func TestScenarioF_MaxRetries(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	sess := env.sessionAwaitingDetails(t, "s1")

	r := env.send(t, sess, "Name: Jo")
	assert.Contains(t, r.Text, "2 attempt(s) remaining")
	assert.Contains(t, r.Text, "missing: Number, Email")
	assert.Equal(t, 1, sess.State.RetryCount)

	r = env.send(t, sess, "Name: Jo\nEmail: jo@x.com")
	assert.Contains(t, r.Text, "1 attempt(s) remaining")
	assert.Contains(t, r.Text, "missing: Number")

	r = env.send(t, sess, "Number: 555")
	assert.Equal(t, MaxRetriesExceededMessage, r.Text)
	assert.Equal(t, models.StepInactive, sess.State.Current())
	assert.Zero(t, sess.State.RetryCount)

	entries, err := env.ledger.ListEntries(env.ctx, store.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRetryCountResetsOnStartAndCompletion(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	sess := env.sessionAwaitingDetails(t, "s1")
	env.send(t, sess, "Name: Jo")
	require.Equal(t, 1, sess.State.RetryCount)

	env.send(t, sess, details("Jo", "555", "jo@x.com"))
	assert.Zero(t, sess.State.RetryCount)

	// A stale counter never carries into a new flow.
	sess.State.RetryCount = 2
	env.send(t, sess, "lucky draw")
	assert.Zero(t, sess.State.RetryCount)

	other := models.NewSession("s2")
	assert.Zero(t, other.State.RetryCount)
}

func TestOneApprovedEntryPerPhone(t *testing.T) {
	env := newTestEnv(t, "25", 95)

	first := env.sessionAwaitingDetails(t, "s1")
	r := env.send(t, first, details("Jo", "555", "jo@x.com"))
	require.Contains(t, r.Text, StatusLabelApproved)

	for i, amount := range []string{"25", "5", "100"} {
		env.proc.amount = decimal.RequireFromString(amount)
		sess := env.sessionAwaitingDetails(t, fmt.Sprintf("dup-%d", i))
		r := env.send(t, sess, details("Jo Again", "555", "other@x.com"))
		assert.Contains(t, r.Text, "Receipt No: 1")
	}

	approved, err := env.ledger.ListEntries(env.ctx, store.EntryFilter{PhoneNumber: "555", Status: models.EntryStatusApproved})
	require.NoError(t, err)
	assert.Len(t, approved, 1)
	applied, err := env.ledger.ListEntries(env.ctx, store.EntryFilter{PhoneNumber: "555", Status: models.EntryStatusApplied})
	require.NoError(t, err)
	assert.Len(t, applied, 3)
}

func TestConcurrentSamePhoneSubmissionsApproveOnce(t *testing.T) {
	env := newTestEnv(t, "25", 95)
	ledger := &slowLookupLedger{Ledger: env.ledger, delay: 5 * time.Millisecond}
	ctrl := NewController(env.gate, NewReceiptIntake(env.proc, NewLedgerAllocator(env.ledger)), ledger)

	const sessions = 8
	pending := make([]*models.Session, sessions)
	for i := range pending {
		sess := models.NewSession(fmt.Sprintf("s%d", i))
		for _, m := range []string{"lucky draw", "image"} {
			_, err := ctrl.Handle(env.ctx, sess, m)
			require.NoError(t, err)
		}
		require.Equal(t, models.StepAwaitingDetails, sess.State.Current())
		pending[i] = sess
	}

	var wg sync.WaitGroup
	replies := make([]Reply, sessions)
	errs := make([]error, sessions)
	for i, sess := range pending {
		wg.Add(1)
		go func(i int, sess *models.Session) {
			defer wg.Done()
			replies[i], errs[i] = ctrl.Handle(context.Background(), sess, details("Jo", "555", "jo@x.com"))
		}(i, sess)
	}
	wg.Wait()

	approvedReplies := 0
	for i := range replies {
		require.NoError(t, errs[i])
		if strings.Contains(replies[i].Text, StatusLabelApproved) {
			approvedReplies++
		}
	}
	assert.Equal(t, 1, approvedReplies)

	approved, err := env.ledger.ListEntries(env.ctx, store.EntryFilter{PhoneNumber: "555", Status: models.EntryStatusApproved})
	require.NoError(t, err)
	assert.Len(t, approved, 1)
	applied, err := env.ledger.ListEntries(env.ctx, store.EntryFilter{PhoneNumber: "555", Status: models.EntryStatusApplied})
	require.NoError(t, err)
	assert.Len(t, applied, sessions-1)
}

func TestApprovedByAnotherWriterIsReclassified(t *testing.T) {
	env := newTestEnv(t, "25", 95)
	env.seedApproved(t, 1, "555")

	ledger := &staleLookupLedger{Ledger: env.ledger, stale: 1}
	ctrl := NewController(env.gate, NewReceiptIntake(env.proc, NewLedgerAllocator(env.ledger)), ledger)

	sess := models.NewSession("s1")
	for _, m := range []string{"lucky draw", "image"} {
		_, err := ctrl.Handle(env.ctx, sess, m)
		require.NoError(t, err)
	}
	r, err := ctrl.Handle(env.ctx, sess, details("Jo", "555", "jo@x.com"))
	require.NoError(t, err)
	assert.Contains(t, r.Text, "Receipt No: 1")
	assert.Equal(t, models.StepInactive, sess.State.Current())

	entry, err := env.ledger.GetEntryByReceipt(env.ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.EntryStatusApplied, entry.Status)
}

func TestRejectedDoesNotBlockResubmission(t *testing.T) {
	env := newTestEnv(t, "10", 95)
	sess := env.sessionAwaitingDetails(t, "s1")
	env.send(t, sess, details("Jo", "555", "jo@x.com"))

	env.proc.amount = decimal.NewFromInt(30)
	sess = env.sessionAwaitingDetails(t, "s1")
	r := env.send(t, sess, details("Jo", "555", "jo@x.com"))
	assert.Contains(t, r.Text, StatusLabelApproved)
}

func TestIntakeFailureKeepsStep(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	sess := models.NewSession("s1")
	env.send(t, sess, "lucky draw")

	env.proc.err = errors.New("ocr unavailable")
	_, err := env.ctrl.Handle(env.ctx, sess, "image")
	require.Error(t, err)
	assert.Equal(t, models.StepAwaitingReceipt, sess.State.Current())

	env.proc.err = nil
	r := env.send(t, sess, "image")
	assert.Contains(t, r.Text, "Receipt Processed")
}

func TestReceiptCollisionIsRetried(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	sess := env.sessionAwaitingDetails(t, "s1")

	// Another process takes receipt number 1 before this session finishes.
	_, err := env.ledger.InsertEntry(env.ctx, models.LedgerEntry{
		ReceiptNumber: 1, Name: "Other", PhoneNumber: "999", Email: "o@x.com",
		TransactionAmount: decimal.NewFromInt(30), ConfidenceLevel: 95, Status: models.EntryStatusPending,
	})
	require.NoError(t, err)

	r := env.send(t, sess, details("Jo", "555", "jo@x.com"))
	assert.Contains(t, r.Text, "**Receipt No:** 2")

	entry, err := env.ledger.GetEntryByReceipt(env.ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "555", entry.PhoneNumber)
}

func TestReceiptCollisionRetriesExhausted(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	faulty := &faultyLedger{Ledger: env.ledger, insertErr: store.ErrConstraintViolation}
	intake := NewReceiptIntake(env.proc, NewLedgerAllocator(env.ledger))
	ctrl := NewController(env.gate, intake, faulty)

	sess := models.NewSession("s1")
	for _, msg := range []string{"lucky draw", "image"} {
		_, err := ctrl.Handle(env.ctx, sess, msg)
		require.NoError(t, err)
	}

	r, err := ctrl.Handle(env.ctx, sess, details("Jo", "555", "jo@x.com"))
	require.NoError(t, err)
	assert.Equal(t, FlowFailedMessage, r.Text)
	assert.True(t, r.Handled)
	assert.Equal(t, DefaultInsertAttempts, faulty.inserts)
	assert.Equal(t, models.StepInactive, sess.State.Current())

	// The session remains usable.
	r, err = ctrl.Handle(env.ctx, sess, "lucky draw")
	require.NoError(t, err)
	assert.Equal(t, WelcomeMessage, r.Text)
}

func TestLedgerFailureResetsAndPropagates(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	faulty := &faultyLedger{Ledger: env.ledger, insertErr: errLedgerDown}
	ctrl := NewController(env.gate, NewReceiptIntake(env.proc, NewLedgerAllocator(env.ledger)), faulty)

	sess := models.NewSession("s1")
	sess.State.Step = models.AwaitingDetails{Receipt: models.ReceiptRecord{ReceiptNumber: 1, Amount: decimal.NewFromInt(25), Confidence: 90}}

	_, err := ctrl.Handle(env.ctx, sess, details("Jo", "555", "jo@x.com"))
	assert.ErrorIs(t, err, errLedgerDown)
	assert.Equal(t, 1, faulty.inserts)
	assert.Equal(t, models.StepInactive, sess.State.Current())
}

func TestMissingReceiptIsAnError(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	sess := models.NewSession("s1")
	sess.State.Step = models.AwaitingDetails{}

	_, err := env.ctrl.Handle(env.ctx, sess, details("Jo", "555", "jo@x.com"))
	assert.ErrorIs(t, err, ErrNoPendingReceipt)
	assert.Equal(t, models.StepInactive, sess.State.Current())
}

func TestReset(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	sess := env.sessionAwaitingDetails(t, "s1")
	env.send(t, sess, "Name: Jo")

	env.ctrl.Reset(sess)
	assert.Equal(t, models.StepInactive, sess.State.Current())
	assert.Zero(t, sess.State.RetryCount)
	_, ok := sess.State.PendingReceipt()
	assert.False(t, ok)
}

func TestCustomEntryRules(t *testing.T) {
	env := newTestEnv(t, "25", 95)
	holdAll := EntryRules{{
		Name:    "hold",
		Match:   func(EntryContext) bool { return true },
		Status:  models.EntryStatusPending,
		Message: func(_ EntryContext, n int64) string { return fmt.Sprintf("held %d", n) },
	}}
	ctrl := NewController(env.gate, NewReceiptIntake(env.proc, NewLedgerAllocator(env.ledger)), env.ledger, WithEntryRules(holdAll))

	sess := models.NewSession("s1")
	for _, msg := range []string{"lucky draw", "image"} {
		_, err := ctrl.Handle(env.ctx, sess, msg)
		require.NoError(t, err)
	}
	r, err := ctrl.Handle(env.ctx, sess, details("Jo", "555", "jo@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "held 1", r.Text)
}

func TestConcurrentFinalizationsGetDistinctReceipts(t *testing.T) {
	env := newTestEnv(t, "25", 90)
	const sessions = 20

	var wg sync.WaitGroup
	errs := make(chan error, sessions)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := models.NewSession(fmt.Sprintf("s%d", i))
			msgs := []string{"lucky draw", "image", details("Jo", fmt.Sprintf("555-%d", i), "jo@x.com")}
			for _, m := range msgs {
				if _, err := env.ctrl.Handle(context.Background(), sess, m); err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := env.ledger.ListEntries(env.ctx, store.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, sessions)
	seen := make(map[int64]bool)
	for _, e := range entries {
		assert.False(t, seen[e.ReceiptNumber], "receipt number %d used twice", e.ReceiptNumber)
		seen[e.ReceiptNumber] = true
	}
}
