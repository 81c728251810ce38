// Package flow implements the lucky draw entry conversation.
//
// A Controller walks one session at a time through receipt submission,
// contact details and entry finalization. Session state is passed in by the
// caller; the controller itself holds no per-session data.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/BTreeMap/LuckyPipe/internal/store"
)

// DefaultInsertAttempts bounds ledger inserts per finalization when receipt
// numbers collide.
const DefaultInsertAttempts = 3

var (
	// ErrNoPendingReceipt is returned when details arrive without a processed receipt.
	ErrNoPendingReceipt = errors.New("no pending receipt")
	// ErrNoMatchingRule is returned when no entry rule matches.
	ErrNoMatchingRule = errors.New("no entry rule matched")
)

// affirmatives are the replies that confirm leaving the flow.
var affirmatives = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "sure": true,
	"ok": true, "okay": true, "ya": true, "yup": true,
}

// Reply is the controller's answer to one message.
// Handled is false when the flow declined the message and it should go to the
// document QA pipeline instead; Text is empty in that case.
type Reply struct {
	Text    string
	Handled bool
}

func handled(text string) Reply {
	return Reply{Text: text, Handled: true}
}

// Controller drives the lucky draw flow.
type Controller struct {
	intent         IntentGate
	intake         Intake
	ledger         store.Ledger
	rules          EntryRules
	insertAttempts int
	phones         *keyedMutex
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithEntryRules replaces the default entry classification rules.
func WithEntryRules(rules EntryRules) ControllerOption {
	return func(c *Controller) {
		c.rules = rules
	}
}

// WithInsertAttempts sets how many times an insert is tried with fresh receipt numbers.
func WithInsertAttempts(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.insertAttempts = n
		}
	}
}

// NewController creates a Controller.
func NewController(intent IntentGate, intake Intake, ledger store.Ledger, opts ...ControllerOption) *Controller {
	c := &Controller{
		intent:         intent,
		intake:         intake,
		ledger:         ledger,
		rules:          DefaultEntryRules,
		insertAttempts: DefaultInsertAttempts,
		phones:         newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle processes one message for a session and advances its flow state.
// Callers must not run Handle concurrently for the same session.
func (c *Controller) Handle(ctx context.Context, sess *models.Session, message string) (Reply, error) {
	text := strings.TrimSpace(message)
	st := &sess.State
	from := st.Current()

	var (
		reply Reply
		err   error
	)
	switch step := st.Step.(type) {
	case nil, models.Inactive:
		reply = c.handleInactive(ctx, st, text)
	case models.AwaitingReceipt:
		reply, err = c.handleAwaitingReceipt(ctx, st, text)
	case models.AwaitingDetails:
		reply, err = c.handleAwaitingDetails(ctx, st, step, text)
	case models.ConfirmingExit:
		reply = c.handleConfirmingExit(st, step, text)
	default:
		st.Reset()
		err = fmt.Errorf("unknown flow step %T", step)
	}

	sess.UpdatedAt = time.Now()
	if err != nil {
		slog.Error("Controller.Handle: failed", "error", err, "sessionID", sess.ID, "from", from, "to", st.Current())
		return Reply{}, err
	}
	slog.Debug("Controller.Handle: processed message", "sessionID", sess.ID, "from", from, "to", st.Current(), "handled", reply.Handled)
	return reply, nil
}

// Reset returns the session's flow to its initial state.
func (c *Controller) Reset(sess *models.Session) {
	sess.State.Reset()
	sess.UpdatedAt = time.Now()
	slog.Debug("Controller.Reset: session flow reset", "sessionID", sess.ID)
}

func (c *Controller) handleInactive(ctx context.Context, st *models.FlowState, text string) Reply {
	if !c.intent.IsLuckyDrawIntent(ctx, text) {
		return Reply{}
	}
	st.Reset()
	st.Step = models.AwaitingReceipt{}
	return handled(WelcomeMessage)
}

func (c *Controller) handleAwaitingReceipt(ctx context.Context, st *models.FlowState, text string) (Reply, error) {
	if !strings.EqualFold(text, "image") {
		st.Step = models.ConfirmingExit{Resume: models.AwaitingReceipt{}}
		return handled(ConfirmExitMessage), nil
	}

	receipt, err := c.intake.Process(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("receipt intake failed: %w", err)
	}
	st.Step = models.AwaitingDetails{Receipt: receipt}
	return handled(receiptProcessedMessage(receipt.ReceiptNumber, receipt.Amount, receipt.Confidence)), nil
}

func (c *Controller) handleAwaitingDetails(ctx context.Context, st *models.FlowState, step models.AwaitingDetails, text string) (Reply, error) {
	details, missing := ParseUserDetails(text)
	if details != nil {
		return c.finalize(ctx, st, step.Receipt, *details)
	}

	if len(missing) == 3 {
		st.Step = models.ConfirmingExit{Resume: step}
		return handled(ConfirmExitMessage), nil
	}

	st.RetryCount++
	if st.RetryCount >= models.MaxRetries {
		st.Reset()
		return handled(MaxRetriesExceededMessage), nil
	}
	return handled(retryDetailsMessage(missing, models.MaxRetries-st.RetryCount)), nil
}

func (c *Controller) handleConfirmingExit(st *models.FlowState, step models.ConfirmingExit, text string) Reply {
	if affirmatives[strings.ToLower(text)] {
		st.Reset()
		return handled(ExitConfirmedMessage)
	}

	switch step.Resume.(type) {
	case models.AwaitingReceipt:
		st.Step = step.Resume
		return handled(AwaitingReceiptReminder)
	case models.AwaitingDetails:
		st.Step = step.Resume
		return handled(AwaitingDetailsReminder)
	default:
		st.Reset()
		return handled(ExitConfirmedMessage)
	}
}

// finalize classifies and records the entry. The flow is reset afterwards
// whatever the outcome.
//
// Finalizations for one phone number run one at a time so the approved
// lookup and the insert see the same ledger. The ledger's own
// ErrApprovedPhoneExists covers writers in other processes: the entry is
// classified again against the winner and retried.
func (c *Controller) finalize(ctx context.Context, st *models.FlowState, receipt models.ReceiptRecord, details models.UserDetails) (Reply, error) {
	defer st.Reset()

	if receipt.ReceiptNumber <= 0 {
		return Reply{}, ErrNoPendingReceipt
	}

	unlock := c.phones.Lock(details.PhoneNumber)
	defer unlock()

	ec, rule, err := c.classify(ctx, receipt, details)
	if err != nil {
		return Reply{}, err
	}

	for attempt := 1; ; attempt++ {
		_, err := c.ledger.InsertEntry(ctx, models.NewLedgerEntry(receipt, details, rule.Status))
		if err == nil {
			break
		}
		collided := errors.Is(err, store.ErrConstraintViolation)
		approvedElsewhere := errors.Is(err, store.ErrApprovedPhoneExists)
		if !collided && !approvedElsewhere {
			return Reply{}, fmt.Errorf("failed to record entry: %w", err)
		}
		if attempt >= c.insertAttempts {
			slog.Warn("Controller.finalize: insert conflicts exhausted retries", "attempts", attempt, "receiptNo", receipt.ReceiptNumber, "error", err)
			return handled(FlowFailedMessage), nil
		}

		if approvedElsewhere {
			slog.Debug("Controller.finalize: phone approved concurrently, reclassifying", "receiptNo", receipt.ReceiptNumber)
			if ec, rule, err = c.classify(ctx, receipt, details); err != nil {
				return Reply{}, err
			}
			continue
		}

		n, err := c.intake.NextReceiptNumber(ctx)
		if err != nil {
			return Reply{}, fmt.Errorf("failed to reallocate receipt number: %w", err)
		}
		slog.Debug("Controller.finalize: receipt number collided, retrying", "old", receipt.ReceiptNumber, "new", n)
		receipt.ReceiptNumber = n
	}

	slog.Info("Controller.finalize: entry recorded", "receiptNo", receipt.ReceiptNumber, "status", rule.Status, "rule", rule.Name)
	return handled(rule.Message(ec, receipt.ReceiptNumber)), nil
}

// classify looks up the phone's approved entry and picks the matching rule.
func (c *Controller) classify(ctx context.Context, receipt models.ReceiptRecord, details models.UserDetails) (EntryContext, EntryRule, error) {
	existing, err := c.ledger.FindApprovedByPhone(ctx, details.PhoneNumber)
	if err != nil {
		return EntryContext{}, EntryRule{}, fmt.Errorf("failed to look up approved entry: %w", err)
	}
	ec := EntryContext{Receipt: receipt, Details: details, ExistingApproved: existing}
	rule, ok := c.rules.Evaluate(ec)
	if !ok {
		return ec, EntryRule{}, ErrNoMatchingRule
	}
	return ec, rule, nil
}
