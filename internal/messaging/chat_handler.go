// Package messaging hosts the lucky draw flow inside a chat conversation.
//
// ChatHandler serializes messages per session, drops redelivered messages and
// turns flow failures into a generic notice so the chat stays usable.
package messaging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BTreeMap/LuckyPipe/internal/flow"
	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/BTreeMap/LuckyPipe/internal/store"
)

// GenericFailureNotice is the only error text ever shown to a user.
const GenericFailureNotice = "⚠️ We encountered an issue processing your message. Please try again or contact support."

// ErrEmptySessionID is returned for messages without a session id.
var ErrEmptySessionID = errors.New("session id is required")

// FlowHandler is the message handler contract of the flow controller.
type FlowHandler interface {
	Handle(ctx context.Context, sess *models.Session, message string) (flow.Reply, error)
	Reset(sess *models.Session)
}

// InboundMessage is one user message addressed to a conversation.
type InboundMessage struct {
	SessionID string
	MessageID string // optional; enables redelivery detection
	Text      string
}

// OutboundMessage is the handler's answer. Handled is false when the flow
// declined the message and it belongs to the document QA pipeline.
type OutboundMessage struct {
	SessionID string
	MessageID string
	Text      string
	Handled   bool
	Duplicate bool
	Step      models.StepName
}

// ChatHandler routes chat messages into the flow controller.
type ChatHandler struct {
	flow     FlowHandler
	sessions *SessionRegistry
	dedup    store.DedupRepo
	notice   string
}

// ChatHandlerOption configures a ChatHandler.
type ChatHandlerOption func(*ChatHandler)

// WithDedupRepo enables inbound deduplication by message id.
func WithDedupRepo(repo store.DedupRepo) ChatHandlerOption {
	return func(h *ChatHandler) {
		h.dedup = repo
	}
}

// WithSessionRegistry sets the registry holding sessions.
func WithSessionRegistry(r *SessionRegistry) ChatHandlerOption {
	return func(h *ChatHandler) {
		h.sessions = r
	}
}

// WithFailureNotice overrides the generic failure notice.
func WithFailureNotice(notice string) ChatHandlerOption {
	return func(h *ChatHandler) {
		h.notice = notice
	}
}

// NewChatHandler creates a ChatHandler around a flow handler.
func NewChatHandler(fh FlowHandler, opts ...ChatHandlerOption) *ChatHandler {
	h := &ChatHandler{
		flow:     fh,
		sessions: NewSessionRegistry(),
		notice:   GenericFailureNotice,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Sessions returns the registry holding the handler's sessions.
func (h *ChatHandler) Sessions() *SessionRegistry {
	return h.sessions
}

// HandleMessage runs one message through the flow for its session. Flow errors
// are logged and answered with the generic failure notice; only malformed
// input is returned as an error.
func (h *ChatHandler) HandleMessage(ctx context.Context, in InboundMessage) (OutboundMessage, error) {
	if in.SessionID == "" {
		return OutboundMessage{}, ErrEmptySessionID
	}
	out := OutboundMessage{SessionID: in.SessionID, MessageID: in.MessageID}

	// The claim lapses if this handler never reaches MarkProcessed, so a
	// redelivery after a crash is handled rather than dropped.
	if h.dedup != nil && in.MessageID != "" {
		isNew, err := h.dedup.RecordInbound(ctx, in.MessageID, in.SessionID)
		if err != nil {
			// Processing twice is preferable to dropping the message.
			slog.Warn("ChatHandler.HandleMessage: dedup record failed", "error", err, "messageID", in.MessageID)
		} else if !isNew {
			slog.Debug("ChatHandler.HandleMessage: duplicate message ignored", "messageID", in.MessageID, "sessionID", in.SessionID)
			out.Duplicate = true
			out.Handled = true
			out.Step = models.StepInactive
			if step, ok := h.sessions.Step(in.SessionID); ok {
				out.Step = step
			}
			return out, nil
		}
	}

	sess, release := h.sessions.Acquire(in.SessionID)
	reply, err := h.flow.Handle(ctx, sess, in.Text)
	out.Step = sess.State.Current()
	release()

	if err != nil {
		slog.Error("ChatHandler.HandleMessage: flow failed", "error", err, "sessionID", in.SessionID, "step", out.Step)
		out.Text = h.notice
		out.Handled = true
	} else {
		out.Text = reply.Text
		out.Handled = reply.Handled
	}

	if h.dedup != nil && in.MessageID != "" {
		if err := h.dedup.MarkProcessed(ctx, in.MessageID); err != nil {
			slog.Warn("ChatHandler.HandleMessage: mark processed failed", "error", err, "messageID", in.MessageID)
		}
	}
	slog.Debug("ChatHandler.HandleMessage: message handled", "sessionID", in.SessionID, "handled", out.Handled, "step", out.Step)
	return out, nil
}

// ClearSession resets the flow of a session, as when the surrounding chat is
// cleared. The registry drops the session once it is released.
func (h *ChatHandler) ClearSession(sessionID string) {
	sess, release := h.sessions.Acquire(sessionID)
	h.flow.Reset(sess)
	release()
	slog.Debug("ChatHandler.ClearSession: session cleared", "sessionID", sessionID)
}
