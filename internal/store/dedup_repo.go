package store

import (
	"context"
	"time"
)

// InboundClaimTTL is how long an unprocessed inbound record blocks redelivery.
// A message whose handler died before MarkProcessed is handled again once its
// claim is older than this.
const InboundClaimTTL = 2 * time.Minute

// DedupRecord is one inbound chat message seen by the chat layer.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	SessionID   string     `json:"session_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// blocks reports whether the record still marks its message as taken at now.
func (r DedupRecord) blocks(now time.Time) bool {
	return r.ProcessedAt != nil || now.Sub(r.ReceivedAt) < InboundClaimTTL
}

// DedupRepo tracks inbound message ids so redelivered messages are handled once.
type DedupRepo interface {
	// IsDuplicate reports whether the message was processed or is being processed.
	IsDuplicate(ctx context.Context, messageID string) (bool, error)

	// RecordInbound claims a message for processing. It returns false when
	// the message is a duplicate; a stale unprocessed claim is taken over.
	RecordInbound(ctx context.Context, messageID, sessionID string) (bool, error)

	// MarkProcessed completes the claim on a message.
	MarkProcessed(ctx context.Context, messageID string) error
}
