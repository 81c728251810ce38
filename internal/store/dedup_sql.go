package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
)

const dedupTable = "inbound_dedup"

var _ DedupRepo = (*sqlLedger)(nil)

func (l *sqlLedger) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	query, args, err := l.builder.Select("COUNT(*)").
		From(dedupTable).
		Where(squirrel.Eq{"message_id": messageID}).
		Where(squirrel.Or{
			squirrel.NotEq{"processed_at": nil},
			squirrel.GtOrEq{"received_at": time.Now().UTC().Add(-InboundClaimTTL)},
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build dedup check: %w", err)
	}
	var n int
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return n > 0, nil
}

// RecordInbound inserts the claim, or takes over an unprocessed one whose
// lease ran out. Both dialects report zero affected rows when the conflict
// update's WHERE rejects the row.
func (l *sqlLedger) RecordInbound(ctx context.Context, messageID, sessionID string) (bool, error) {
	now := time.Now().UTC()
	query, args, err := l.builder.Insert(dedupTable).
		Columns("message_id", "session_id", "received_at").
		Values(messageID, sessionID, now).
		Suffix(`ON CONFLICT (message_id) DO UPDATE
			SET received_at = excluded.received_at, session_id = excluded.session_id
			WHERE `+dedupTable+`.processed_at IS NULL AND `+dedupTable+`.received_at < ?`,
			now.Add(-InboundClaimTTL)).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build record inbound: %w", err)
	}

	result, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	if n > 0 {
		slog.Debug(l.name+" RecordInbound claimed", "messageID", messageID, "sessionID", sessionID)
	}
	return n > 0, nil
}

func (l *sqlLedger) MarkProcessed(ctx context.Context, messageID string) error {
	query, args, err := l.builder.Update(dedupTable).
		Set("processed_at", time.Now().UTC()).
		Where(squirrel.Eq{"message_id": messageID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark processed: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
