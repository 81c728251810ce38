package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrationsFS embed.FS

const entriesTable = "lucky_draw_entries"

var entryColumns = []string{
	"id", "receipt_no", "name", "phone_number", "email",
	"transaction_amount", "confidence_level", "status", "created_at", "approved_at",
}

// approvedPhoneIndex is the partial unique index allowing one approved entry per phone.
const approvedPhoneIndex = "lucky_draw_entries_one_approved_per_phone"

// uniqueViolation maps a driver error to ErrConstraintViolation or
// ErrApprovedPhoneExists, or returns nil when err is no unique violation.
type uniqueViolation func(err error) error

// sqlLedger implements Ledger on top of database/sql. The SQLite and
// PostgreSQL stores differ only in placeholder format, migrations and the
// way a unique violation is reported by the driver.
type sqlLedger struct {
	db            *sql.DB
	builder       squirrel.StatementBuilderType
	name          string
	uniqueErr     uniqueViolation
	schemaVersion int64
}

func newSQLLedger(db *sql.DB, name string, placeholder squirrel.PlaceholderFormat, uniqueErr uniqueViolation) sqlLedger {
	return sqlLedger{
		db:        db,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(placeholder),
		name:      name,
		uniqueErr: uniqueErr,
	}
}

// migrate applies the embedded goose migrations in dir for the given dialect.
func (l *sqlLedger) migrate(ctx context.Context, dialect goose.Dialect, dir string) error {
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to open migrations %s: %w", dir, err)
	}
	provider, err := goose.NewProvider(dialect, l.db, sub)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		slog.Debug(l.name+" migration applied", "source", r.Source.Path, "duration", r.Duration)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("goose version: %w", err)
	}
	l.schemaVersion = version
	return nil
}

// SchemaVersion returns the migration version applied when the store was opened.
func (l *sqlLedger) SchemaVersion() int64 {
	return l.schemaVersion
}

func (l *sqlLedger) InsertEntry(ctx context.Context, entry models.LedgerEntry) (int64, error) {
	entry, err := prepareEntry(entry, time.Now().UTC())
	if err != nil {
		slog.Warn(l.name+" InsertEntry validation failed", "error", err, "receiptNo", entry.ReceiptNumber)
		return 0, err
	}

	query, args, err := l.builder.Insert(entriesTable).
		Columns(entryColumns[1:]...).
		Values(entry.ReceiptNumber, entry.Name, entry.PhoneNumber, entry.Email,
			entry.TransactionAmount, entry.ConfidenceLevel, string(entry.Status),
			entry.CreatedAt, entry.ApprovedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if kind := l.uniqueErr(err); kind != nil {
			slog.Debug(l.name+" InsertEntry unique violation", "kind", kind, "receiptNo", entry.ReceiptNumber)
			return 0, fmt.Errorf("%w: receipt %d", kind, entry.ReceiptNumber)
		}
		slog.Error(l.name+" InsertEntry failed", "error", err, "receiptNo", entry.ReceiptNumber)
		return 0, fmt.Errorf("failed to insert entry for receipt %d: %w", entry.ReceiptNumber, err)
	}
	slog.Debug(l.name+" InsertEntry succeeded", "id", id, "receiptNo", entry.ReceiptNumber, "status", entry.Status)
	return id, nil
}

func (l *sqlLedger) FindApprovedByPhone(ctx context.Context, phoneNumber string) (*models.LedgerEntry, error) {
	q := l.builder.Select(entryColumns...).
		From(entriesTable).
		Where(squirrel.Eq{"phone_number": phoneNumber, "status": string(models.EntryStatusApproved)}).
		OrderBy("id").
		Limit(1)
	entry, err := l.queryOne(ctx, q)
	if err != nil {
		slog.Error(l.name+" FindApprovedByPhone failed", "error", err)
		return nil, err
	}
	return entry, nil
}

func (l *sqlLedger) NextReceiptNumber(ctx context.Context) (int64, error) {
	query, args, err := l.builder.Select("COALESCE(MAX(receipt_no), 0)").From(entriesTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build max query: %w", err)
	}
	var max int64
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		slog.Error(l.name+" NextReceiptNumber failed", "error", err)
		return 0, fmt.Errorf("failed to read max receipt number: %w", err)
	}
	return max + 1, nil
}

func (l *sqlLedger) GetEntryByReceipt(ctx context.Context, receiptNumber int64) (*models.LedgerEntry, error) {
	q := l.builder.Select(entryColumns...).
		From(entriesTable).
		Where(squirrel.Eq{"receipt_no": receiptNumber})
	entry, err := l.queryOne(ctx, q)
	if err != nil {
		slog.Error(l.name+" GetEntryByReceipt failed", "error", err, "receiptNo", receiptNumber)
		return nil, err
	}
	return entry, nil
}

func (l *sqlLedger) ListEntries(ctx context.Context, filter EntryFilter) ([]models.LedgerEntry, error) {
	q := l.builder.Select(entryColumns...).From(entriesTable).OrderBy("receipt_no")
	if filter.PhoneNumber != "" {
		q = q.Where(squirrel.Eq{"phone_number": filter.PhoneNumber})
	}
	if filter.Status != "" {
		q = q.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error(l.name+" ListEntries query failed", "error", err)
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			slog.Error(l.name+" ListEntries scan failed", "error", err)
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		slog.Error(l.name+" ListEntries rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate entry rows: %w", err)
	}
	slog.Debug(l.name+" ListEntries succeeded", "count", len(entries))
	return entries, nil
}

func (l *sqlLedger) queryOne(ctx context.Context, q squirrel.SelectBuilder) (*models.LedgerEntry, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	e, err := scanEntry(l.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Close closes the database connection.
func (l *sqlLedger) Close() error {
	slog.Debug("Closing " + l.name + " database connection")
	err := l.db.Close()
	if err != nil {
		slog.Error("Failed to close "+l.name+" database", "error", err)
	} else {
		slog.Debug(l.name + " database connection closed successfully")
	}
	return err
}
