// Package store provides storage backends for LuckyPipe.
//
// It includes the lucky draw entry ledger (in-memory, SQLite and PostgreSQL)
// and the inbound message deduplication records used by the chat layer.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/LuckyPipe/internal/models"
)

// Error variables for ledger operations.
var (
	// ErrConstraintViolation is returned when an insert collides on the unique receipt number.
	ErrConstraintViolation = errors.New("ledger constraint violation")
	// ErrApprovedPhoneExists is returned when an approved insert meets an
	// earlier approved entry for the same phone number.
	ErrApprovedPhoneExists = errors.New("phone number already has an approved entry")
	// ErrInvalidEntry is returned when an entry fails field validation.
	ErrInvalidEntry = errors.New("invalid ledger entry")
	// ErrDSNNotSet is returned when a SQL store is created without a DSN.
	ErrDSNNotSet = errors.New("database DSN not set")
)

// DSN type names returned by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeSQLite   = "sqlite3"
)

// EntryFilter narrows ListEntries. Zero values mean "no filter".
type EntryFilter struct {
	PhoneNumber string
	Status      models.EntryStatus
	Limit       uint64
}

// Ledger is the durable store of lucky draw entries.
type Ledger interface {
	// InsertEntry appends an entry and returns its id. It fails with
	// ErrConstraintViolation when the receipt number is already taken and
	// with ErrApprovedPhoneExists when an approved entry would be the
	// phone number's second.
	InsertEntry(ctx context.Context, entry models.LedgerEntry) (int64, error)

	// FindApprovedByPhone returns the approved entry for a phone number, or nil.
	FindApprovedByPhone(ctx context.Context, phoneNumber string) (*models.LedgerEntry, error)

	// NextReceiptNumber returns max(receipt number)+1, or 1 for an empty ledger.
	NextReceiptNumber(ctx context.Context) (int64, error)

	// GetEntryByReceipt returns the entry with the given receipt number, or nil.
	GetEntryByReceipt(ctx context.Context, receiptNumber int64) (*models.LedgerEntry, error)

	// ListEntries returns entries ordered by receipt number.
	ListEntries(ctx context.Context, filter EntryFilter) ([]models.LedgerEntry, error)

	Close() error
}

// Store is a ledger that also records inbound message ids.
type Store interface {
	Ledger
	DedupRepo
}

// Opts holds configuration for SQL stores.
type Opts struct {
	DSN string // SQLite file path or PostgreSQL connection string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports whether a DSN addresses PostgreSQL or a SQLite file.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// Open creates the store matching the DSN type, or an in-memory store when dsn is empty.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "":
		slog.Debug("No database DSN provided, using in-memory store")
		return NewInMemoryStore(), nil
	case DetectDSNType(dsn) == DSNTypePostgres:
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return NewPostgresStore(ctx, WithPostgresDSN(dsn))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
		return NewSQLiteStore(ctx, WithSQLiteDSN(dsn))
	}
}

// InMemoryStore is a Store kept in process memory. It is safe for concurrent use.
type InMemoryStore struct {
	mu      sync.Mutex
	entries []models.LedgerEntry
	nextID  int64
	inbound map[string]DedupRecord
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID:  1,
		inbound: make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) InsertEntry(ctx context.Context, entry models.LedgerEntry) (int64, error) {
	entry, err := prepareEntry(entry, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ReceiptNumber == entry.ReceiptNumber {
			slog.Debug("InMemoryStore InsertEntry duplicate receipt number", "receiptNo", entry.ReceiptNumber)
			return 0, ErrConstraintViolation
		}
		if entry.Status == models.EntryStatusApproved && e.Status == models.EntryStatusApproved && e.PhoneNumber == entry.PhoneNumber {
			slog.Debug("InMemoryStore InsertEntry phone already approved", "receiptNo", entry.ReceiptNumber)
			return 0, ErrApprovedPhoneExists
		}
	}
	entry.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, entry)
	slog.Debug("InMemoryStore InsertEntry succeeded", "id", entry.ID, "receiptNo", entry.ReceiptNumber, "status", entry.Status)
	return entry.ID, nil
}

func (s *InMemoryStore) FindApprovedByPhone(ctx context.Context, phoneNumber string) (*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.PhoneNumber == phoneNumber && e.Status == models.EntryStatusApproved {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) NextReceiptNumber(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for _, e := range s.entries {
		if e.ReceiptNumber > max {
			max = e.ReceiptNumber
		}
	}
	return max + 1, nil
}

func (s *InMemoryStore) GetEntryByReceipt(ctx context.Context, receiptNumber int64) (*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ReceiptNumber == receiptNumber {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ListEntries(ctx context.Context, filter EntryFilter) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	out := make([]models.LedgerEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.PhoneNumber != "" && e.PhoneNumber != filter.PhoneNumber {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ReceiptNumber < out[j].ReceiptNumber })
	if filter.Limit > 0 && uint64(len(out)) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
