package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/LuckyPipe/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry scans a LedgerEntry in entryColumns order.
func scanEntry(row rowScanner) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	var status string
	var approvedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.ReceiptNumber, &e.Name, &e.PhoneNumber, &e.Email,
		&e.TransactionAmount, &e.ConfidenceLevel, &status, &e.CreatedAt, &approvedAt,
	)
	if err == sql.ErrNoRows {
		return e, err
	}
	if err != nil {
		return e, fmt.Errorf("scan entry failed: %w", err)
	}
	e.Status = models.EntryStatus(status)
	if approvedAt.Valid {
		t := approvedAt.Time
		e.ApprovedAt = &t
	}
	return e, nil
}
