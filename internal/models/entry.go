package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptRecord is a processed receipt waiting to become a ledger entry.
type ReceiptRecord struct {
	ReceiptNumber int64           `json:"receipt_no"`
	Amount        decimal.Decimal `json:"amount"`
	Confidence    float64         `json:"confidence_level"` // 0-100, from the intake collaborator
}

// UserDetails are the contact details parsed from a user's message.
type UserDetails struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

// LedgerEntry is one finalized lucky draw submission.
// Entries are append-only; ApprovedAt is set only for approved entries.
type LedgerEntry struct {
	ID                int64           `json:"id"`
	ReceiptNumber     int64           `json:"receipt_no" validate:"gt=0"`
	Name              string          `json:"name" validate:"required"`
	PhoneNumber       string          `json:"phone_number" validate:"required"`
	Email             string          `json:"email" validate:"required"`
	TransactionAmount decimal.Decimal `json:"transaction_amount" validate:"gte=0"`
	ConfidenceLevel   float64         `json:"confidence_level" validate:"gte=0,lte=100"`
	Status            EntryStatus     `json:"status" validate:"oneof=approved pending rejected applied"`
	CreatedAt         time.Time       `json:"created_at"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty"`
}

// NewLedgerEntry combines a receipt, the user's details and a status into an entry.
func NewLedgerEntry(r ReceiptRecord, d UserDetails, status EntryStatus) LedgerEntry {
	return LedgerEntry{
		ReceiptNumber:     r.ReceiptNumber,
		Name:              d.Name,
		PhoneNumber:       d.PhoneNumber,
		Email:             d.Email,
		TransactionAmount: r.Amount,
		ConfidenceLevel:   r.Confidence,
		Status:            status,
	}
}
