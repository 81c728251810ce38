// Package models defines flow type definitions to avoid circular imports.
package models

// StepName identifies a step of the lucky draw flow.
type StepName string

// EntryStatus is the outcome recorded for a ledger entry.
type EntryStatus string

// Step name constants.
const (
	StepInactive        StepName = "INACTIVE"
	StepAwaitingReceipt StepName = "AWAITING_RECEIPT"
	StepAwaitingDetails StepName = "AWAITING_DETAILS"
	StepConfirmingExit  StepName = "CONFIRMING_EXIT"
)

// Entry status constants. The string values are the persisted column values.
const (
	EntryStatusApproved EntryStatus = "approved"
	EntryStatusPending  EntryStatus = "pending"
	EntryStatusRejected EntryStatus = "rejected"
	EntryStatusApplied  EntryStatus = "applied"
)

// IsValidEntryStatus checks if the given status is one of the persisted statuses.
func IsValidEntryStatus(s EntryStatus) bool {
	switch s {
	case EntryStatusApproved, EntryStatusPending, EntryStatusRejected, EntryStatusApplied:
		return true
	default:
		return false
	}
}

// MaxRetries is the number of invalid detail submissions tolerated before the flow aborts.
const MaxRetries = 3
