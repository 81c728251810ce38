package flow

import (
	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/shopspring/decimal"
)

// MinimumAmount is the smallest receipt amount that qualifies for the draw.
var MinimumAmount = decimal.NewFromInt(20)

// AutoApproveConfidence is the intake confidence at or above which a
// qualifying entry is approved without review.
const AutoApproveConfidence = 90.0

// EntryContext is everything a rule may look at when classifying an entry.
type EntryContext struct {
	Receipt models.ReceiptRecord
	Details models.UserDetails
	// ExistingApproved is the phone number's approved entry, if any.
	ExistingApproved *models.LedgerEntry
}

// EntryRule decides the status of an entry when Match reports true.
// Message builds the user reply from the receipt number actually recorded.
type EntryRule struct {
	Name    string
	Match   func(c EntryContext) bool
	Status  models.EntryStatus
	Message func(c EntryContext, receiptNo int64) string
}

// EntryRules is a priority-ordered decision list; the first matching rule wins.
type EntryRules []EntryRule

// Evaluate returns the first rule matching c.
func (rs EntryRules) Evaluate(c EntryContext) (EntryRule, bool) {
	for _, r := range rs {
		if r.Match(c) {
			return r, true
		}
	}
	return EntryRule{}, false
}

// DefaultEntryRules classifies entries as duplicate, low amount, auto-approved
// or pending, in that order.
var DefaultEntryRules = EntryRules{
	{
		Name:   "duplicate-approved-phone",
		Match:  func(c EntryContext) bool { return c.ExistingApproved != nil },
		Status: models.EntryStatusApplied,
		Message: func(c EntryContext, _ int64) string {
			return duplicateMessage(c.ExistingApproved.ReceiptNumber)
		},
	},
	{
		Name:   "low-amount",
		Match:  func(c EntryContext) bool { return c.Receipt.Amount.LessThan(MinimumAmount) },
		Status: models.EntryStatusRejected,
		Message: func(c EntryContext, _ int64) string {
			return rejectedLowAmountMessage(c.Receipt.Amount)
		},
	},
	{
		Name: "auto-approve",
		Match: func(c EntryContext) bool {
			return c.Receipt.Amount.GreaterThanOrEqual(MinimumAmount) && c.Receipt.Confidence >= AutoApproveConfidence
		},
		Status: models.EntryStatusApproved,
		Message: func(_ EntryContext, receiptNo int64) string {
			return successMessage(receiptNo, StatusLabelApproved)
		},
	},
	{
		Name:   "fallback",
		Match:  func(EntryContext) bool { return true },
		Status: models.EntryStatusPending,
		Message: func(_ EntryContext, receiptNo int64) string {
			return successMessage(receiptNo, StatusLabelPending)
		},
	},
}
