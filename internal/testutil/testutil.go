// Package testutil provides common test utilities and helpers for LuckyPipe tests.
package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/BTreeMap/LuckyPipe/internal/flow"
	"github.com/BTreeMap/LuckyPipe/internal/messaging"
	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/BTreeMap/LuckyPipe/internal/store"
	"github.com/shopspring/decimal"
)

// SamplePhone is the phone number used by SampleEntries.
const SamplePhone = "555"

// NewTestChatHandler wires a chat handler to an in-memory store, the keyword
// intent gate and the stub receipt processor.
func NewTestChatHandler() (*messaging.ChatHandler, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	intake := flow.NewReceiptIntake(flow.NewStaticReceiptProcessor(), flow.NewLedgerAllocator(st))
	ctrl := flow.NewController(flow.NewKeywordIntentGate(nil), intake, st)
	return messaging.NewChatHandler(ctrl, messaging.WithDedupRepo(st)), st
}

// SampleEntries returns one entry per status, numbered from 1.
func SampleEntries() []models.LedgerEntry {
	statuses := []models.EntryStatus{
		models.EntryStatusApproved,
		models.EntryStatusApplied,
		models.EntryStatusRejected,
		models.EntryStatusPending,
	}
	entries := make([]models.LedgerEntry, 0, len(statuses))
	for i, status := range statuses {
		entries = append(entries, models.LedgerEntry{
			ReceiptNumber:     int64(i + 1),
			Name:              "Jo",
			PhoneNumber:       SamplePhone,
			Email:             "jo@x.com",
			TransactionAmount: decimal.NewFromInt(25),
			ConfidenceLevel:   90,
			Status:            status,
		})
	}
	return entries
}

// SeedEntries inserts entries into the ledger and fails the test on error.
func SeedEntries(t *testing.T, ledger store.Ledger, entries ...models.LedgerEntry) {
	t.Helper()
	for _, e := range entries {
		if _, err := ledger.InsertEntry(context.Background(), e); err != nil {
			t.Fatalf("failed to seed entry %d: %v", e.ReceiptNumber, err)
		}
	}
}

// AssertEntryCount validates the number of ledger entries matching filter.
func AssertEntryCount(t *testing.T, ledger store.Ledger, filter store.EntryFilter, expected int, label string) {
	t.Helper()
	ctx := context.Background()
	entries, err := ledger.ListEntries(ctx, filter)
	if err != nil {
		t.Fatalf("%s: failed to list entries: %v", label, err)
	}
	if len(entries) != expected {
		t.Errorf("%s: expected %d entries, got %d", label, expected, len(entries))
	}
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
