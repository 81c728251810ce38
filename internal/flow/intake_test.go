package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/BTreeMap/LuckyPipe/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticReceiptProcessor(t *testing.T) {
	amount, confidence, err := NewStaticReceiptProcessor().Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "25.00", amount.StringFixed(2))
	assert.Equal(t, 90.0, confidence)
}

func TestReceiptIntake_AllocatesFromLedger(t *testing.T) {
	ctx := context.Background()
	ledger := store.NewInMemoryStore()
	_, err := ledger.InsertEntry(ctx, models.LedgerEntry{
		ReceiptNumber: 41, Name: "a", PhoneNumber: "1", Email: "a@x.com",
		TransactionAmount: decimal.NewFromInt(20), ConfidenceLevel: 90, Status: models.EntryStatusPending,
	})
	require.NoError(t, err)

	intake := NewReceiptIntake(NewStaticReceiptProcessor(), NewLedgerAllocator(ledger))
	r, err := intake.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), r.ReceiptNumber)
	assert.True(t, r.Amount.Equal(DefaultStubAmount))
	assert.Equal(t, DefaultStubConfidence, r.Confidence)

	// Nothing was inserted, yet the next receipt gets a new number.
	r2, err := intake.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(43), r2.ReceiptNumber)
}

func TestReceiptIntake_ProcessorError(t *testing.T) {
	boom := errors.New("ocr failed")
	intake := NewReceiptIntake(&fakeProcessor{err: boom}, NewLedgerAllocator(store.NewInMemoryStore()))
	_, err := intake.Process(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestReceiptIntake_OutOfRange(t *testing.T) {
	tests := []*fakeProcessor{
		{amount: decimal.NewFromInt(-1), confidence: 50},
		{amount: decimal.NewFromInt(1), confidence: 101},
		{amount: decimal.NewFromInt(1), confidence: -0.5},
	}
	for _, p := range tests {
		intake := NewReceiptIntake(p, NewLedgerAllocator(store.NewInMemoryStore()))
		_, err := intake.Process(context.Background())
		assert.Error(t, err)
	}
}
