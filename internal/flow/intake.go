package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/shopspring/decimal"
)

// ReceiptProcessor turns a submitted receipt into an amount and a 0-100
// confidence score.
type ReceiptProcessor interface {
	Process(ctx context.Context) (amount decimal.Decimal, confidence float64, err error)
}

// Default values returned by StaticReceiptProcessor.
var (
	DefaultStubAmount     = decimal.RequireFromString("25.00")
	DefaultStubConfidence = 90.0
)

// StaticReceiptProcessor returns fixed values. It stands in for OCR.
type StaticReceiptProcessor struct {
	Amount     decimal.Decimal
	Confidence float64
}

// NewStaticReceiptProcessor returns a processor yielding the default stub values.
func NewStaticReceiptProcessor() *StaticReceiptProcessor {
	return &StaticReceiptProcessor{Amount: DefaultStubAmount, Confidence: DefaultStubConfidence}
}

func (p *StaticReceiptProcessor) Process(ctx context.Context) (decimal.Decimal, float64, error) {
	return p.Amount, p.Confidence, nil
}

// Intake produces receipt records for the flow controller.
type Intake interface {
	// Process runs receipt processing and assigns a receipt number.
	Process(ctx context.Context) (models.ReceiptRecord, error)
	// NextReceiptNumber allocates a fresh receipt number.
	NextReceiptNumber(ctx context.Context) (int64, error)
}

// ReceiptIntake combines a ReceiptProcessor with a receipt number allocator.
type ReceiptIntake struct {
	processor ReceiptProcessor
	allocator ReceiptNumberAllocator
}

var _ Intake = (*ReceiptIntake)(nil)

// NewReceiptIntake creates a ReceiptIntake.
func NewReceiptIntake(processor ReceiptProcessor, allocator ReceiptNumberAllocator) *ReceiptIntake {
	return &ReceiptIntake{processor: processor, allocator: allocator}
}

func (i *ReceiptIntake) Process(ctx context.Context) (models.ReceiptRecord, error) {
	amount, confidence, err := i.processor.Process(ctx)
	if err != nil {
		slog.Error("ReceiptIntake.Process: receipt processing failed", "error", err)
		return models.ReceiptRecord{}, fmt.Errorf("receipt processing failed: %w", err)
	}
	if amount.IsNegative() || confidence < 0 || confidence > 100 {
		return models.ReceiptRecord{}, fmt.Errorf("receipt processor returned out-of-range values: amount=%s confidence=%v", amount, confidence)
	}

	n, err := i.allocator.Next(ctx)
	if err != nil {
		slog.Error("ReceiptIntake.Process: receipt number allocation failed", "error", err)
		return models.ReceiptRecord{}, err
	}
	slog.Debug("ReceiptIntake.Process: receipt processed", "receiptNo", n, "amount", amount.String(), "confidence", confidence)
	return models.ReceiptRecord{ReceiptNumber: n, Amount: amount, Confidence: confidence}, nil
}

func (i *ReceiptIntake) NextReceiptNumber(ctx context.Context) (int64, error) {
	return i.allocator.Next(ctx)
}
