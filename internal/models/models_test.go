package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewFlowStateIsInactive(t *testing.T) {
	s := NewFlowState()
	assert.Equal(t, StepInactive, s.Current())
	assert.False(t, s.Active())
	_, ok := s.PendingReceipt()
	assert.False(t, ok)
	_, ok = s.PreviousStep()
	assert.False(t, ok)
}

func TestZeroFlowStateIsInactive(t *testing.T) {
	var s FlowState
	assert.Equal(t, StepInactive, s.Current())
	assert.False(t, s.Active())
}

func TestPendingReceiptFollowsStep(t *testing.T) {
	r := ReceiptRecord{ReceiptNumber: 7, Amount: decimal.NewFromInt(25), Confidence: 90}

	tests := []struct {
		name        string
		step        Step
		wantReceipt bool
		wantPrev    StepName
	}{
		{"inactive", Inactive{}, false, ""},
		{"awaiting receipt", AwaitingReceipt{}, false, ""},
		{"awaiting details", AwaitingDetails{Receipt: r}, true, ""},
		{"confirming exit from receipt", ConfirmingExit{Resume: AwaitingReceipt{}}, false, StepAwaitingReceipt},
		{"confirming exit from details", ConfirmingExit{Resume: AwaitingDetails{Receipt: r}}, true, StepAwaitingDetails},
		{"confirming exit unknown", ConfirmingExit{}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := FlowState{Step: tt.step}
			got, ok := s.PendingReceipt()
			assert.Equal(t, tt.wantReceipt, ok)
			if ok {
				assert.Equal(t, int64(7), got.ReceiptNumber)
			}
			prev, ok := s.PreviousStep()
			assert.Equal(t, tt.wantPrev != "", ok)
			assert.Equal(t, tt.wantPrev, prev)
		})
	}
}

func TestResetClearsRetries(t *testing.T) {
	s := FlowState{Step: AwaitingDetails{}, RetryCount: 2}
	s.Reset()
	assert.Equal(t, StepInactive, s.Current())
	assert.Zero(t, s.RetryCount)
}

func TestIsValidEntryStatus(t *testing.T) {
	for _, st := range []EntryStatus{EntryStatusApproved, EntryStatusPending, EntryStatusRejected, EntryStatusApplied} {
		assert.True(t, IsValidEntryStatus(st), st)
	}
	assert.False(t, IsValidEntryStatus("won"))
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := SuccessWithMessage("done", 1)
	assert.Equal(t, string(APIStatusOK), ok.Status)
	assert.Equal(t, "done", ok.Message)
	assert.Equal(t, 1, ok.Result)

	e := Error("bad")
	assert.Equal(t, string(APIStatusError), e.Status)
	assert.Nil(t, e.Result)
}
