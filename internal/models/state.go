// Package models defines state management structures for LuckyPipe flows.
package models

import "time"

// Step is the current position of a session in the lucky draw flow.
// Each step carries exactly the data that is valid while it is active, so a
// pending receipt only exists inside AwaitingDetails and a resume target only
// exists inside ConfirmingExit.
type Step interface {
	Name() StepName
	isStep()
}

// Inactive is the initial and terminal step.
type Inactive struct{}

// AwaitingReceipt waits for the user to submit a receipt.
type AwaitingReceipt struct{}

// AwaitingDetails holds the processed receipt until contact details arrive.
type AwaitingDetails struct {
	Receipt ReceiptRecord
}

// ConfirmingExit asks whether the user wants to leave the flow.
// Resume is the step to return to when the user declines; nil means unknown.
type ConfirmingExit struct {
	Resume Step
}

func (Inactive) Name() StepName        { return StepInactive }
func (AwaitingReceipt) Name() StepName { return StepAwaitingReceipt }
func (AwaitingDetails) Name() StepName { return StepAwaitingDetails }
func (ConfirmingExit) Name() StepName  { return StepConfirmingExit }

func (Inactive) isStep()        {}
func (AwaitingReceipt) isStep() {}
func (AwaitingDetails) isStep() {}
func (ConfirmingExit) isStep()  {}

// FlowState represents the in-memory state of one conversation in the lucky draw flow.
type FlowState struct {
	Step       Step `json:"-"`
	RetryCount int  `json:"retry_count"`
}

// NewFlowState returns the initial flow state.
func NewFlowState() FlowState {
	return FlowState{Step: Inactive{}}
}

// Reset returns the state to its initial value.
func (s *FlowState) Reset() {
	s.Step = Inactive{}
	s.RetryCount = 0
}

// Current returns the name of the current step. A zero FlowState is inactive.
func (s FlowState) Current() StepName {
	if s.Step == nil {
		return StepInactive
	}
	return s.Step.Name()
}

// Active reports whether the flow has been started and not yet finished.
func (s FlowState) Active() bool {
	return s.Current() != StepInactive
}

// Idle reports whether the state equals a fresh one.
func (s FlowState) Idle() bool {
	return !s.Active() && s.RetryCount == 0
}

// PendingReceipt returns the receipt waiting for finalization, if any.
func (s FlowState) PendingReceipt() (ReceiptRecord, bool) {
	switch st := s.Step.(type) {
	case AwaitingDetails:
		return st.Receipt, true
	case ConfirmingExit:
		if d, ok := st.Resume.(AwaitingDetails); ok {
			return d.Receipt, true
		}
	}
	return ReceiptRecord{}, false
}

// PreviousStep returns the step ConfirmingExit would resume, if known.
func (s FlowState) PreviousStep() (StepName, bool) {
	if st, ok := s.Step.(ConfirmingExit); ok && st.Resume != nil {
		return st.Resume.Name(), true
	}
	return "", false
}

// Session is the explicit per-conversation context passed into every flow call.
// A Session must not be used by more than one goroutine at a time.
type Session struct {
	ID        string    `json:"id"`
	State     FlowState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an inactive session for a conversation id.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		State:     NewFlowState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
