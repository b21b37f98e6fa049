package domain

import "time"

// FlowStep is one state of the borrow/repay flow state machine. The set is
// closed; success and error are terminal for a given flow invocation.
type FlowStep string

const (
	StepIdle             FlowStep = "idle"
	StepCheckingApproval FlowStep = "checking-approval"
	StepApproving        FlowStep = "approving"
	StepBorrowing        FlowStep = "borrowing"
	StepRepaying         FlowStep = "repaying"
	StepTransferring     FlowStep = "transferring"
	StepSuccess          FlowStep = "success"
	StepError            FlowStep = "error"
)

// Terminal reports whether the step ends a flow invocation.
func (s FlowStep) Terminal() bool {
	return s == StepSuccess || s == StepError
}

// FlowState is the externally observable state of an in-flight flow. A new
// state value is published on every transition; the UI renders Message while
// the flow runs and Error detail in the terminal error step.
type FlowState struct {
	FlowID  string    `json:"flow_id"`
	Wallet  string    `json:"wallet"`
	Kind    string    `json:"kind"` // "borrow" or "repay"
	Step    FlowStep  `json:"step"`
	Message string    `json:"message"`
	TxHash  string    `json:"tx_hash,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// FlowSink receives flow state transitions. Implementations must not block;
// the orchestrator publishes synchronously between steps.
type FlowSink interface {
	Publish(state FlowState)
}

// FlowSinkFunc adapts a function to the FlowSink interface.
type FlowSinkFunc func(state FlowState)

// Publish calls f.
func (f FlowSinkFunc) Publish(state FlowState) { f(state) }
