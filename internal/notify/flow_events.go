package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
)

// Event types the lending backend emits. Configure the notifier's event list
// with a subset to silence the rest.
const (
	EventFlowSuccess = "flow_success"
	EventFlowError   = "flow_error"
	EventSettlement  = "settlement"
)

// notifyTimeout bounds delivery so a slow webhook cannot stall a flow
// transition.
const notifyTimeout = 10 * time.Second

// FlowNotifier is a domain.FlowSink decorator: it forwards every transition
// to the next sink and alerts operators on terminal steps.
type FlowNotifier struct {
	notifier *Notifier
	next     domain.FlowSink
}

// NewFlowNotifier wraps next with terminal-step notifications. next may be
// nil.
func NewFlowNotifier(notifier *Notifier, next domain.FlowSink) *FlowNotifier {
	return &FlowNotifier{notifier: notifier, next: next}
}

// Publish forwards the transition and, on success or error, dispatches a
// notification. Delivery is best-effort and never blocks the flow beyond the
// notify timeout.
func (f *FlowNotifier) Publish(state domain.FlowState) {
	if f.next != nil {
		f.next.Publish(state)
	}
	if !state.Step.Terminal() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	switch state.Step {
	case domain.StepSuccess:
		title := fmt.Sprintf("%s flow completed", state.Kind)
		message := fmt.Sprintf("wallet %s\nflow %s\ntx %s", state.Wallet, state.FlowID, state.TxHash)
		_ = f.notifier.Notify(ctx, EventFlowSuccess, title, message)
	case domain.StepError:
		title := fmt.Sprintf("%s flow failed", state.Kind)
		message := fmt.Sprintf("wallet %s\nflow %s\nerror: %s", state.Wallet, state.FlowID, state.Error)
		_ = f.notifier.Notify(ctx, EventFlowError, title, message)
	}
}

// SettlementChanged alerts operators when a tracked redemption reaches a
// terminal status. Called by the settlement watcher.
func (f *FlowNotifier) SettlementChanged(ctx context.Context, red domain.Redemption) {
	if !red.Status.Terminal() {
		return
	}
	title := fmt.Sprintf("redemption %s", red.Status)
	message := fmt.Sprintf("redemption %s\nwallet %s\namount %s", red.ID, red.Wallet, red.Amount)
	_ = f.notifier.Notify(ctx, EventSettlement, title, message)
}

// Compile-time interface check.
var _ domain.FlowSink = (*FlowNotifier)(nil)
