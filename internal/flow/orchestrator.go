// Package flow implements the borrow/repay flow orchestrator: a sequential
// state machine that drives a wallet operation through approval, the primary
// vault transaction, and settlement, publishing each transition to a sink
// the UI can observe.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/aurumfi/goldvault/internal/domain"
)

// Config holds the orchestrator's chain parameters and timing policy.
type Config struct {
	CollateralAsset string // collateral token contract address
	LoanAsset       string // loan token contract address
	VaultAddress    string // lending vault; spender for approvals
	Wallet          string // operator wallet executing the flows

	// StepTimeout bounds every awaited external call so a hung wallet
	// confirmation cannot stall the flow forever.
	StepTimeout time.Duration

	// Settlement polling against the redemption service.
	SettlePollInterval time.Duration
	SettleTimeout      time.Duration

	// FallbackSettleDelay simulates bank-transfer time when no redemption
	// client is configured (local/demo deployments).
	FallbackSettleDelay time.Duration
}

func (c Config) stepTimeout() time.Duration {
	if c.StepTimeout > 0 {
		return c.StepTimeout
	}
	return 2 * time.Minute
}

// Orchestrator sequences borrow and repay flows against the on-chain ledger
// and the off-chain redemption service. It never retries a failed step and
// never reconciles partial state: a flow fails at most once, and callers
// re-read the on-chain position before trying again.
//
// The orchestrator itself does not guard against concurrent flows for the
// same wallet; the service layer holds a distributed lock around each
// invocation.
type Orchestrator struct {
	ledger     domain.Ledger
	redemption domain.RedemptionClient // nil: settlement falls back to a fixed delay
	events     domain.LoanEventStore   // nil: audit logging disabled
	sink       domain.FlowSink
	cfg        Config
	logger     *slog.Logger
}

// New creates an Orchestrator. redemption and events may be nil; sink must
// not be.
func New(ledger domain.Ledger, redemption domain.RedemptionClient, events domain.LoanEventStore, sink domain.FlowSink, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		ledger:     ledger,
		redemption: redemption,
		events:     events,
		sink:       sink,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "flow")),
	}
}

// Wallet returns the operator wallet the orchestrator executes flows for.
func (o *Orchestrator) Wallet() string {
	return o.cfg.Wallet
}

// SettlesOffChain reports whether borrows settle through the redemption
// service. Callers must validate redemption inputs before starting a flow;
// once the on-chain leg confirms there is no way back.
func (o *Orchestrator) SettlesOffChain() bool {
	return o.redemption != nil
}

// BorrowRequest parameterizes one borrow flow invocation.
type BorrowRequest struct {
	CollateralAmount *big.Int
	BorrowAmount     *big.Int
	BankAccount      string // destination for off-chain settlement
}

// RepayRequest parameterizes one repay flow invocation. Full selects the
// close-position operation that also releases all collateral; the caller
// decides Full by comparing the amount against current debt.
type RepayRequest struct {
	Amount *big.Int
	Full   bool
}

// run tracks one flow invocation's mutable state.
type run struct {
	state domain.FlowState
}

// ExecuteBorrow drives a borrow through checking-approval → [approving] →
// borrowing → transferring → success. On any step failure it transitions to
// error exactly once and returns the underlying error; the terminal state is
// always returned.
func (o *Orchestrator) ExecuteBorrow(ctx context.Context, req BorrowRequest) (domain.FlowState, error) {
	r := o.newRun("borrow")
	log := o.logger.With(slog.String("flow_id", r.state.FlowID), slog.String("kind", "borrow"))

	// 1. Check whether the vault already has a sufficient allowance.
	o.transition(ctx, r, domain.StepCheckingApproval, "checking collateral approval")
	allowance, err := step(o, ctx, func(sc context.Context) (*big.Int, error) {
		return o.ledger.AllowanceOf(sc, o.cfg.CollateralAsset, o.cfg.Wallet, o.cfg.VaultAddress)
	})
	if err != nil {
		return o.fail(ctx, r, log, "allowance check failed", err)
	}

	// 2. Approve only when the current allowance is short; an existing
	// sufficient allowance skips the approval transaction entirely.
	if allowance.Cmp(req.CollateralAmount) < 0 {
		o.transition(ctx, r, domain.StepApproving, "approving collateral transfer")
		approveTx, err := step(o, ctx, func(sc context.Context) (string, error) {
			return o.ledger.Approve(sc, o.cfg.CollateralAsset, o.cfg.VaultAddress, req.CollateralAmount)
		})
		if err != nil {
			return o.fail(ctx, r, log, "approval failed", err)
		}
		if err := o.waitConfirmed(ctx, approveTx); err != nil {
			return o.fail(ctx, r, log, "approval confirmation failed", err)
		}
		log.InfoContext(ctx, "collateral approved", slog.String("tx_hash", approveTx))
	} else {
		log.DebugContext(ctx, "allowance sufficient, skipping approval")
	}

	// 3. Deposit collateral and borrow in one vault call.
	o.transition(ctx, r, domain.StepBorrowing, "depositing collateral and borrowing")
	txHash, err := step(o, ctx, func(sc context.Context) (string, error) {
		return o.ledger.DepositAndBorrow(sc, req.CollateralAmount, req.BorrowAmount)
	})
	if err != nil {
		return o.fail(ctx, r, log, "borrow transaction failed", err)
	}
	r.state.TxHash = txHash
	if err := o.waitConfirmed(ctx, txHash); err != nil {
		return o.fail(ctx, r, log, "borrow confirmation failed", err)
	}
	log.InfoContext(ctx, "borrow confirmed", slog.String("tx_hash", txHash))

	// 4. Off-chain settlement: submit the redemption and wait for it to
	// complete, or simulate the bank transfer when no service is wired.
	o.transition(ctx, r, domain.StepTransferring, "transferring funds to your bank account")
	if err := o.settle(ctx, r, req); err != nil {
		return o.fail(ctx, r, log, "settlement failed", err)
	}

	o.transition(ctx, r, domain.StepSuccess, "loan disbursed")
	log.InfoContext(ctx, "borrow flow complete", slog.String("tx_hash", txHash))
	return r.state, nil
}

// ExecuteRepay drives a repay through checking-approval → [approving] →
// repaying → success. Full repay closes the position and releases all
// collateral; partial repay reduces debt only.
func (o *Orchestrator) ExecuteRepay(ctx context.Context, req RepayRequest) (domain.FlowState, error) {
	r := o.newRun("repay")
	log := o.logger.With(slog.String("flow_id", r.state.FlowID), slog.String("kind", "repay"))

	o.transition(ctx, r, domain.StepCheckingApproval, "checking repayment approval")
	allowance, err := step(o, ctx, func(sc context.Context) (*big.Int, error) {
		return o.ledger.AllowanceOf(sc, o.cfg.LoanAsset, o.cfg.Wallet, o.cfg.VaultAddress)
	})
	if err != nil {
		return o.fail(ctx, r, log, "allowance check failed", err)
	}

	if allowance.Cmp(req.Amount) < 0 {
		o.transition(ctx, r, domain.StepApproving, "approving repayment transfer")
		approveTx, err := step(o, ctx, func(sc context.Context) (string, error) {
			return o.ledger.Approve(sc, o.cfg.LoanAsset, o.cfg.VaultAddress, req.Amount)
		})
		if err != nil {
			return o.fail(ctx, r, log, "approval failed", err)
		}
		if err := o.waitConfirmed(ctx, approveTx); err != nil {
			return o.fail(ctx, r, log, "approval confirmation failed", err)
		}
	}

	o.transition(ctx, r, domain.StepRepaying, "repaying loan")
	var txHash string
	if req.Full {
		txHash, err = step(o, ctx, func(sc context.Context) (string, error) {
			return o.ledger.ClosePosition(sc)
		})
	} else {
		txHash, err = step(o, ctx, func(sc context.Context) (string, error) {
			return o.ledger.Repay(sc, req.Amount)
		})
	}
	if err != nil {
		return o.fail(ctx, r, log, "repay transaction failed", err)
	}
	r.state.TxHash = txHash
	if err := o.waitConfirmed(ctx, txHash); err != nil {
		return o.fail(ctx, r, log, "repay confirmation failed", err)
	}

	o.transition(ctx, r, domain.StepSuccess, "loan repaid")
	log.InfoContext(ctx, "repay flow complete",
		slog.String("tx_hash", txHash),
		slog.Bool("full", req.Full),
	)
	return r.state, nil
}

// settle waits for the off-chain leg of a borrow. With a redemption client
// it submits a self-service redemption for the borrow transaction and polls
// its status until completed, failed, or timed out. Without one it sleeps
// for the configured fallback delay.
func (o *Orchestrator) settle(ctx context.Context, r *run, req BorrowRequest) error {
	if o.redemption == nil {
		delay := o.cfg.FallbackSettleDelay
		if delay <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			return nil
		}
	}

	red, err := step(o, ctx, func(sc context.Context) (domain.Redemption, error) {
		return o.redemption.SubmitSelfService(sc, r.state.TxHash, req.BorrowAmount, req.BankAccount, o.cfg.Wallet)
	})
	if err != nil {
		return err
	}

	// The submission response can already be terminal; don't wait a poll
	// cycle to learn a status we were just handed.
	switch red.Status {
	case domain.RedemptionCompleted:
		return nil
	case domain.RedemptionFailed:
		return fmt.Errorf("redemption %s failed", red.ID)
	}

	interval := o.cfg.SettlePollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := o.cfg.SettleTimeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: redemption %s still %s", domain.ErrSettlementTimeout, red.ID, red.Status)
		case <-ticker.C:
			red, err = step(o, ctx, func(sc context.Context) (domain.Redemption, error) {
				return o.redemption.CheckStatus(sc, red.ID)
			})
			if err != nil {
				return err
			}
			switch red.Status {
			case domain.RedemptionCompleted:
				return nil
			case domain.RedemptionFailed:
				return fmt.Errorf("redemption %s failed", red.ID)
			}
		}
	}
}

func (o *Orchestrator) newRun(kind string) *run {
	return &run{state: domain.FlowState{
		FlowID: uuid.New().String(),
		Wallet: o.cfg.Wallet,
		Kind:   kind,
		Step:   domain.StepIdle,
		At:     time.Now().UTC(),
	}}
}

// transition advances the flow to the given step and publishes the new
// state. Audit persistence is best-effort; a store failure must not abort a
// flow whose on-chain leg may already be confirmed.
func (o *Orchestrator) transition(ctx context.Context, r *run, step domain.FlowStep, message string) {
	r.state.Step = step
	r.state.Message = message
	r.state.At = time.Now().UTC()
	o.publish(ctx, r)
}

// fail records the terminal error state once and returns the wrapped cause.
// The user-facing message stays generic; the raw error is preserved in the
// state's Error field for diagnostics.
func (o *Orchestrator) fail(ctx context.Context, r *run, log *slog.Logger, context_ string, err error) (domain.FlowState, error) {
	r.state.Step = domain.StepError
	r.state.Message = "transaction failed, please try again"
	r.state.Error = err.Error()
	r.state.At = time.Now().UTC()
	o.publish(ctx, r)

	log.ErrorContext(ctx, "flow failed",
		slog.String("step_context", context_),
		slog.String("error", err.Error()),
	)
	return r.state, fmt.Errorf("flow: %s: %w", context_, err)
}

func (o *Orchestrator) publish(ctx context.Context, r *run) {
	if o.sink != nil {
		o.sink.Publish(r.state)
	}
	if o.events != nil {
		ev := domain.LoanEvent{
			FlowID:    r.state.FlowID,
			Wallet:    r.state.Wallet,
			Kind:      r.state.Kind,
			Step:      r.state.Step,
			TxHash:    r.state.TxHash,
			CreatedAt: r.state.At,
		}
		if r.state.Error != "" {
			ev.Detail = map[string]any{"error": r.state.Error}
		}
		if err := o.events.Append(ctx, ev); err != nil {
			o.logger.WarnContext(ctx, "flow audit append failed",
				slog.String("flow_id", r.state.FlowID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// step runs one awaited external call under the per-step timeout.
func step[T any](o *Orchestrator, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	sc, cancel := context.WithTimeout(ctx, o.cfg.stepTimeout())
	defer cancel()
	return fn(sc)
}

func (o *Orchestrator) waitConfirmed(ctx context.Context, txHash string) error {
	sc, cancel := context.WithTimeout(ctx, o.cfg.stepTimeout())
	defer cancel()
	return o.ledger.WaitConfirmed(sc, txHash)
}
