package flow

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aurumfi/goldvault/internal/domain"
)

// stubLedger records every call and returns canned results.
type stubLedger struct {
	mu        sync.Mutex
	calls     []string
	allowance *big.Int

	approveErr error
	borrowErr  error
	repayErr   error
	waitErr    error
}

func (s *stubLedger) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubLedger) called(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (s *stubLedger) BalanceOf(ctx context.Context, asset, wallet string) (*big.Int, error) {
	s.record("BalanceOf")
	return big.NewInt(0), nil
}

func (s *stubLedger) PriceOf(ctx context.Context, asset string) (*big.Int, error) {
	s.record("PriceOf")
	return big.NewInt(300_000_000_000), nil
}

func (s *stubLedger) AllowanceOf(ctx context.Context, asset, owner, spender string) (*big.Int, error) {
	s.record("AllowanceOf")
	if s.allowance == nil {
		return big.NewInt(0), nil
	}
	return s.allowance, nil
}

func (s *stubLedger) PositionOf(ctx context.Context, wallet string) (domain.Position, error) {
	s.record("PositionOf")
	return domain.Position{}, nil
}

func (s *stubLedger) Approve(ctx context.Context, asset, spender string, amount *big.Int) (string, error) {
	s.record("Approve")
	if s.approveErr != nil {
		return "", s.approveErr
	}
	return "0xapprove", nil
}

func (s *stubLedger) DepositAndBorrow(ctx context.Context, collateralAmount, borrowAmount *big.Int) (string, error) {
	s.record("DepositAndBorrow")
	if s.borrowErr != nil {
		return "", s.borrowErr
	}
	return "0xborrow", nil
}

func (s *stubLedger) Repay(ctx context.Context, amount *big.Int) (string, error) {
	s.record("Repay")
	if s.repayErr != nil {
		return "", s.repayErr
	}
	return "0xrepay", nil
}

func (s *stubLedger) RepayAndWithdraw(ctx context.Context, repayAmount, withdrawAmount *big.Int) (string, error) {
	s.record("RepayAndWithdraw")
	return "0xrepaywithdraw", nil
}

func (s *stubLedger) ClosePosition(ctx context.Context) (string, error) {
	s.record("ClosePosition")
	return "0xclose", nil
}

func (s *stubLedger) WaitConfirmed(ctx context.Context, txHash string) error {
	s.record("WaitConfirmed")
	return s.waitErr
}

// recordingSink captures published flow states in order.
type recordingSink struct {
	mu     sync.Mutex
	states []domain.FlowState
}

func (r *recordingSink) Publish(state domain.FlowState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingSink) steps() []domain.FlowStep {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.FlowStep, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s.Step)
	}
	return out
}

func testConfig() Config {
	return Config{
		CollateralAsset: "0x1111111111111111111111111111111111111111",
		LoanAsset:       "0x2222222222222222222222222222222222222222",
		VaultAddress:    "0x3333333333333333333333333333333333333333",
		Wallet:          "0x4444444444444444444444444444444444444444",
		StepTimeout:     5 * time.Second,
	}
}

func newTestOrchestrator(ledger *stubLedger, red domain.RedemptionClient, sink domain.FlowSink) *Orchestrator {
	return New(ledger, red, nil, sink, testConfig(), slog.Default())
}

func TestExecuteBorrowHappyPath(t *testing.T) {
	ledger := &stubLedger{} // allowance starts at zero
	sink := &recordingSink{}
	o := newTestOrchestrator(ledger, nil, sink)

	state, err := o.ExecuteBorrow(context.Background(), BorrowRequest{
		CollateralAmount: big.NewInt(1_112),
		BorrowAmount:     big.NewInt(1_000_000),
	})

	require.NoError(t, err)
	require.Equal(t, domain.StepSuccess, state.Step)
	require.Equal(t, "0xborrow", state.TxHash)
	require.Equal(t, []domain.FlowStep{
		domain.StepCheckingApproval,
		domain.StepApproving,
		domain.StepBorrowing,
		domain.StepTransferring,
		domain.StepSuccess,
	}, sink.steps())
}

func TestExecuteBorrowSkipsApprovalWhenAllowanceSufficient(t *testing.T) {
	ledger := &stubLedger{allowance: big.NewInt(1_000_000)}
	sink := &recordingSink{}
	o := newTestOrchestrator(ledger, nil, sink)

	state, err := o.ExecuteBorrow(context.Background(), BorrowRequest{
		CollateralAmount: big.NewInt(1_112),
		BorrowAmount:     big.NewInt(1_000_000),
	})

	require.NoError(t, err)
	require.Equal(t, domain.StepSuccess, state.Step)
	require.False(t, ledger.called("Approve"), "approve must not be invoked when allowance suffices")
	require.NotContains(t, sink.steps(), domain.StepApproving)
}

func TestExecuteBorrowFailureYieldsErrorState(t *testing.T) {
	cause := errors.New("execution reverted: price stale")
	ledger := &stubLedger{allowance: big.NewInt(1_000_000), borrowErr: cause}
	sink := &recordingSink{}
	o := newTestOrchestrator(ledger, nil, sink)

	state, err := o.ExecuteBorrow(context.Background(), BorrowRequest{
		CollateralAmount: big.NewInt(1_112),
		BorrowAmount:     big.NewInt(1_000_000),
	})

	require.Error(t, err)
	require.ErrorIs(t, err, cause)
	require.Equal(t, domain.StepError, state.Step)
	require.Equal(t, cause.Error(), state.Error)
	require.NotEmpty(t, state.Message)

	steps := sink.steps()
	require.Equal(t, domain.StepError, steps[len(steps)-1])
	require.NotContains(t, steps, domain.StepSuccess)
}

func TestExecuteRepayPartialUsesRepay(t *testing.T) {
	ledger := &stubLedger{allowance: big.NewInt(10_000_000)}
	sink := &recordingSink{}
	o := newTestOrchestrator(ledger, nil, sink)

	state, err := o.ExecuteRepay(context.Background(), RepayRequest{
		Amount: big.NewInt(500_000),
		Full:   false,
	})

	require.NoError(t, err)
	require.Equal(t, domain.StepSuccess, state.Step)
	require.Equal(t, "0xrepay", state.TxHash)
	require.True(t, ledger.called("Repay"))
	require.False(t, ledger.called("ClosePosition"))
}

func TestExecuteRepayFullClosesPosition(t *testing.T) {
	ledger := &stubLedger{allowance: big.NewInt(10_000_000)}
	sink := &recordingSink{}
	o := newTestOrchestrator(ledger, nil, sink)

	state, err := o.ExecuteRepay(context.Background(), RepayRequest{
		Amount: big.NewInt(1_000_000),
		Full:   true,
	})

	require.NoError(t, err)
	require.Equal(t, "0xclose", state.TxHash)
	require.True(t, ledger.called("ClosePosition"))
	require.False(t, ledger.called("Repay"))
}

func TestExecuteRepayApprovesWhenAllowanceShort(t *testing.T) {
	ledger := &stubLedger{allowance: big.NewInt(1)}
	sink := &recordingSink{}
	o := newTestOrchestrator(ledger, nil, sink)

	_, err := o.ExecuteRepay(context.Background(), RepayRequest{
		Amount: big.NewInt(500_000),
	})

	require.NoError(t, err)
	require.True(t, ledger.called("Approve"))
	require.Contains(t, sink.steps(), domain.StepApproving)
}

// stubRedemption walks a redemption through a fixed status sequence.
type stubRedemption struct {
	mu           sync.Mutex
	submitStatus domain.RedemptionStatus // empty: pending
	statuses     []domain.RedemptionStatus
	checks       int
	submits      int
}

func (s *stubRedemption) SubmitSelfService(ctx context.Context, txHash string, amount *big.Int, bankAccount, wallet string) (domain.Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	st := s.submitStatus
	if st == "" {
		st = domain.RedemptionPending
	}
	return domain.Redemption{ID: "red-1", Status: st, Amount: amount, TxHash: txHash}, nil
}

func (s *stubRedemption) SubmitTreasuryAssisted(ctx context.Context, amount *big.Int, bankAccount, wallet string) (domain.TreasuryReceipt, error) {
	return domain.TreasuryReceipt{Status: domain.RedemptionPending}, nil
}

func (s *stubRedemption) CheckStatus(ctx context.Context, id string) (domain.Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statuses[min(s.checks, len(s.statuses)-1)]
	s.checks++
	return domain.Redemption{ID: id, Status: st}, nil
}

func TestSettlementPollsUntilCompleted(t *testing.T) {
	ledger := &stubLedger{allowance: big.NewInt(1_000_000)}
	sink := &recordingSink{}
	red := &stubRedemption{statuses: []domain.RedemptionStatus{
		domain.RedemptionPending,
		domain.RedemptionProcessing,
		domain.RedemptionCompleted,
	}}

	cfg := testConfig()
	cfg.SettlePollInterval = 10 * time.Millisecond
	cfg.SettleTimeout = 2 * time.Second
	o := New(ledger, red, nil, sink, cfg, slog.Default())

	state, err := o.ExecuteBorrow(context.Background(), BorrowRequest{
		CollateralAmount: big.NewInt(1_112),
		BorrowAmount:     big.NewInt(1_000_000),
		BankAccount:      "1234567890",
	})

	require.NoError(t, err)
	require.Equal(t, domain.StepSuccess, state.Step)
	require.Equal(t, 1, red.submits)
	require.GreaterOrEqual(t, red.checks, 3)
}

func TestSettlementCompletedOnSubmissionSkipsPolling(t *testing.T) {
	ledger := &stubLedger{allowance: big.NewInt(1_000_000)}
	red := &stubRedemption{submitStatus: domain.RedemptionCompleted}

	cfg := testConfig()
	// A poll interval long enough that any status check would hang the test.
	cfg.SettlePollInterval = time.Hour
	cfg.SettleTimeout = 2 * time.Hour
	o := New(ledger, red, nil, &recordingSink{}, cfg, slog.Default())

	state, err := o.ExecuteBorrow(context.Background(), BorrowRequest{
		CollateralAmount: big.NewInt(1_112),
		BorrowAmount:     big.NewInt(1_000_000),
		BankAccount:      "1234567890",
	})

	require.NoError(t, err)
	require.Equal(t, domain.StepSuccess, state.Step)
	require.Equal(t, 1, red.submits)
	require.Equal(t, 0, red.checks)
}

func TestSettlementFailedOnSubmissionFailsFlow(t *testing.T) {
	ledger := &stubLedger{allowance: big.NewInt(1_000_000)}
	red := &stubRedemption{submitStatus: domain.RedemptionFailed}

	cfg := testConfig()
	cfg.SettlePollInterval = time.Hour
	cfg.SettleTimeout = 2 * time.Hour
	o := New(ledger, red, nil, &recordingSink{}, cfg, slog.Default())

	state, err := o.ExecuteBorrow(context.Background(), BorrowRequest{
		CollateralAmount: big.NewInt(1_112),
		BorrowAmount:     big.NewInt(1_000_000),
		BankAccount:      "1234567890",
	})

	require.Error(t, err)
	require.Equal(t, domain.StepError, state.Step)
	require.Equal(t, 0, red.checks)
}

func TestSettlementFailureFailsFlow(t *testing.T) {
	ledger := &stubLedger{allowance: big.NewInt(1_000_000)}
	sink := &recordingSink{}
	red := &stubRedemption{statuses: []domain.RedemptionStatus{domain.RedemptionFailed}}

	cfg := testConfig()
	cfg.SettlePollInterval = 10 * time.Millisecond
	cfg.SettleTimeout = 2 * time.Second
	o := New(ledger, red, nil, sink, cfg, slog.Default())

	state, err := o.ExecuteBorrow(context.Background(), BorrowRequest{
		CollateralAmount: big.NewInt(1_112),
		BorrowAmount:     big.NewInt(1_000_000),
		BankAccount:      "1234567890",
	})

	require.Error(t, err)
	require.Equal(t, domain.StepError, state.Step)
	// The borrow itself confirmed before settlement failed; the tx hash
	// stays on the terminal state so callers can reconcile on-chain.
	require.Equal(t, "0xborrow", state.TxHash)
}
