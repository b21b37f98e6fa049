package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aurumfi/goldvault/internal/domain"
	"github.com/aurumfi/goldvault/internal/flow"
)

const opWallet = "0x1111111111111111111111111111111111111111"

type stubLedger struct {
	balance   *big.Int
	price     *big.Int
	allowance *big.Int
	position  domain.Position

	calls     []string
	priceErrs bool
}

func (l *stubLedger) record(name string) { l.calls = append(l.calls, name) }

func (l *stubLedger) BalanceOf(ctx context.Context, asset, wallet string) (*big.Int, error) {
	l.record("BalanceOf")
	return new(big.Int).Set(l.balance), nil
}

func (l *stubLedger) PriceOf(ctx context.Context, asset string) (*big.Int, error) {
	l.record("PriceOf")
	if l.priceErrs {
		return nil, errors.New("oracle unavailable")
	}
	return new(big.Int).Set(l.price), nil
}

func (l *stubLedger) AllowanceOf(ctx context.Context, asset, owner, spender string) (*big.Int, error) {
	l.record("AllowanceOf")
	return new(big.Int).Set(l.allowance), nil
}

func (l *stubLedger) PositionOf(ctx context.Context, wallet string) (domain.Position, error) {
	l.record("PositionOf")
	return l.position, nil
}

func (l *stubLedger) Approve(ctx context.Context, asset, spender string, amount *big.Int) (string, error) {
	l.record("Approve")
	return "0xapprove", nil
}

func (l *stubLedger) DepositAndBorrow(ctx context.Context, collateralAmount, borrowAmount *big.Int) (string, error) {
	l.record("DepositAndBorrow")
	return "0xborrow", nil
}

func (l *stubLedger) Repay(ctx context.Context, amount *big.Int) (string, error) {
	l.record("Repay")
	return "0xrepay", nil
}

func (l *stubLedger) RepayAndWithdraw(ctx context.Context, repayAmount, withdrawAmount *big.Int) (string, error) {
	l.record("RepayAndWithdraw")
	return "0xrepaywithdraw", nil
}

func (l *stubLedger) ClosePosition(ctx context.Context) (string, error) {
	l.record("ClosePosition")
	return "0xclose", nil
}

func (l *stubLedger) WaitConfirmed(ctx context.Context, txHash string) error {
	l.record("WaitConfirmed")
	return nil
}

type stubPriceCache struct {
	price    *big.Int
	setCalls int
}

func (c *stubPriceCache) Set(ctx context.Context, asset string, price *big.Int) error {
	c.setCalls++
	c.price = new(big.Int).Set(price)
	return nil
}

func (c *stubPriceCache) Get(ctx context.Context, asset string) (*big.Int, error) {
	if c.price == nil {
		return nil, domain.ErrNotFound
	}
	return new(big.Int).Set(c.price), nil
}

type stubLocks struct {
	held     bool
	acquired []string
	released int
}

func (s *stubLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if s.held {
		return nil, domain.ErrLockHeld
	}
	s.acquired = append(s.acquired, key)
	return func() { s.released++ }, nil
}

func newTestService(ledger *stubLedger, prices domain.PriceCache, locks domain.LockManager) *LoanService {
	return newTestServiceWith(ledger, nil, prices, locks)
}

func newTestServiceWith(ledger *stubLedger, red domain.RedemptionClient, prices domain.PriceCache, locks domain.LockManager) *LoanService {
	logger := slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
	orch := flow.New(ledger, red, nil, domain.FlowSinkFunc(func(domain.FlowState) {}), flow.Config{
		CollateralAsset: "0x2222222222222222222222222222222222222222",
		LoanAsset:       "0x3333333333333333333333333333333333333333",
		VaultAddress:    "0x4444444444444444444444444444444444444444",
		Wallet:          opWallet,
	}, logger)

	return NewLoanService(ledger, orch, prices, locks, nil, nil, Config{
		CollateralAsset:    "0x2222222222222222222222222222222222222222",
		LoanAsset:          "0x3333333333333333333333333333333333333333",
		CollateralDecimals: 6,
		LoanDecimals:       6,
		LtvBps:             3000,
		FeeBps:             50,
	}, logger)
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestPreviewUsesCachedPrice(t *testing.T) {
	ledger := &stubLedger{
		balance:   big.NewInt(5_000_000),
		priceErrs: true, // a cache hit must never reach the oracle
	}
	prices := &stubPriceCache{price: big.NewInt(300_000_000_000)}
	svc := newTestService(ledger, prices, &stubLocks{})

	calc, err := svc.Preview(context.Background(), opWallet, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.True(t, calc.Valid)
	require.Equal(t, big.NewInt(1_112), calc.CollateralRequired)
	require.NotContains(t, ledger.calls, "PriceOf")
}

func TestPreviewRefreshesCacheOnMiss(t *testing.T) {
	ledger := &stubLedger{
		balance: big.NewInt(5_000_000),
		price:   big.NewInt(300_000_000_000),
	}
	prices := &stubPriceCache{}
	svc := newTestService(ledger, prices, &stubLocks{})

	calc, err := svc.Preview(context.Background(), opWallet, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.True(t, calc.Valid)
	require.Contains(t, ledger.calls, "PriceOf")
	require.Equal(t, 1, prices.setCalls)
	require.Equal(t, big.NewInt(300_000_000_000), prices.price)
}

func TestPreviewRejectsBadWallet(t *testing.T) {
	svc := newTestService(&stubLedger{}, &stubPriceCache{}, &stubLocks{})

	_, err := svc.Preview(context.Background(), "not-a-wallet", big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestBorrowRejectsWhenFlowInProgress(t *testing.T) {
	ledger := &stubLedger{
		balance:   big.NewInt(5_000_000),
		price:     big.NewInt(300_000_000_000),
		allowance: big.NewInt(0),
	}
	svc := newTestService(ledger, &stubPriceCache{}, &stubLocks{held: true})

	_, err := svc.Borrow(context.Background(), BorrowParams{LoanAmount: big.NewInt(1_000_000)})
	require.ErrorIs(t, err, domain.ErrFlowInProgress)
	require.NotContains(t, ledger.calls, "DepositAndBorrow")
}

func TestBorrowRejectsInsufficientCollateral(t *testing.T) {
	ledger := &stubLedger{
		balance: big.NewInt(10), // far short of required
		price:   big.NewInt(300_000_000_000),
	}
	svc := newTestService(ledger, &stubPriceCache{}, &stubLocks{})

	_, err := svc.Borrow(context.Background(), BorrowParams{LoanAmount: big.NewInt(1_000_000)})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	require.Contains(t, err.Error(), "insufficient collateral")
	require.NotContains(t, ledger.calls, "DepositAndBorrow")
}

func TestBorrowRunsFlowAndReleasesLock(t *testing.T) {
	ledger := &stubLedger{
		balance:   big.NewInt(5_000_000),
		price:     big.NewInt(300_000_000_000),
		allowance: big.NewInt(0),
	}
	locks := &stubLocks{}
	svc := newTestService(ledger, &stubPriceCache{}, locks)

	state, err := svc.Borrow(context.Background(), BorrowParams{
		LoanAmount:  big.NewInt(1_000_000),
		BankAccount: "1234567890",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StepSuccess, state.Step)
	require.Equal(t, "0xborrow", state.TxHash)
	require.Equal(t, []string{"flow:" + opWallet}, locks.acquired)
	require.Equal(t, 1, locks.released)
}

// instantRedemption completes every self-service redemption on submission.
type instantRedemption struct{}

func (instantRedemption) SubmitSelfService(ctx context.Context, txHash string, amount *big.Int, bankAccount, wallet string) (domain.Redemption, error) {
	return domain.Redemption{ID: "red-1", Status: domain.RedemptionCompleted, Amount: amount, TxHash: txHash}, nil
}

func (instantRedemption) SubmitTreasuryAssisted(ctx context.Context, amount *big.Int, bankAccount, wallet string) (domain.TreasuryReceipt, error) {
	return domain.TreasuryReceipt{Status: domain.RedemptionPending}, nil
}

func (instantRedemption) CheckStatus(ctx context.Context, id string) (domain.Redemption, error) {
	return domain.Redemption{ID: id, Status: domain.RedemptionCompleted}, nil
}

func TestBorrowOverCeilingFailsBeforeAnyLedgerCall(t *testing.T) {
	ledger := &stubLedger{}
	svc := newTestServiceWith(ledger, instantRedemption{}, &stubPriceCache{}, &stubLocks{})

	over := new(big.Int).Add(domain.SelfServiceCeiling, big.NewInt(1))
	_, err := svc.Borrow(context.Background(), BorrowParams{
		LoanAmount:  over,
		BankAccount: "1234567890",
	})
	require.ErrorIs(t, err, domain.ErrAmountAboveCeiling)
	require.Empty(t, ledger.calls)
}

func TestBorrowRequiresBankAccountWhenSettlingOffChain(t *testing.T) {
	ledger := &stubLedger{}
	svc := newTestServiceWith(ledger, instantRedemption{}, &stubPriceCache{}, &stubLocks{})

	_, err := svc.Borrow(context.Background(), BorrowParams{LoanAmount: big.NewInt(1_000_000)})
	require.ErrorIs(t, err, domain.ErrInvalidBankAccount)
	require.Empty(t, ledger.calls)
}

func TestBorrowWithRedemptionSettlesAndSucceeds(t *testing.T) {
	ledger := &stubLedger{
		balance:   big.NewInt(5_000_000),
		price:     big.NewInt(300_000_000_000),
		allowance: big.NewInt(0),
	}
	svc := newTestServiceWith(ledger, instantRedemption{}, &stubPriceCache{}, &stubLocks{})

	state, err := svc.Borrow(context.Background(), BorrowParams{
		LoanAmount:  big.NewInt(1_000_000),
		BankAccount: "1234567890",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StepSuccess, state.Step)
	require.Contains(t, ledger.calls, "DepositAndBorrow")
}

func TestBorrowRejectsBadBankAccount(t *testing.T) {
	svc := newTestService(&stubLedger{}, &stubPriceCache{}, &stubLocks{})

	_, err := svc.Borrow(context.Background(), BorrowParams{
		LoanAmount:  big.NewInt(1_000_000),
		BankAccount: "12",
	})
	require.ErrorIs(t, err, domain.ErrInvalidBankAccount)
}

func TestRepayRejectsOverpayment(t *testing.T) {
	ledger := &stubLedger{
		position: domain.Position{
			Wallet:     opWallet,
			Collateral: big.NewInt(4_000),
			Debt:       big.NewInt(900_000),
		},
	}
	svc := newTestService(ledger, &stubPriceCache{}, &stubLocks{})

	_, err := svc.Repay(context.Background(), RepayParams{Amount: big.NewInt(900_001)})
	require.ErrorIs(t, err, domain.ErrRepayExceedsDebt)
	require.NotContains(t, ledger.calls, "Repay")
	require.NotContains(t, ledger.calls, "ClosePosition")
}

func TestRepayPartialReducesDebt(t *testing.T) {
	ledger := &stubLedger{
		allowance: big.NewInt(1_000_000),
		position: domain.Position{
			Wallet:     opWallet,
			Collateral: big.NewInt(4_000),
			Debt:       big.NewInt(900_000),
		},
	}
	svc := newTestService(ledger, &stubPriceCache{}, &stubLocks{})

	state, err := svc.Repay(context.Background(), RepayParams{Amount: big.NewInt(400_000)})
	require.NoError(t, err)
	require.Equal(t, domain.StepSuccess, state.Step)
	require.Contains(t, ledger.calls, "Repay")
	require.NotContains(t, ledger.calls, "ClosePosition")
}

func TestRepayFullClosesPosition(t *testing.T) {
	ledger := &stubLedger{
		allowance: big.NewInt(1_000_000),
		position: domain.Position{
			Wallet:     opWallet,
			Collateral: big.NewInt(4_000),
			Debt:       big.NewInt(900_000),
		},
	}
	svc := newTestService(ledger, &stubPriceCache{}, &stubLocks{})

	state, err := svc.Repay(context.Background(), RepayParams{Amount: big.NewInt(900_000)})
	require.NoError(t, err)
	require.Equal(t, domain.StepSuccess, state.Step)
	require.Contains(t, ledger.calls, "ClosePosition")
	require.NotContains(t, ledger.calls, "Repay")
}

func TestRepayWithoutOpenPosition(t *testing.T) {
	ledger := &stubLedger{
		position: domain.Position{Wallet: opWallet, Collateral: big.NewInt(0), Debt: big.NewInt(0)},
	}
	svc := newTestService(ledger, &stubPriceCache{}, &stubLocks{})

	_, err := svc.Repay(context.Background(), RepayParams{Amount: big.NewInt(1)})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}
