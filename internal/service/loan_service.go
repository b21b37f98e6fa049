// Package service is the application layer between the HTTP API and the
// core: it resolves prices and balances, runs the calculator, guards flows
// with a per-wallet lock, and launches the orchestrator.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
	"github.com/aurumfi/goldvault/internal/flow"
	"github.com/aurumfi/goldvault/internal/loan"
)

// Config holds the lending parameters the service applies to every preview
// and flow.
type Config struct {
	CollateralAsset    string
	LoanAsset          string
	CollateralDecimals int
	LoanDecimals       int
	LtvBps             int64
	FeeBps             int64

	// LockTTL bounds how long a wallet's flow lock can outlive a crashed
	// process. It must exceed the longest settlement wait.
	LockTTL time.Duration
}

func (c Config) lockTTL() time.Duration {
	if c.LockTTL > 0 {
		return c.LockTTL
	}
	return 30 * time.Minute
}

// LoanService coordinates previews, borrow/repay flows, and position reads
// for the operator wallet.
type LoanService struct {
	ledger      domain.Ledger
	orch        *flow.Orchestrator
	prices      domain.PriceCache
	locks       domain.LockManager
	events      domain.LoanEventStore
	redemptions domain.RedemptionStore
	cfg         Config
	logger      *slog.Logger
}

// NewLoanService creates a LoanService. prices, events, and redemptions may
// be nil; previews then always hit the ledger and history endpoints return
// empty results.
func NewLoanService(
	ledger domain.Ledger,
	orch *flow.Orchestrator,
	prices domain.PriceCache,
	locks domain.LockManager,
	events domain.LoanEventStore,
	redemptions domain.RedemptionStore,
	cfg Config,
	logger *slog.Logger,
) *LoanService {
	return &LoanService{
		ledger:      ledger,
		orch:        orch,
		prices:      prices,
		locks:       locks,
		events:      events,
		redemptions: redemptions,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "loan_service")),
	}
}

// Preview computes the full borrow preview for a wallet at the current
// oracle price. A zero loanAmount returns the guard-clause calculation, not
// an error.
func (s *LoanService) Preview(ctx context.Context, wallet string, loanAmount *big.Int) (loan.Calculation, error) {
	if err := domain.ValidateWallet(wallet); err != nil {
		return loan.Calculation{}, err
	}

	price, err := s.collateralPrice(ctx)
	if err != nil {
		return loan.Calculation{}, fmt.Errorf("loan_service: preview: %w", err)
	}
	balance, err := s.ledger.BalanceOf(ctx, s.cfg.CollateralAsset, wallet)
	if err != nil {
		return loan.Calculation{}, fmt.Errorf("loan_service: preview balance: %w", err)
	}

	return loan.Calculate(loanAmount, price, balance, s.cfg.LtvBps, s.cfg.FeeBps, s.cfg.CollateralDecimals), nil
}

// MaxBorrow returns the largest loan the wallet's collateral balance
// supports at the configured LTV.
func (s *LoanService) MaxBorrow(ctx context.Context, wallet string) (*big.Int, error) {
	if err := domain.ValidateWallet(wallet); err != nil {
		return nil, err
	}

	price, err := s.collateralPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("loan_service: max borrow: %w", err)
	}
	balance, err := s.ledger.BalanceOf(ctx, s.cfg.CollateralAsset, wallet)
	if err != nil {
		return nil, fmt.Errorf("loan_service: max borrow balance: %w", err)
	}

	return loan.MaxLoan(balance, price, s.cfg.LtvBps), nil
}

// BorrowParams is a borrow request from the API.
type BorrowParams struct {
	LoanAmount  *big.Int
	BankAccount string
}

// Borrow validates the request, takes the wallet's flow lock, and runs the
// borrow flow to its terminal state. It returns domain.ErrFlowInProgress
// when another flow already holds the lock.
//
// When the flow settles through the redemption service, the bank account and
// the self-service ceiling are checked here, before any ledger call: a borrow
// that the redemption service would reject must never reach the chain.
func (s *LoanService) Borrow(ctx context.Context, params BorrowParams) (domain.FlowState, error) {
	if params.LoanAmount == nil || params.LoanAmount.Sign() <= 0 {
		return domain.FlowState{}, domain.ErrInvalidAmount
	}
	if s.orch.SettlesOffChain() {
		if err := domain.ValidateBankAccount(params.BankAccount); err != nil {
			return domain.FlowState{}, err
		}
		if err := domain.ValidateRedemptionAmount(params.LoanAmount, true); err != nil {
			return domain.FlowState{}, err
		}
	} else if params.BankAccount != "" {
		if err := domain.ValidateBankAccount(params.BankAccount); err != nil {
			return domain.FlowState{}, err
		}
	}

	wallet := s.orch.Wallet()

	calc, err := s.Preview(ctx, wallet, params.LoanAmount)
	if err != nil {
		return domain.FlowState{}, err
	}
	if !calc.Valid {
		return domain.FlowState{}, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, calc.ErrorMessage)
	}

	unlock, err := s.acquireFlowLock(ctx, wallet)
	if err != nil {
		return domain.FlowState{}, err
	}
	defer unlock()

	state, err := s.orch.ExecuteBorrow(ctx, flow.BorrowRequest{
		CollateralAmount: calc.CollateralRequired,
		BorrowAmount:     calc.LoanAmount,
		BankAccount:      params.BankAccount,
	})
	if err != nil {
		return state, fmt.Errorf("loan_service: borrow: %w", err)
	}
	return state, nil
}

// RepayParams is a repay request from the API. Full repayment is derived
// from the current debt, never requested directly.
type RepayParams struct {
	Amount *big.Int
}

// Repay validates the amount against the current on-chain debt, selects
// partial repay or position close, and runs the repay flow under the flow
// lock. Overpaying returns domain.ErrRepayExceedsDebt.
func (s *LoanService) Repay(ctx context.Context, params RepayParams) (domain.FlowState, error) {
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return domain.FlowState{}, domain.ErrInvalidAmount
	}

	wallet := s.orch.Wallet()

	pos, err := s.ledger.PositionOf(ctx, wallet)
	if err != nil {
		return domain.FlowState{}, fmt.Errorf("loan_service: repay position: %w", err)
	}
	if !pos.IsOpen() {
		return domain.FlowState{}, fmt.Errorf("loan_service: repay: %w: no outstanding debt", domain.ErrInvalidAmount)
	}
	if params.Amount.Cmp(pos.Debt) > 0 {
		return domain.FlowState{}, fmt.Errorf("%w: debt is %s", domain.ErrRepayExceedsDebt,
			domain.FormatUnits(pos.Debt, s.cfg.LoanDecimals))
	}

	unlock, err := s.acquireFlowLock(ctx, wallet)
	if err != nil {
		return domain.FlowState{}, err
	}
	defer unlock()

	state, err := s.orch.ExecuteRepay(ctx, flow.RepayRequest{
		Amount: params.Amount,
		Full:   params.Amount.Cmp(pos.Debt) == 0,
	})
	if err != nil {
		return state, fmt.Errorf("loan_service: repay: %w", err)
	}
	return state, nil
}

// PositionView is a position enriched with price-derived fields for the API.
type PositionView struct {
	Position        domain.Position
	Price           *big.Int
	CollateralValue *big.Int
	CurrentLtvBps   int64
}

// Position reads the wallet's vault position and derives its current value
// and LTV at the latest oracle price.
func (s *LoanService) Position(ctx context.Context, wallet string) (PositionView, error) {
	if err := domain.ValidateWallet(wallet); err != nil {
		return PositionView{}, err
	}

	pos, err := s.ledger.PositionOf(ctx, wallet)
	if err != nil {
		return PositionView{}, fmt.Errorf("loan_service: position: %w", err)
	}
	price, err := s.collateralPrice(ctx)
	if err != nil {
		return PositionView{}, fmt.Errorf("loan_service: position price: %w", err)
	}

	return PositionView{
		Position:        pos,
		Price:           price,
		CollateralValue: pos.CollateralValue(price),
		CurrentLtvBps:   pos.CurrentLtvBps(price),
	}, nil
}

// History returns a wallet's flow transitions, newest first.
func (s *LoanService) History(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.LoanEvent, error) {
	if err := domain.ValidateWallet(wallet); err != nil {
		return nil, err
	}
	if s.events == nil {
		return nil, nil
	}
	events, err := s.events.ListByWallet(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("loan_service: history: %w", err)
	}
	return events, nil
}

// Redemptions returns a wallet's tracked redemptions, newest first.
func (s *LoanService) Redemptions(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Redemption, error) {
	if err := domain.ValidateWallet(wallet); err != nil {
		return nil, err
	}
	if s.redemptions == nil {
		return nil, nil
	}
	reds, err := s.redemptions.ListByWallet(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("loan_service: redemptions: %w", err)
	}
	return reds, nil
}

// collateralPrice returns the oracle price, preferring the cache and
// refreshing it on a miss.
func (s *LoanService) collateralPrice(ctx context.Context) (*big.Int, error) {
	if s.prices != nil {
		price, err := s.prices.Get(ctx, s.cfg.CollateralAsset)
		if err == nil {
			return price, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "price cache read failed", slog.String("error", err.Error()))
		}
	}

	price, err := s.ledger.PriceOf(ctx, s.cfg.CollateralAsset)
	if err != nil {
		return nil, err
	}

	if s.prices != nil {
		if err := s.prices.Set(ctx, s.cfg.CollateralAsset, price); err != nil {
			s.logger.WarnContext(ctx, "price cache write failed", slog.String("error", err.Error()))
		}
	}
	return price, nil
}

// acquireFlowLock takes the wallet's distributed flow lock, mapping a held
// lock to domain.ErrFlowInProgress.
func (s *LoanService) acquireFlowLock(ctx context.Context, wallet string) (func(), error) {
	unlock, err := s.locks.Acquire(ctx, "flow:"+wallet, s.cfg.lockTTL())
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("%w: wallet %s", domain.ErrFlowInProgress, wallet)
		}
		return nil, fmt.Errorf("loan_service: flow lock: %w", err)
	}
	return unlock, nil
}
