package domain

import (
	"context"
	"math/big"
)

// Ledger is the on-chain collaborator: read queries against the collateral
// and loan tokens, the price oracle, and the lending vault, plus the mutating
// vault operations. Every write returns a transaction hash immediately;
// WaitConfirmed blocks until the transaction is mined (or the context ends)
// and returns ErrTxFailed for a reverted transaction.
type Ledger interface {
	// Reads.
	BalanceOf(ctx context.Context, asset, wallet string) (*big.Int, error)
	PriceOf(ctx context.Context, asset string) (*big.Int, error)
	AllowanceOf(ctx context.Context, asset, owner, spender string) (*big.Int, error)
	PositionOf(ctx context.Context, wallet string) (Position, error)

	// Writes.
	Approve(ctx context.Context, asset, spender string, amount *big.Int) (string, error)
	DepositAndBorrow(ctx context.Context, collateralAmount, borrowAmount *big.Int) (string, error)
	Repay(ctx context.Context, amount *big.Int) (string, error)
	RepayAndWithdraw(ctx context.Context, repayAmount, withdrawAmount *big.Int) (string, error)
	ClosePosition(ctx context.Context) (string, error)

	WaitConfirmed(ctx context.Context, txHash string) error
}
