package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidAmount      = errors.New("amount must be a positive number")
	ErrInvalidAddress     = errors.New("invalid wallet address")
	ErrInvalidBankAccount = errors.New("bank account number must be 10-12 digits")
	ErrAmountAboveCeiling = errors.New("amount exceeds the self-service limit; use treasury-assisted redemption")
	ErrRepayExceedsDebt   = errors.New("repay amount exceeds outstanding debt")
	ErrFlowInProgress     = errors.New("a loan flow is already in progress for this wallet")
	ErrLockHeld           = errors.New("lock already held")
	ErrSettlementTimeout  = errors.New("settlement confirmation timed out")
	ErrTxFailed           = errors.New("transaction reverted on-chain")
)
