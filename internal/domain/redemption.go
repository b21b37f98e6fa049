package domain

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

// SelfServiceCeiling is the largest redemption (loan-asset scaled units) the
// self-service path accepts: 250,000,000 whole units at 6 decimals. Larger
// amounts must go through the treasury-assisted path.
var SelfServiceCeiling = new(big.Int).Mul(big.NewInt(250_000_000), big.NewInt(1_000_000))

// RedemptionStatus is the off-chain service's view of a redemption.
type RedemptionStatus string

const (
	RedemptionPending    RedemptionStatus = "pending"
	RedemptionProcessing RedemptionStatus = "processing"
	RedemptionCompleted  RedemptionStatus = "completed"
	RedemptionFailed     RedemptionStatus = "failed"
)

// Terminal reports whether the status will no longer change.
func (s RedemptionStatus) Terminal() bool {
	return s == RedemptionCompleted || s == RedemptionFailed
}

// Redemption is a submitted self-service redemption tracked by the backend.
type Redemption struct {
	ID              string
	ReferenceNumber string
	Wallet          string
	TxHash          string
	Amount          *big.Int
	BankAccount     string
	Status          RedemptionStatus
	SubmittedAt     time.Time
	CompletedAt     *time.Time
}

// TreasuryReceipt is the acknowledgement for a treasury-assisted redemption.
type TreasuryReceipt struct {
	Status                  RedemptionStatus
	EstimatedProcessingTime time.Duration
}

// RedemptionClient is the off-chain redemption collaborator.
type RedemptionClient interface {
	SubmitSelfService(ctx context.Context, txHash string, amount *big.Int, bankAccount, wallet string) (Redemption, error)
	SubmitTreasuryAssisted(ctx context.Context, amount *big.Int, bankAccount, wallet string) (TreasuryReceipt, error)
	CheckStatus(ctx context.Context, id string) (Redemption, error)
}

var (
	walletRe      = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	bankAccountRe = regexp.MustCompile(`^[0-9]{10,12}$`)
)

// ValidateWallet checks the 0x-prefixed 40-hex-character address pattern.
func ValidateWallet(addr string) error {
	if !walletRe.MatchString(addr) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return nil
}

// ValidateBankAccount checks the 10-12 digit account number pattern.
func ValidateBankAccount(acct string) error {
	if !bankAccountRe.MatchString(acct) {
		return ErrInvalidBankAccount
	}
	return nil
}

// ValidateRedemptionAmount checks amount positivity and, for the
// self-service path, the treasury ceiling. These checks run before any
// collaborator call so malformed requests never leave the process.
func ValidateRedemptionAmount(amount *big.Int, selfService bool) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if selfService && amount.Cmp(SelfServiceCeiling) > 0 {
		return ErrAmountAboveCeiling
	}
	return nil
}
