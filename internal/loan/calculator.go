// Package loan implements the pure loan-position calculator: collateral
// requirements, origination fees, received amounts, and maximum borrowable
// size from price/balance inputs. All arithmetic is fixed-point integer on
// big.Int; floats are never used for amounts.
package loan

import (
	"fmt"
	"math/big"

	"github.com/aurumfi/goldvault/internal/domain"
)

var (
	bpsDenom = big.NewInt(domain.BpsDenominator)
	priceScl = big.NewInt(domain.PriceScale)
)

// Calculation is the full preview of a prospective borrow. It is recomputed
// on every input change and never persisted.
type Calculation struct {
	LoanAmount         *big.Int // requested borrow, loan-asset scaled units
	CollateralRequired *big.Int // collateral-asset scaled units needed at the LTV
	CollateralValue    *big.Int // value of the required collateral in loan-asset units
	Fee                *big.Int // origination fee deducted from the disbursement
	AmountReceived     *big.Int // LoanAmount - Fee; what the borrower nets
	Valid              bool
	ErrorMessage       string
}

// Calculate derives every quantity needed to preview and validate a borrow.
//
// loanAmount and collateralBalance are scaled by their assets' decimals;
// collateralPrice is scaled by domain.PriceScale. Preconditions: ltvBps in
// (0, 10000], feeBps in [0, 10000], collateralPrice > 0; a zero price would
// divide by zero and is the caller's error, not a degenerate case handled
// here.
//
// Rounding: collateralValue truncates toward zero while collateralRequired
// rounds up, so truncation can never under-collateralize a position. MaxLoan
// truncates everywhere so its result always validates here.
func Calculate(loanAmount, collateralPrice, collateralBalance *big.Int, ltvBps, feeBps int64, collateralDecimals int) Calculation {
	zero := func() *big.Int { return new(big.Int) }

	if loanAmount == nil || loanAmount.Sign() == 0 {
		return Calculation{
			LoanAmount:         zero(),
			CollateralRequired: zero(),
			CollateralValue:    zero(),
			Fee:                zero(),
			AmountReceived:     zero(),
			Valid:              false,
			ErrorMessage:       "enter a loan amount",
		}
	}

	// collateralValue = loanAmount * 10000 / ltvBps, truncating.
	collateralValue := new(big.Int).Mul(loanAmount, bpsDenom)
	collateralValue.Div(collateralValue, big.NewInt(ltvBps))

	// collateralRequired = ceil(collateralValue * priceScale / price).
	collateralRequired := new(big.Int).Mul(collateralValue, priceScl)
	collateralRequired.Add(collateralRequired, new(big.Int).Sub(collateralPrice, big.NewInt(1)))
	collateralRequired.Div(collateralRequired, collateralPrice)

	// fee = loanAmount * feeBps / 10000, truncating.
	fee := new(big.Int).Mul(loanAmount, big.NewInt(feeBps))
	fee.Div(fee, bpsDenom)

	amountReceived := new(big.Int).Sub(loanAmount, fee)

	calc := Calculation{
		LoanAmount:         new(big.Int).Set(loanAmount),
		CollateralRequired: collateralRequired,
		CollateralValue:    collateralValue,
		Fee:                fee,
		AmountReceived:     amountReceived,
	}

	if collateralBalance == nil || collateralBalance.Cmp(collateralRequired) < 0 {
		avail := collateralBalance
		if avail == nil {
			avail = zero()
		}
		calc.Valid = false
		calc.ErrorMessage = fmt.Sprintf(
			"insufficient collateral: need %s, have %s",
			domain.FormatUnits(collateralRequired, collateralDecimals),
			domain.FormatUnits(avail, collateralDecimals),
		)
		return calc
	}

	calc.Valid = true
	return calc
}

// MaxLoan returns the largest borrow a collateral balance supports at the
// given LTV: (balance * price / priceScale) * ltvBps / 10000, truncating
// throughout. The truncation pairs with Calculate's ceiling on required
// collateral so that Calculate(MaxLoan(b, p, ltv), p, b, ltv, fee) is
// always valid.
func MaxLoan(collateralBalance, collateralPrice *big.Int, ltvBps int64) *big.Int {
	if collateralBalance == nil || collateralBalance.Sign() == 0 {
		return new(big.Int)
	}

	v := new(big.Int).Mul(collateralBalance, collateralPrice)
	v.Div(v, priceScl)
	v.Mul(v, big.NewInt(ltvBps))
	v.Div(v, bpsDenom)
	return v
}
