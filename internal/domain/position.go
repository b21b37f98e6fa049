package domain

import (
	"math"
	"math/big"
)

// Position is a wallet's current collateral/debt pair under the lending
// vault. It is read from the on-chain ledger and never persisted here; a
// position with zero collateral and zero debt is fully closed.
type Position struct {
	Wallet     string
	Collateral *big.Int // collateral-asset scaled units locked in the vault
	Debt       *big.Int // loan-asset scaled units outstanding
}

// IsOpen reports whether the position holds any collateral or debt.
func (p Position) IsOpen() bool {
	return (p.Collateral != nil && p.Collateral.Sign() > 0) ||
		(p.Debt != nil && p.Debt.Sign() > 0)
}

// CollateralValue returns the position's collateral valued in loan-asset
// units at the given oracle price (PriceScale fixed-point).
func (p Position) CollateralValue(price *big.Int) *big.Int {
	if p.Collateral == nil || price == nil {
		return new(big.Int)
	}
	v := new(big.Int).Mul(p.Collateral, price)
	return v.Div(v, big.NewInt(PriceScale))
}

// CurrentLtvBps returns the position's loan-to-value ratio in basis points
// at the given oracle price, or 0 when the position holds no collateral.
// Ratios beyond the int64 range (dust collateral against large debt) clamp
// to math.MaxInt64.
func (p Position) CurrentLtvBps(price *big.Int) int64 {
	cv := p.CollateralValue(price)
	if cv.Sign() <= 0 || p.Debt == nil {
		return 0
	}
	ltv := new(big.Int).Mul(p.Debt, big.NewInt(BpsDenominator))
	ltv.Div(ltv, cv)
	if !ltv.IsInt64() {
		return math.MaxInt64
	}
	return ltv.Int64()
}
