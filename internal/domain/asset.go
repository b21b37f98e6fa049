// Package domain defines the core types and collaborator interfaces for the
// goldvault lending backend: loan calculations, positions, flow state, the
// on-chain ledger, the off-chain redemption service, and the supporting
// stores and caches.
package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// BpsDenominator is the basis-point denominator: 10000 bps = 100%.
const BpsDenominator = 10000

// PriceScale is the fixed-point scale of oracle prices: a price of
// 3_000_00000000 means one collateral unit is worth 3000 loan-asset units.
const PriceScale = 100_000_000

// Asset describes an ERC-20 token the protocol touches.
type Asset struct {
	Symbol   string
	Address  string
	Decimals int
}

// FormatUnits renders a scaled fixed-point amount as a decimal string for
// display, e.g. FormatUnits(1_500_000, 6) == "1.5". Amounts are never
// converted to floats; this is string manipulation only.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	s := new(big.Int).Abs(amount).String()
	neg := amount.Sign() < 0

	if decimals <= 0 {
		if neg {
			return "-" + s
		}
		return s
	}

	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")

	out := intPart
	if fracPart != "" {
		out = intPart + "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ParseUnits converts a decimal string into a scaled fixed-point integer,
// e.g. ParseUnits("1.5", 6) == 1_500_000. It rejects more fractional digits
// than the asset carries rather than silently truncating.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("parse units: empty amount")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > decimals {
		return nil, fmt.Errorf("parse units: %q has more than %d decimal places", s, decimals)
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))

	v, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return nil, fmt.Errorf("parse units: invalid amount %q", s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}
