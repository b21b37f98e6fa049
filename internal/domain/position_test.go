package domain_test

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aurumfi/goldvault/internal/domain"
)

func TestCurrentLtvBps(t *testing.T) {
	pos := domain.Position{
		Collateral: big.NewInt(4_000),
		Debt:       big.NewInt(900_000),
	}
	// collateral value = 4000 * 3000 = 12,000,000; ltv = 900000*10000/12000000
	price := big.NewInt(300_000_000_000)
	require.Equal(t, int64(750), pos.CurrentLtvBps(price))
}

func TestCurrentLtvBpsZeroWithoutCollateral(t *testing.T) {
	pos := domain.Position{Debt: big.NewInt(1_000_000)}
	require.Equal(t, int64(0), pos.CurrentLtvBps(big.NewInt(domain.PriceScale)))
}

func TestCurrentLtvBpsClampsDustCollateral(t *testing.T) {
	debt, ok := new(big.Int).SetString("1000000000000000000", 10)
	require.True(t, ok)

	// One unit of collateral valued at one loan-asset unit against 1e18 debt
	// pushes the raw ratio far past int64 range.
	pos := domain.Position{Collateral: big.NewInt(1), Debt: debt}
	require.Equal(t, int64(math.MaxInt64), pos.CurrentLtvBps(big.NewInt(domain.PriceScale)))
}
