package loan

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func bi(v int64) *big.Int { return big.NewInt(v) }

// Example values: 1,000,000 loan units at 30% LTV, 0.5% fee, gold priced at
// 3000 loan units per collateral unit (1e8 price scale).
func TestCalculateExampleScenario(t *testing.T) {
	calc := Calculate(bi(1_000_000), bi(300_000_000_000), bi(10_000), 3000, 50, 6)

	require.Equal(t, bi(3_333_333), calc.CollateralValue)
	require.Equal(t, bi(1_112), calc.CollateralRequired)
	require.Equal(t, bi(5_000), calc.Fee)
	require.Equal(t, bi(995_000), calc.AmountReceived)
	require.True(t, calc.Valid)
	require.Empty(t, calc.ErrorMessage)
}

func TestCalculateFeeConsistency(t *testing.T) {
	price := bi(300_000_000_000)
	balance := bi(1_000_000_000)

	for _, amount := range []int64{1, 7, 999, 1_000_000, 123_456_789, 250_000_000_000} {
		for _, feeBps := range []int64{0, 1, 50, 9999, 10000} {
			calc := Calculate(bi(amount), price, balance, 3000, feeBps, 6)
			sum := new(big.Int).Add(calc.AmountReceived, calc.Fee)
			require.Zerof(t, sum.Cmp(calc.LoanAmount),
				"amount=%d feeBps=%d: received+fee != loan", amount, feeBps)
		}
	}
}

func TestCalculateZeroAmountGuard(t *testing.T) {
	calc := Calculate(bi(0), bi(300_000_000_000), bi(10_000), 3000, 50, 6)

	require.False(t, calc.Valid)
	require.NotEmpty(t, calc.ErrorMessage)
	require.Zero(t, calc.LoanAmount.Sign())
	require.Zero(t, calc.CollateralRequired.Sign())
	require.Zero(t, calc.CollateralValue.Sign())
	require.Zero(t, calc.Fee.Sign())
	require.Zero(t, calc.AmountReceived.Sign())

	nilCalc := Calculate(nil, bi(300_000_000_000), bi(10_000), 3000, 50, 6)
	require.False(t, nilCalc.Valid)
}

func TestCalculateInsufficientCollateralBoundary(t *testing.T) {
	price := bi(300_000_000_000)
	amount := bi(1_000_000)

	required := Calculate(amount, price, bi(1_000_000_000), 3000, 50, 6).CollateralRequired

	exact := Calculate(amount, price, required, 3000, 50, 6)
	require.True(t, exact.Valid)

	oneBelow := Calculate(amount, price, new(big.Int).Sub(required, bi(1)), 3000, 50, 6)
	require.False(t, oneBelow.Valid)
	require.Contains(t, oneBelow.ErrorMessage, "insufficient collateral")
	require.Contains(t, oneBelow.ErrorMessage, "need")
	require.Contains(t, oneBelow.ErrorMessage, "have")

	oneAbove := Calculate(amount, price, new(big.Int).Add(required, bi(1)), 3000, 50, 6)
	require.True(t, oneAbove.Valid)
}

func TestCollateralRequiredMonotonicInLoanAmount(t *testing.T) {
	price := bi(300_000_000_000)
	balance := bi(1_000_000_000_000)

	prev := Calculate(bi(500_000), price, balance, 3000, 50, 6).CollateralRequired
	for _, amount := range []int64{600_000, 1_000_000, 5_000_000, 50_000_000} {
		cur := Calculate(bi(amount), price, balance, 3000, 50, 6).CollateralRequired
		require.Positivef(t, cur.Cmp(prev), "required should grow with loan amount (amount=%d)", amount)
		prev = cur
	}
}

func TestCollateralRequiredMonotonicInLtv(t *testing.T) {
	price := bi(300_000_000_000)
	balance := bi(1_000_000_000_000)
	amount := bi(10_000_000)

	prev := Calculate(amount, price, balance, 1000, 50, 6).CollateralRequired
	for _, ltv := range []int64{2000, 3000, 5000, 8000, 10000} {
		cur := Calculate(amount, price, balance, ltv, 50, 6).CollateralRequired
		require.Negativef(t, cur.Cmp(prev), "required should shrink as LTV rises (ltv=%d)", ltv)
		prev = cur
	}
}

// A loan of exactly MaxLoan must always validate with the same inputs.
func TestMaxLoanRoundTrip(t *testing.T) {
	cases := []struct {
		balance int64
		price   int64
		ltvBps  int64
	}{
		{10_000, 300_000_000_000, 3000},
		{1, 300_000_000_000, 3000},
		{999_999_999, 123_456_789, 7},
		{1_112, 300_000_000_000, 3000},
		{5_000_000, 99_999_999, 10000},
		{77, 100_000_001, 5555},
	}

	for _, tc := range cases {
		m := MaxLoan(bi(tc.balance), bi(tc.price), tc.ltvBps)
		if m.Sign() == 0 {
			continue // nothing borrowable; Calculate's zero guard applies
		}
		calc := Calculate(m, bi(tc.price), bi(tc.balance), tc.ltvBps, 0, 6)
		require.Truef(t, calc.Valid,
			"balance=%d price=%d ltv=%d max=%s: %s",
			tc.balance, tc.price, tc.ltvBps, m, calc.ErrorMessage)
	}
}

func TestMaxLoanZeroBalance(t *testing.T) {
	require.Zero(t, MaxLoan(bi(0), bi(300_000_000_000), 3000).Sign())
	require.Zero(t, MaxLoan(nil, bi(300_000_000_000), 3000).Sign())
}
