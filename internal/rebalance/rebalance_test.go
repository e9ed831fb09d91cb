package rebalance

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammtrader/ammtrader/internal/numeric"
	"github.com/ammtrader/ammtrader/internal/pathgraph"
)

type fakeRouter struct{}

func (fakeRouter) Route(from, to string) ([]pathgraph.Edge, error) {
	return []pathgraph.Edge{{PoolID: "p", In: from, Out: to, Rate: 1}}, nil
}

type fakeSwapper struct {
	nativeBalance *big.Int
	swapCalls     []*big.Int
}

func (f *fakeSwapper) Swap(ctx context.Context, path []pathgraph.Edge, amountIn *big.Int) (*big.Int, string, error) {
	f.swapCalls = append(f.swapCalls, amountIn)
	return amountIn, "0xfake", nil
}

func mustRate(t *testing.T, raw int64, decimals int) numeric.ExchangeRate {
	t.Helper()
	r, err := numeric.NewExchangeRate(big.NewRat(raw, 1), decimals)
	require.NoError(t, err)
	return r
}

func (f *fakeSwapper) NativeBalance(ctx context.Context) (*big.Int, error) {
	return f.nativeBalance, nil
}

// TestRebalanceShortfallRescalesBuys is seed scenario 3: target {A:0.4,
// B:0.6}, current {A:0.8, B:0.2}, total 300. Sells realize only 80 native;
// the planned B buy of 120 should rescale to 80.
func TestRebalanceShortfallRescalesBuys(t *testing.T) {
	total := big.NewRat(300, 1)
	balances := []Balance{
		// a's rate is 2000 base-smallest-units per native: the planned
		// 120-native sell must size to 120*2000, not 120 scaled by the
		// native token's own 10^24 decimals.
		{Token: "a", ValueNative: big.NewRat(240, 1), Rate: mustRate(t, 2000, 0)}, // 0.8 * 300
		{Token: "b", ValueNative: big.NewRat(60, 1)},                             // 0.2 * 300
	}
	target := map[string]float64{"a": 0.4, "b": 0.6}

	swapper := &fakeSwapper{nativeBalance: toSmallestUnits(big.NewRat(80, 1))}
	outcomes, err := Execute(context.Background(), "native", target, balances, total, fakeRouter{}, swapper)
	require.NoError(t, err)

	for _, o := range outcomes {
		assert.True(t, o.Success, o.Token)
	}
	// one sell (a) + one buy (b, rescaled)
	require.Len(t, swapper.swapCalls, 2)
	sellAmount := swapper.swapCalls[0]
	assert.Equal(t, 0, sellAmount.Cmp(big.NewInt(240000))) // 120 native * 2000
	rescaledBuy := swapper.swapCalls[1]
	expected := toSmallestUnits(big.NewRat(80, 1))
	assert.Equal(t, 0, rescaledBuy.Cmp(expected))
}

func TestSellAmountSmallestUnitsUsesRate(t *testing.T) {
	rate := mustRate(t, 2000, 0)
	got := sellAmountSmallestUnits(big.NewRat(120, 1), rate)
	assert.Equal(t, 0, got.Cmp(big.NewInt(240000)))
}

func TestSellAmountSmallestUnitsFallsBackWithoutRate(t *testing.T) {
	got := sellAmountSmallestUnits(big.NewRat(1, 1), numeric.ExchangeRate{})
	assert.Equal(t, 0, got.Cmp(toSmallestUnits(big.NewRat(1, 1))))
}

func TestPlanSellsSkipsBelowMinimumTrade(t *testing.T) {
	total := big.NewRat(100, 1)
	balances := []Balance{{Token: "a", ValueNative: big.NewRat(50, 1)}}
	target := map[string]float64{"a": 0.495} // diff ~0.5 native, below the 1-native minimum
	plans := planSells("native", target, balances, total)
	assert.Empty(t, plans)
}

func TestExecuteNoFailuresWhenNoRebalanceNeeded(t *testing.T) {
	total := big.NewRat(100, 1)
	balances := []Balance{{Token: "a", ValueNative: big.NewRat(100, 1)}}
	target := map[string]float64{"a": 1.0}
	swapper := &fakeSwapper{nativeBalance: big.NewInt(0)}
	outcomes, err := Execute(context.Background(), "native", target, balances, total, fakeRouter{}, swapper)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestExecuteFatalWhenAllBuysFail(t *testing.T) {
	total := big.NewRat(100, 1)
	balances := []Balance{{Token: "a", ValueNative: big.NewRat(100, 1)}}
	target := map[string]float64{"a": 0, "b": 1.0}
	swapper := &fakeSwapper{nativeBalance: toSmallestUnits(big.NewRat(100, 1))}
	failingRouter := failingRouterForBuys{}
	_, err := Execute(context.Background(), "native", target, balances, total, failingRouter, swapper)
	assert.Error(t, err)
}

type failingRouterForBuys struct{}

func (failingRouterForBuys) Route(from, to string) ([]pathgraph.Edge, error) {
	if from == "native" {
		return nil, assert.AnError
	}
	return []pathgraph.Edge{{PoolID: "p", In: from, Out: to, Rate: 1}}, nil
}
