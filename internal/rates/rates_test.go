package rates

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammtrader/ammtrader/internal/errs"
	"github.com/ammtrader/ammtrader/internal/pathgraph"
)

type fakeReserves struct {
	reserveIn, reserveOut map[string][2]*big.Int // poolID -> {in, out}
	feeBps                map[string]int
	nativeReserve         map[string]*big.Int
}

func (f *fakeReserves) Reserves(ctx context.Context, poolID, in, out string) (*big.Int, *big.Int, int, error) {
	r := f.reserveIn[poolID]
	return r[0], r[1], f.feeBps[poolID], nil
}

func (f *fakeReserves) NativeReserve(ctx context.Context, poolID string) (*big.Int, error) {
	return f.nativeReserve[poolID], nil
}

func TestConstantProductOutNoFee(t *testing.T) {
	// x*y=k, 0 fee: amountOut = reserveOut - k/(reserveIn+amountIn)
	out := constantProductOut(big.NewInt(1000), big.NewInt(10000), big.NewInt(10000), 0)
	assert.Equal(t, big.NewInt(909), out)
}

func TestConstantProductOutWithFee(t *testing.T) {
	noFee := constantProductOut(big.NewInt(1000), big.NewInt(10000), big.NewInt(10000), 0)
	withFee := constantProductOut(big.NewInt(1000), big.NewInt(10000), big.NewInt(10000), 30)
	assert.True(t, withFee.Cmp(noFee) < 0, "a fee must reduce output")
}

func TestSimulateSwapMultiLeg(t *testing.T) {
	path := []pathgraph.Edge{
		{PoolID: "p1", In: "native", Out: "usdc"},
		{PoolID: "p2", In: "usdc", Out: "dai"},
	}
	reserves := &fakeReserves{
		reserveIn:  map[string][2]*big.Int{"p1": {big.NewInt(1_000_000), big.NewInt(1_000_000)}, "p2": {big.NewInt(500_000), big.NewInt(500_000)}},
		feeBps:     map[string]int{"p1": 30, "p2": 30},
	}
	out, err := SimulateSwap(context.Background(), path, big.NewRat(1, 1000000000000000000), reserves)
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0)
}

func TestSimulateSwapEmptyPathIsDomainError(t *testing.T) {
	_, err := SimulateSwap(context.Background(), nil, big.NewRat(1, 1), &fakeReserves{})
	assert.Error(t, err)
	var domainErr *errs.Domain
	assert.ErrorAs(t, err, &domainErr)
}

func TestFillFallbackPathsBackwardScan(t *testing.T) {
	base := time.Now()
	path := []pathgraph.Edge{{PoolID: "p1", In: "native", Out: "usdc"}}
	rs := []TokenRate{
		{Base: "usdc", Quote: "native", Timestamp: base, SwapPath: nil},
		{Base: "usdc", Quote: "native", Timestamp: base.Add(time.Hour), SwapPath: path},
		{Base: "usdc", Quote: "native", Timestamp: base.Add(2 * time.Hour), SwapPath: nil},
	}
	fallback := FillFallbackPaths(rs)
	assert.Equal(t, path, fallback[0], "record before the only known path inherits it")
	assert.Equal(t, path, fallback[1])
	assert.Nil(t, fallback[2], "no strictly-newer record exists for the last one")
}

func TestToSpotAppliesCorrectionOnce(t *testing.T) {
	path := []pathgraph.Edge{{PoolID: "p1", In: "native", Out: "usdc"}}
	reserves := &fakeReserves{nativeReserve: map[string]*big.Int{"p1": big.NewInt(1_000_000_000_000_000_000)}}
	s := &Store{}

	tr := TokenRate{
		Base:            "usdc",
		Quote:           "native",
		Rate:            big.NewRat(5, 1),
		CalcInputNative: big.NewRat(1, 1),
		SwapPath:        path,
	}

	first, err := s.ToSpot(context.Background(), tr, nil, reserves)
	require.NoError(t, err)

	second, err := s.ToSpot(context.Background(), tr, nil, reserves)
	require.NoError(t, err)

	assert.Equal(t, 0, first.Rat().Cmp(second.Rat()), "calling ToSpot twice on the same record must not compound the correction")
	assert.True(t, first.Rat().Cmp(tr.Rate) > 0, "corrected rate must exceed the raw rate")
}

func TestToSpotUncorrectedWhenNoPath(t *testing.T) {
	s := &Store{}
	tr := TokenRate{Rate: big.NewRat(5, 1), CalcInputNative: big.NewRat(1, 1)}
	spot, err := s.ToSpot(context.Background(), tr, nil, &fakeReserves{})
	require.NoError(t, err)
	assert.Equal(t, 0, spot.Rat().Cmp(tr.Rate))
}

func TestVolatilityRankingExcludesNonPositiveMin(t *testing.T) {
	series := []float64{1, 2, 3}
	assert.Greater(t, variance(series), 0.0)
	assert.Equal(t, 1.0, minOf(series))
	// VolatilityRanking drops a base when minOf(series) <= 0.
	assert.LessOrEqual(t, minOf([]float64{2, 0, 3}), 0.0)
}
