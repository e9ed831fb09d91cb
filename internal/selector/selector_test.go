package selector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammtrader/ammtrader/internal/pathgraph"
	"github.com/ammtrader/ammtrader/internal/rates"
)

type fakeRanking struct {
	entries []rates.VarianceEntry
}

func (f *fakeRanking) VolatilityRanking(ctx context.Context, tr rates.TimeRange, quote string) ([]rates.VarianceEntry, error) {
	return f.entries, nil
}

func TestSelectFiltersUnreachableAndRespectsQuota(t *testing.T) {
	source := &fakeRanking{entries: []rates.VarianceEntry{
		{Base: "usdc", Variance: 10},
		{Base: "isolated", Variance: 9}, // unreachable, must be skipped
		{Base: "dai", Variance: 8},
		{Base: "wbtc", Variance: 7},
	}}
	g := pathgraph.New([]pathgraph.Edge{
		{PoolID: "p1", In: "native", Out: "usdc", Rate: 5},
		{PoolID: "p2", In: "usdc", Out: "native", Rate: 0.2},
		{PoolID: "p3", In: "native", Out: "dai", Rate: 1},
		{PoolID: "p4", In: "dai", Out: "native", Rate: 1},
		{PoolID: "p5", In: "native", Out: "wbtc", Rate: 0.01},
		{PoolID: "p6", In: "wbtc", Out: "native", Rate: 100},
	})

	window := rates.TimeRange{From: time.Now().Add(-time.Hour), To: time.Now()}
	selected, warn, err := Select(context.Background(), source, g, window, Config{Native: "native", TopTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"usdc", "dai", "wbtc"}, selected)
	assert.True(t, warn, "ranking exhausted before quota of 10 was filled")
}

func TestSelectEarlyExitsOnceQuotaMet(t *testing.T) {
	source := &fakeRanking{entries: []rates.VarianceEntry{
		{Base: "usdc", Variance: 10},
		{Base: "dai", Variance: 8},
	}}
	g := pathgraph.New([]pathgraph.Edge{
		{PoolID: "p1", In: "native", Out: "usdc", Rate: 5},
		{PoolID: "p2", In: "usdc", Out: "native", Rate: 0.2},
		{PoolID: "p3", In: "native", Out: "dai", Rate: 1},
		{PoolID: "p4", In: "dai", Out: "native", Rate: 1},
	})
	window := rates.TimeRange{}
	selected, warn, err := Select(context.Background(), source, g, window, Config{Native: "native", TopTokens: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"usdc"}, selected)
	assert.False(t, warn)
}
