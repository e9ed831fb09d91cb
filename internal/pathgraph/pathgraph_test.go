package pathgraph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammtrader/ammtrader/internal/errs"
)

func TestShortestPathDirect(t *testing.T) {
	g := New([]Edge{
		{PoolID: "p1", In: "native", Out: "usdc", Rate: 5},
		{PoolID: "p2", In: "usdc", Out: "dai", Rate: 1},
	})
	sp := g.UpdateGraph("native")

	assert.True(t, sp.Reachable("dai"))
	path, err := sp.GetPath("dai")
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, "p1", path[0].PoolID)
	assert.Equal(t, "p2", path[1].PoolID)
}

func TestShortestPathPrefersHigherRate(t *testing.T) {
	// Two parallel native->usdc pools; graph build keeps only the
	// better-priced one, so the route goes through it.
	g := New([]Edge{
		{PoolID: "cheap", In: "native", Out: "usdc", Rate: 1},
		{PoolID: "rich", In: "native", Out: "usdc", Rate: 10},
	})
	sp := g.UpdateGraph("native")
	path, err := sp.GetPath("usdc")
	require.NoError(t, err)
	require.Len(t, path, 1)
	assert.Equal(t, "rich", path[0].PoolID)
}

func TestUnreachableGoalIsDomainError(t *testing.T) {
	g := New([]Edge{{PoolID: "p1", In: "native", Out: "usdc", Rate: 5}})
	sp := g.UpdateGraph("native")
	assert.False(t, sp.Reachable("dai"))

	_, err := sp.GetPath("dai")
	assert.Error(t, err)
	var domainErr *errs.Domain
	assert.ErrorAs(t, err, &domainErr)
	assert.True(t, math.IsInf(sp.Distance("dai"), 1))
}

func TestTrivialSelfPath(t *testing.T) {
	g := New(nil)
	sp := g.UpdateGraph("native")
	path, err := sp.GetPath("native")
	require.NoError(t, err)
	assert.Nil(t, path)
}

func TestCycleDoesNotLoop(t *testing.T) {
	g := New([]Edge{
		{PoolID: "p1", In: "a", Out: "b", Rate: 2},
		{PoolID: "p2", In: "b", Out: "a", Rate: 2},
		{PoolID: "p3", In: "b", Out: "c", Rate: 2},
	})
	sp := g.UpdateGraph("a")
	path, err := sp.GetPath("c")
	require.NoError(t, err)
	require.Len(t, path, 2)
}
