package optimizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleAssets() []Asset {
	return []Asset{
		{Token: "a", CurrentPrice: 1.0, PredictedPrice: 1.2, AnnualizedVol: 0.2, DailyReturns: series(0.01, 0.02, -0.01, 0.03, -0.02)},
		{Token: "b", CurrentPrice: 2.0, PredictedPrice: 1.9, AnnualizedVol: 0.15, DailyReturns: series(0.00, -0.01, 0.01, 0.00, 0.02)},
		{Token: "c", CurrentPrice: 0.5, PredictedPrice: 0.7, AnnualizedVol: 0.4, DailyReturns: series(0.05, -0.04, 0.03, -0.02, 0.01)},
	}
}

func series(vals ...float64) []float64 { return vals }

func TestWeightsSumToOneOrAllZero(t *testing.T) {
	res := Optimize(sampleAssets())
	var sum float64
	for _, w := range res.Weights {
		sum += w
	}
	if sum != 0 {
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestWeightCap(t *testing.T) {
	res := Optimize(sampleAssets())
	for _, w := range res.Weights {
		assert.LessOrEqual(t, w, maxWeight+1e-9)
	}
}

func TestWeightCountAtMostSix(t *testing.T) {
	var assets []Asset
	for i := 0; i < 10; i++ {
		assets = append(assets, Asset{
			Token:          string(rune('a' + i)),
			CurrentPrice:   1.0,
			PredictedPrice: 1.0 + 0.01*float64(i),
			AnnualizedVol:  0.1 + 0.02*float64(i),
			DailyReturns:   series(0.01, -0.01, 0.02, -0.02, 0.01),
		})
	}
	res := Optimize(assets)
	nonZero := 0
	for _, w := range res.Weights {
		if w > 0 {
			nonZero++
		}
	}
	assert.LessOrEqual(t, nonZero, topN)
}

func TestTurnoverBounded(t *testing.T) {
	assets := sampleAssets()
	assets[0].CurrentWeight = 0.5
	assets[1].CurrentWeight = 0.5
	res := Optimize(assets)
	assert.GreaterOrEqual(t, res.Turnover, 0.0)
	assert.LessOrEqual(t, res.Turnover, 1.0)
}

func TestOptimizerDeterministic(t *testing.T) {
	a := Optimize(sampleAssets())
	b := Optimize(sampleAssets())
	for token, w := range a.Weights {
		assert.Equal(t, w, b.Weights[token], "identical inputs must produce bit-identical weights")
	}
}

func TestRiskAdjustmentMultiplierBounds(t *testing.T) {
	assert.Equal(t, 0.7, riskAdjustmentMultiplier(0.3))
	assert.Equal(t, 0.7, riskAdjustmentMultiplier(0.5))
	assert.Equal(t, 1.4, riskAdjustmentMultiplier(0.1))
	assert.Equal(t, 1.4, riskAdjustmentMultiplier(0.05))
	mid := riskAdjustmentMultiplier(0.2)
	assert.True(t, mid > 0.7 && mid < 1.4)
}

func TestBlendAlphaWithinRange(t *testing.T) {
	for _, mult := range []float64{0.7, 1.0, 1.4} {
		a := blendAlpha(mult)
		assert.GreaterOrEqual(t, a, 0.7)
		assert.LessOrEqual(t, a, 0.9)
	}
}

func TestShouldRebalanceThreshold(t *testing.T) {
	current := map[string]float64{"a": 0.5, "b": 0.5}
	target := map[string]float64{"a": 0.55, "b": 0.45}
	assert.False(t, ShouldRebalance(current, target, 0.1))

	target2 := map[string]float64{"a": 0.9, "b": 0.1}
	assert.True(t, ShouldRebalance(current, target2, 0.1))
}

func TestNoAssetsReturnsEmptyWeights(t *testing.T) {
	res := Optimize(nil)
	assert.Empty(t, res.Weights)
}

func TestSanitizeCoercesInvalidValues(t *testing.T) {
	out := sanitize([]float64{math.NaN(), math.Inf(1), -1, 0.5})
	assert.Equal(t, []float64{0, 0, 0, 0.5}, out)
}
