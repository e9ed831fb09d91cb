package rates

import (
	"context"
	"math/big"

	"github.com/ammtrader/ammtrader/internal/errs"
	"github.com/ammtrader/ammtrader/internal/numeric"
	"github.com/ammtrader/ammtrader/internal/pathgraph"
)

// nativeScale is 10^24, the native-token decimals used in the spot
// correction formula (spec §4.5).
var nativeScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

// ToSpot corrects a recorded finite-input rate into an approximation of the
// instantaneous marginal rate (spec §4.5). When the record's own swap_path
// is nil, fallbackPath (typically produced by FillFallbackPaths) is used
// instead; if neither is available the uncorrected rate is returned.
func (s *Store) ToSpot(ctx context.Context, tr TokenRate, fallbackPath []pathgraph.Edge, reserves ReserveProvider) (numeric.ExchangeRate, error) {
	path := tr.SwapPath
	if path == nil {
		path = fallbackPath
	}
	if path == nil {
		return rateToExchangeRate(tr)
	}

	minReserve, err := minNativeReserve(ctx, path, reserves)
	if err != nil || minReserve == nil || minReserve.Sign() <= 0 {
		return rateToExchangeRate(tr)
	}

	numerator := new(big.Rat).Mul(tr.CalcInputNative, new(big.Rat).SetInt(nativeScale))
	correction := new(big.Rat).Quo(numerator, new(big.Rat).SetInt(minReserve))
	factor := new(big.Rat).Add(big.NewRat(1, 1), correction)
	spotRat := new(big.Rat).Mul(tr.Rate, factor)

	return numeric.NewExchangeRate(spotRat, 0)
}

func rateToExchangeRate(tr TokenRate) (numeric.ExchangeRate, error) {
	return numeric.NewExchangeRate(tr.Rate, 0)
}

// minNativeReserve finds the smallest native-side reserve across every pool
// leg in path, the depth term of the §4.5 correction factor.
func minNativeReserve(ctx context.Context, path []pathgraph.Edge, reserves ReserveProvider) (*big.Int, error) {
	var min *big.Int
	for _, edge := range path {
		r, err := reserves.NativeReserve(ctx, edge.PoolID)
		if err != nil {
			return nil, errs.NewTransient("rates.minNativeReserve", err)
		}
		if r == nil {
			continue
		}
		if min == nil || r.Cmp(min) < 0 {
			min = r
		}
	}
	return min, nil
}

// FillFallbackPaths computes, for every record with a nil swap_path, the
// path of the chronologically nearest strictly-newer record for the same
// (base, quote) pair, in a single O(n) backward scan per pair. rates must
// be sorted ascending by timestamp within each (base, quote) group; records
// from different pairs may be interleaved in any order.
func FillFallbackPaths(rs []TokenRate) [][]pathgraph.Edge {
	type key struct{ base, quote string }
	groups := map[key][]int{}
	for i, r := range rs {
		k := key{r.Base, r.Quote}
		groups[k] = append(groups[k], i)
	}

	fallback := make([][]pathgraph.Edge, len(rs))
	for _, idxs := range groups {
		var next []pathgraph.Edge
		for i := len(idxs) - 1; i >= 0; i-- {
			idx := idxs[i]
			if rs[idx].SwapPath != nil {
				fallback[idx] = rs[idx].SwapPath
				next = rs[idx].SwapPath
				continue
			}
			fallback[idx] = next
		}
	}
	return fallback
}
