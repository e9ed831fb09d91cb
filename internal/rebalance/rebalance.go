// Package rebalance implements the two-phase sell-then-buy swap driver
// (spec §4.10/C10): all sells settle before any buy is planned, and buys
// are proportionally rescaled if realized sell proceeds fall short.
package rebalance

import (
	"context"
	"math/big"
	"sort"

	"github.com/ammtrader/ammtrader/internal/errs"
	"github.com/ammtrader/ammtrader/internal/numeric"
	"github.com/ammtrader/ammtrader/internal/pathgraph"
)

// minTradeNative is the 1-native-token minimum diff before a sell is
// planned (spec §4.10 Phase 1).
var minTradeNative = big.NewRat(1, 1)

// Balance is one token's current native-equivalent holding.
type Balance struct {
	Token       string
	ValueNative *big.Rat            // current holding value in whole native units
	Rate        numeric.ExchangeRate // base-smallest-units per native, for sell sizing
}

// Swapper executes one concrete swap along a path and returns the realized
// output amount in the destination token's smallest units plus the
// settlement transaction hash of the path's final leg.
type Swapper interface {
	Swap(ctx context.Context, path []pathgraph.Edge, amountIn *big.Int) (amountOut *big.Int, txHash string, err error)
	NativeBalance(ctx context.Context) (*big.Int, error)
}

// Router resolves the swap path between two tokens.
type Router interface {
	Route(from, to string) ([]pathgraph.Edge, error)
}

// Plan is one planned swap, before or after rescaling.
type Plan struct {
	Token  string
	Native *big.Rat            // planned native-denominated size
	Rate   numeric.ExchangeRate // carried from the sold token's Balance, unused for buys
}

// Outcome is the per-swap result of Execute, carrying enough detail for the
// caller to persist a trade_transactions row (spec §3.3/§4.12).
type Outcome struct {
	Token     string
	FromToken string
	ToToken   string
	AmountIn  *big.Int
	AmountOut *big.Int
	TxHash    string
	Success   bool
	Err       error
}

// Execute runs both phases of the rebalance and returns the per-swap
// outcomes. Native is the chain's native token identifier.
func Execute(ctx context.Context, native string, targetWeights map[string]float64, balances []Balance, totalNative *big.Rat, router Router, swapper Swapper) ([]Outcome, error) {
	var outcomes []Outcome

	sells := planSells(native, targetWeights, balances, totalNative)
	sellOutcomes, sellFailures := executeSells(ctx, native, sells, router, swapper)
	outcomes = append(outcomes, sellOutcomes...)

	realized, err := swapper.NativeBalance(ctx)
	if err != nil {
		return outcomes, errs.NewTransient("rebalance.Execute", err)
	}

	buys := planBuys(native, targetWeights, balances, totalNative)
	buyOutcomes, buySuccesses := executeBuys(ctx, native, buys, realized, router, swapper)
	outcomes = append(outcomes, buyOutcomes...)

	if buySuccesses == 0 && hasFailure(buyOutcomes) {
		return outcomes, errs.NewFatalTick("rebalance.Execute", errNoBuysSucceeded(sellFailures))
	}
	return outcomes, nil
}

type noBuysErr struct{ sellFailures int }

func (e noBuysErr) Error() string {
	return "phase 2 produced zero successes with at least one failure"
}

func errNoBuysSucceeded(sellFailures int) error { return noBuysErr{sellFailures: sellFailures} }

func hasFailure(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.Success {
			return true
		}
	}
	return false
}

// planSells finds non-native tokens whose target value is sufficiently
// below current value (spec §4.10 Phase 1), deterministically ordered by
// token id.
func planSells(native string, targetWeights map[string]float64, balances []Balance, totalNative *big.Rat) []Plan {
	var plans []Plan
	for _, b := range balances {
		if b.Token == native {
			continue
		}
		targetValue := new(big.Rat).Mul(big.NewRat(int64(targetWeights[b.Token]*1e9), 1e9), totalNative)
		diff := new(big.Rat).Sub(targetValue, b.ValueNative) // negative means sell
		if diff.Sign() >= 0 {
			continue
		}
		magnitude := new(big.Rat).Abs(diff)
		if magnitude.Cmp(minTradeNative) < 0 {
			continue
		}
		plans = append(plans, Plan{Token: b.Token, Native: magnitude, Rate: b.Rate})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Token < plans[j].Token })
	return plans
}

// planBuys finds tokens whose target value exceeds current value,
// deterministically ordered.
func planBuys(native string, targetWeights map[string]float64, balances []Balance, totalNative *big.Rat) []Plan {
	current := map[string]*big.Rat{}
	for _, b := range balances {
		current[b.Token] = b.ValueNative
	}
	var plans []Plan
	for token, weight := range targetWeights {
		if token == native {
			continue
		}
		targetValue := new(big.Rat).Mul(big.NewRat(int64(weight*1e9), 1e9), totalNative)
		cur, ok := current[token]
		if !ok {
			cur = new(big.Rat)
		}
		diff := new(big.Rat).Sub(targetValue, cur)
		if diff.Sign() <= 0 {
			continue
		}
		if diff.Cmp(minTradeNative) < 0 {
			continue
		}
		plans = append(plans, Plan{Token: token, Native: diff})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Token < plans[j].Token })
	return plans
}

var nativeScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

func toSmallestUnits(v *big.Rat) *big.Int {
	scaled := new(big.Rat).Mul(v, new(big.Rat).SetInt(nativeScale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}

// sellAmountSmallestUnits converts a native-denominated sell plan into the
// sold token's own smallest units: token_amount = native_diff * rate (spec
// §3.1, §4.10 Phase 1). A zero-value rate (no rate known for the token)
// falls back to scaling the native diff by the native token's 10^24
// decimals, i.e. sizing the sell as if the token traded 1:1 with native.
func sellAmountSmallestUnits(nativeDiff *big.Rat, rate numeric.ExchangeRate) *big.Int {
	if rate.IsZero() {
		return toSmallestUnits(nativeDiff)
	}
	nv, err := numeric.NewNativeValue(nativeDiff)
	if err != nil {
		return big.NewInt(0)
	}
	return rate.Mul(nv).Int()
}

// executeSells issues token->native swaps sequentially, continuing past
// individual failures (spec §4.10 "Failure semantics").
func executeSells(ctx context.Context, native string, plans []Plan, router Router, swapper Swapper) ([]Outcome, int) {
	var outcomes []Outcome
	failures := 0
	for _, p := range plans {
		path, err := router.Route(p.Token, native)
		if err != nil {
			outcomes = append(outcomes, Outcome{Token: p.Token, FromToken: p.Token, ToToken: native, Success: false, Err: err})
			failures++
			continue
		}
		amountIn := sellAmountSmallestUnits(p.Native, p.Rate)
		amountOut, txHash, err := swapper.Swap(ctx, path, amountIn)
		if err != nil {
			outcomes = append(outcomes, Outcome{Token: p.Token, FromToken: p.Token, ToToken: native, AmountIn: amountIn, Success: false, Err: err})
			failures++
			continue
		}
		outcomes = append(outcomes, Outcome{Token: p.Token, FromToken: p.Token, ToToken: native, AmountIn: amountIn, AmountOut: amountOut, TxHash: txHash, Success: true})
	}
	return outcomes, failures
}

// executeBuys rescales the buy plan proportionally if realized native
// falls short of the sum of planned buys, then issues native->token
// swaps sequentially (spec §4.10 Phase 2).
func executeBuys(ctx context.Context, native string, plans []Plan, realizedNative *big.Int, router Router, swapper Swapper) ([]Outcome, int) {
	var outcomes []Outcome
	successes := 0

	var totalPlanned big.Rat
	for _, p := range plans {
		totalPlanned.Add(&totalPlanned, p.Native)
	}

	realized := new(big.Rat).SetFrac(realizedNative, nativeScale)
	rescale := big.NewRat(1, 1)
	if totalPlanned.Sign() > 0 && realized.Cmp(&totalPlanned) < 0 {
		rescale = new(big.Rat).Quo(realized, &totalPlanned)
	}

	for _, p := range plans {
		amountNative := new(big.Rat).Mul(p.Native, rescale)
		amountIn := toSmallestUnits(amountNative)
		if amountIn.Sign() <= 0 {
			// rounds to zero at the smallest-unit level: skip, not a failure
			// (spec §9 open question on small-rate scaling).
			continue
		}
		path, err := router.Route(native, p.Token)
		if err != nil {
			outcomes = append(outcomes, Outcome{Token: p.Token, FromToken: native, ToToken: p.Token, Success: false, Err: err})
			continue
		}
		amountOut, txHash, err := swapper.Swap(ctx, path, amountIn)
		if err != nil {
			outcomes = append(outcomes, Outcome{Token: p.Token, FromToken: native, ToToken: p.Token, AmountIn: amountIn, Success: false, Err: err})
			continue
		}
		outcomes = append(outcomes, Outcome{Token: p.Token, FromToken: native, ToToken: p.Token, AmountIn: amountIn, AmountOut: amountOut, TxHash: txHash, Success: true})
		successes++
	}
	return outcomes, successes
}
