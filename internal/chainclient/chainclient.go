// Package chainclient wires internal/rpcpool's narrow chain capabilities
// into the interfaces the domain packages (pools, rates, rebalance,
// period) declare for themselves. It holds no trading logic of its own —
// every adapter here is a thin translation from "RPC view/send call" to
// "domain-shaped method", the same seam the teacher draws between
// blackhole.go's Blackhole type and its ContractClient map, generalized
// from one DEX's ABI to the generic view/send capability rpcpool exposes.
package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ammtrader/ammtrader/internal/errs"
	"github.com/ammtrader/ammtrader/internal/pathgraph"
	"github.com/ammtrader/ammtrader/internal/rpcpool"
)

func decodeJSON(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}

// PoolDirectory is the configured set of known pool ids (spec §9: pool
// discovery itself is out of scope; pools are configured, not crawled).
// It is the one piece of static wiring this package needs beyond
// rpcpool.Pool.
type PoolDirectory struct {
	Registry  string // registry/factory contract id; PoolReserves queries each pool id directly and does not read it
	PoolIDs   []string
}

// Reader adapts rpcpool.Pool into pools.ChainReader: ListPoolIDs returns
// the configured directory, PoolReserves decodes one pool's view response.
type Reader struct {
	pool *rpcpool.Pool
	dir  PoolDirectory
}

func NewReader(pool *rpcpool.Pool, dir PoolDirectory) *Reader {
	return &Reader{pool: pool, dir: dir}
}

func (r *Reader) ListPoolIDs(ctx context.Context) ([]string, error) {
	return r.dir.PoolIDs, nil
}

// poolView is the shape the "get_pool" contract view method returns.
type poolView struct {
	TokenA   string `json:"token_a"`
	TokenB   string `json:"token_b"`
	ReserveA string `json:"reserve_a"`
	ReserveB string `json:"reserve_b"`
	FeeBps   int    `json:"fee_bps"`
}

func (r *Reader) PoolReserves(ctx context.Context, poolID string) (tokenA, tokenB, reserveA, reserveB string, feeBps int, err error) {
	raw, err := r.pool.View(ctx, poolID, "get_pool")
	if err != nil {
		return "", "", "", "", 0, err
	}
	var v poolView
	if err := decodeJSON(raw, &v); err != nil {
		return "", "", "", "", 0, errs.NewDomain("chainclient.PoolReserves", fmt.Errorf("pool %s: %w", poolID, err))
	}
	return v.TokenA, v.TokenB, v.ReserveA, v.ReserveB, v.FeeBps, nil
}

// Reserves adapts the same view call into rates.ReserveProvider's
// big.Int-typed reserve pair for the pool leg (in, out).
func (r *Reader) Reserves(ctx context.Context, poolID, in, out string) (reserveIn, reserveOut *big.Int, feeBps int, err error) {
	tokenA, tokenB, ra, rb, fee, err := r.PoolReserves(ctx, poolID)
	if err != nil {
		return nil, nil, 0, err
	}
	reserveIn, reserveOut, err = matchReserves(poolID, tokenA, tokenB, ra, rb, in, out)
	if err != nil {
		return nil, nil, 0, err
	}
	return reserveIn, reserveOut, fee, nil
}

// matchReserves orders a pool's two string-encoded reserves to (in, out)
// given which token each side holds.
func matchReserves(poolID, tokenA, tokenB, reserveA, reserveB, in, out string) (*big.Int, *big.Int, error) {
	amtA, okA := new(big.Int).SetString(reserveA, 10)
	amtB, okB := new(big.Int).SetString(reserveB, 10)
	if !okA || !okB {
		return nil, nil, errs.NewDomain("chainclient.matchReserves", fmt.Errorf("pool %s: malformed reserves", poolID))
	}
	switch {
	case tokenA == in && tokenB == out:
		return amtA, amtB, nil
	case tokenB == in && tokenA == out:
		return amtB, amtA, nil
	default:
		return nil, nil, errs.NewDomain("chainclient.matchReserves", fmt.Errorf("pool %s does not connect %s->%s", poolID, in, out))
	}
}

// depositsView is the shape the "get_deposits" contract view method
// returns: a map of token id to its smallest-units balance held inside the
// exchange contract for one account (spec §6).
type depositsView map[string]string

// Deposits implements get_deposits(account), the real per-token balances
// rebalance plans against instead of the last-selected token universe.
func (r *Reader) Deposits(ctx context.Context, exchangeContract, account string) (map[string]*big.Int, error) {
	raw, err := r.pool.View(ctx, exchangeContract, "get_deposits", account)
	if err != nil {
		return nil, err
	}
	out, err := parseDeposits(raw)
	if err != nil {
		return nil, errs.NewDomain("chainclient.Deposits", fmt.Errorf("account %s: %w", account, err))
	}
	return out, nil
}

// parseDeposits decodes one get_deposits response into smallest-unit
// balances, the pure part of Deposits kept separate from the RPC call for
// testing without a live rpcpool.Pool.
func parseDeposits(raw []byte) (map[string]*big.Int, error) {
	var v depositsView
	if err := decodeJSON(raw, &v); err != nil {
		return nil, err
	}
	out := make(map[string]*big.Int, len(v))
	for token, amt := range v {
		n, ok := new(big.Int).SetString(amt, 10)
		if !ok {
			return nil, fmt.Errorf("malformed deposit for %s", token)
		}
		out[token] = n
	}
	return out, nil
}

// NativeReserve returns whichever side of the pool holds the configured
// native token, for the §4.5 spot-price correction denominator.
func (r *Reader) NativeReserve(ctx context.Context, poolID string) (*big.Int, error) {
	tokenA, _, ra, rb, _, err := r.PoolReserves(ctx, poolID)
	if err != nil {
		return nil, err
	}
	amtA, okA := new(big.Int).SetString(ra, 10)
	amtB, okB := new(big.Int).SetString(rb, 10)
	if !okA || !okB {
		return nil, errs.NewDomain("chainclient.NativeReserve", fmt.Errorf("pool %s: malformed reserves", poolID))
	}
	return pickNativeReserve(tokenA, amtA, amtB, nativeToken), nil
}

// pickNativeReserve returns amtA if tokenA is the native token, else amtB.
func pickNativeReserve(tokenA string, amtA, amtB *big.Int, native string) *big.Int {
	if tokenA == native {
		return amtA
	}
	return amtB
}

// nativeToken is set once at process start by SetNativeToken; rpcpool's
// chain-agnostic view/send calls carry no inherent notion of "the native
// token", so the wiring layer supplies it (spec §6: wrapped-native symbol
// is a configured value, not a protocol constant).
var nativeToken string

// SetNativeToken configures the token identifier treated as native for
// NativeReserve and the Router/Swapper below.
func SetNativeToken(symbol string) { nativeToken = symbol }

// Router adapts a pathgraph.Graph snapshot into rebalance.Router.
type Router struct {
	graph func() *pathgraph.Graph
}

func NewRouter(graph func() *pathgraph.Graph) *Router {
	return &Router{graph: graph}
}

func (r *Router) Route(from, to string) ([]pathgraph.Edge, error) {
	return routeEdges(r.graph(), from, to)
}

func routeEdges(g *pathgraph.Graph, from, to string) ([]pathgraph.Edge, error) {
	sp := g.UpdateGraph(from)
	return sp.GetPath(to)
}

// Swapper adapts rpcpool.Pool's Send/AccountBalance capability into
// rebalance.Swapper, executing a multi-leg swap path one pool at a time.
type Swapper struct {
	pool    *rpcpool.Pool
	signer  rpcpool.Signer
	account string
}

func NewSwapper(pool *rpcpool.Pool, signer rpcpool.Signer, account string) *Swapper {
	return &Swapper{pool: pool, signer: signer, account: account}
}

// Swap executes every edge of path in order, feeding each leg's output
// into the next leg's input, and returns the final output amount plus the
// settlement hash of the path's last leg, for trade_transactions persistence
// (spec §3.3/§4.12).
func (s *Swapper) Swap(ctx context.Context, path []pathgraph.Edge, amountIn *big.Int) (*big.Int, string, error) {
	amount := amountIn
	var lastHash string
	for _, edge := range path {
		handle, err := s.pool.Send(ctx, s.signer, edge.PoolID, "swap", big.NewInt(0),
			map[string]interface{}{"token_in": edge.In, "token_out": edge.Out, "amount_in": amount.String()})
		if err != nil {
			return nil, "", err
		}
		outcome, err := handle.WaitSuccess(ctx)
		if err != nil {
			return nil, "", err
		}
		lastHash = outcome.Hash.Hex()
		amount, err = s.pool.AccountBalance(ctx, s.account)
		if err != nil {
			return nil, "", err
		}
	}
	return amount, lastHash, nil
}

// NativeBalance returns the signer account's current native balance.
func (s *Swapper) NativeBalance(ctx context.Context) (*big.Int, error) {
	return s.pool.AccountBalance(ctx, s.account)
}

// Unwrap calls near_withdraw on the wrapped-native token contract, pulling
// amount out of the exchange's internal deposit ledger into the signer
// account's own native balance (spec §4.12/§6 "Wrapped-native token").
func (s *Swapper) Unwrap(ctx context.Context, amount *big.Int) (string, error) {
	handle, err := s.pool.Send(ctx, s.signer, nativeToken, "near_withdraw", big.NewInt(1),
		map[string]interface{}{"amount": amount.String()})
	if err != nil {
		return "", err
	}
	outcome, err := handle.WaitSuccess(ctx)
	if err != nil {
		return "", err
	}
	return outcome.Hash.Hex(), nil
}

// Transfer sends amount of the signer account's native balance to dest, the
// final leg of a harvest (spec §4.12).
func (s *Swapper) Transfer(ctx context.Context, dest string, amount *big.Int) (string, error) {
	handle, err := s.pool.Send(ctx, s.signer, dest, "transfer", amount)
	if err != nil {
		return "", err
	}
	outcome, err := handle.WaitSuccess(ctx)
	if err != nil {
		return "", err
	}
	return outcome.Hash.Hex(), nil
}
