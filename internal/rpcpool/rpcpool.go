// Package rpcpool implements the rate-limited, multi-endpoint RPC fan-out
// (spec §4.1/C2) the rest of the trading core depends on. It is the only
// package that talks to the chain: everything above it only sees the small
// capability interfaces (ViewContract, SendTx, AccountInfo, GasInfo)
// following the teacher's own preference for narrow interfaces over a
// single fat client.
//
// The wire format itself (how a call or transaction is actually encoded)
// is out of scope per spec §1 — endpoints are modeled as generic JSON-RPC
// 2.0 transports via go-ethereum's rpc.Client, which is chain-agnostic at
// that layer.
package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ammtrader/ammtrader/internal/errs"
)

// ViewContract performs a read-only call against a contract and returns the
// raw result bytes.
type ViewContract interface {
	View(ctx context.Context, contract, method string, args ...interface{}) ([]byte, error)
}

// TxHandle is returned by SendTx.Send; it lets the caller await inclusion
// or success without blocking the endpoint pool.
type TxHandle interface {
	Hash() common.Hash
	WaitExecuted(ctx context.Context) (Outcome, error)
	WaitSuccess(ctx context.Context) (Outcome, error)
}

// Outcome is the terminal state of a submitted transaction.
type Outcome struct {
	Hash     common.Hash
	Success  bool
	GasUsed  uint64
	GasPrice *big.Int
}

// SendTx submits a state-changing call and returns a handle to its outcome.
type SendTx interface {
	Send(ctx context.Context, signer Signer, contract, method string, deposit *big.Int, args ...interface{}) (TxHandle, error)
}

// AccountInfo reads native-token account balances.
type AccountInfo interface {
	AccountBalance(ctx context.Context, account string) (*big.Int, error)
}

// GasInfo exposes current gas price discovery, delegated entirely to the
// concrete RPC implementation per spec §6.
type GasInfo interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Signer abstracts the wallet capability used to authorize a Send call.
type Signer interface {
	AccountID() string
	Sign(payload []byte) ([]byte, error)
}

// Endpoint describes one configured RPC endpoint.
type Endpoint struct {
	URL        string
	Weight     int
	MaxRetries int
}

type endpointState struct {
	cfg           Endpoint
	client        *rpc.Client
	failureCount  int
	firstFailedAt time.Time
}

// Pool is a weighted, failure-tracking client pool over N endpoints,
// implementing ViewContract/SendTx/AccountInfo/GasInfo by fanning calls
// out across whichever endpoints currently look healthy.
type Pool struct {
	mu                sync.Mutex
	endpoints         []*endpointState
	maxAttempts       int
	failureResetAfter time.Duration
	rng               *rand.Rand
}

// Dialer lets tests substitute a fake endpoint dialer; the production
// dialer uses rpc.DialContext.
type Dialer func(ctx context.Context, url string) (*rpc.Client, error)

var defaultDialer Dialer = func(ctx context.Context, url string) (*rpc.Client, error) {
	return rpc.DialContext(ctx, url)
}

// Config configures the pool's retry and failure-reset policy.
type Config struct {
	Endpoints         []Endpoint
	MaxAttempts       int
	FailureResetAfter time.Duration
}

// New dials every configured endpoint and returns a ready pool. A single
// endpoint failing to dial at startup is fatal (spec §7: FatalProcess —
// the pool can't be constructed).
func New(ctx context.Context, cfg Config, dial Dialer) (*Pool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("rpcpool: no endpoints configured")
	}
	if dial == nil {
		dial = defaultDialer
	}
	p := &Pool{
		maxAttempts:       cfg.MaxAttempts,
		failureResetAfter: cfg.FailureResetAfter,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = len(cfg.Endpoints) * 2
	}
	for _, e := range cfg.Endpoints {
		c, err := dial(ctx, e.URL)
		if err != nil {
			return nil, errs.NewFatalProcess("rpcpool.New", fmt.Errorf("dial %s: %w", e.URL, err))
		}
		p.endpoints = append(p.endpoints, &endpointState{cfg: e, client: c})
	}
	return p, nil
}

// pick selects a weighted-random endpoint among those whose failure count
// is below their configured max_retries, applying the wall-clock reset
// first.
func (p *Pool) pick(exclude map[*endpointState]bool) (*endpointState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var candidates []*endpointState
	var totalWeight int
	for _, ep := range p.endpoints {
		if ep.failureCount > 0 && !ep.firstFailedAt.IsZero() && p.failureResetAfter > 0 && now.Sub(ep.firstFailedAt) >= p.failureResetAfter {
			ep.failureCount = 0
			ep.firstFailedAt = time.Time{}
		}
		if exclude[ep] {
			continue
		}
		if ep.failureCount >= ep.cfg.MaxRetries && ep.cfg.MaxRetries > 0 {
			continue
		}
		w := ep.cfg.Weight
		if w <= 0 {
			w = 1
		}
		candidates = append(candidates, ep)
		totalWeight += w
	}
	if len(candidates) == 0 {
		return nil, errors.New("rpcpool: no healthy endpoints available")
	}
	r := p.rng.Intn(totalWeight)
	for _, ep := range candidates {
		w := ep.cfg.Weight
		if w <= 0 {
			w = 1
		}
		if r < w {
			return ep, nil
		}
		r -= w
	}
	return candidates[len(candidates)-1], nil
}

func (p *Pool) recordSuccess(ep *endpointState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.failureCount = 0
	ep.firstFailedAt = time.Time{}
}

func (p *Pool) recordFailure(ep *endpointState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ep.failureCount == 0 {
		ep.firstFailedAt = time.Now()
	}
	ep.failureCount++
}

// call runs fn against a succession of endpoints until it succeeds or the
// global max_attempts is exhausted.
func (p *Pool) call(ctx context.Context, fn func(*rpc.Client) error) error {
	excluded := map[*endpointState]bool{}
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		ep, err := p.pick(excluded)
		if err != nil {
			if lastErr != nil {
				return errs.NewTransient("rpcpool.call", fmt.Errorf("%v (last: %w)", err, lastErr))
			}
			return errs.NewTransient("rpcpool.call", err)
		}
		if err := fn(ep.client); err != nil {
			p.recordFailure(ep)
			excluded[ep] = true
			lastErr = err
			continue
		}
		p.recordSuccess(ep)
		return nil
	}
	return errs.NewTransient("rpcpool.call", fmt.Errorf("exhausted %d attempts: %w", p.maxAttempts, lastErr))
}

// View implements ViewContract by fanning out a "view" RPC method call.
func (p *Pool) View(ctx context.Context, contract, method string, args ...interface{}) ([]byte, error) {
	var result []byte
	err := p.call(ctx, func(c *rpc.Client) error {
		return c.CallContext(ctx, &result, "query", map[string]interface{}{
			"request_type": "call_function",
			"account_id":   contract,
			"method_name":  method,
			"args":         args,
		})
	})
	return result, err
}

// AccountBalance implements AccountInfo.
func (p *Pool) AccountBalance(ctx context.Context, account string) (*big.Int, error) {
	var balance string
	err := p.call(ctx, func(c *rpc.Client) error {
		return c.CallContext(ctx, &balance, "query", map[string]interface{}{
			"request_type": "view_account",
			"account_id":   account,
		})
	})
	if err != nil {
		return nil, err
	}
	amt, ok := new(big.Int).SetString(balance, 10)
	if !ok {
		return nil, errs.NewDomain("rpcpool.AccountBalance", fmt.Errorf("malformed balance %q", balance))
	}
	return amt, nil
}

// GasPrice implements GasInfo, delegated entirely to the RPC implementation.
func (p *Pool) GasPrice(ctx context.Context) (*big.Int, error) {
	var price string
	err := p.call(ctx, func(c *rpc.Client) error {
		return c.CallContext(ctx, &price, "gas_price", nil)
	})
	if err != nil {
		return nil, err
	}
	amt, ok := new(big.Int).SetString(price, 10)
	if !ok {
		return big.NewInt(0), nil
	}
	return amt, nil
}

// Send implements SendTx.
func (p *Pool) Send(ctx context.Context, signer Signer, contract, method string, deposit *big.Int, args ...interface{}) (TxHandle, error) {
	var txHashHex string
	err := p.call(ctx, func(c *rpc.Client) error {
		return c.CallContext(ctx, &txHashHex, "broadcast_tx_async", map[string]interface{}{
			"signer_id":   signer.AccountID(),
			"receiver_id": contract,
			"method_name": method,
			"args":        args,
			"deposit":     deposit.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return &poolTxHandle{pool: p, hash: common.HexToHash(txHashHex)}, nil
}

type poolTxHandle struct {
	pool *Pool
	hash common.Hash
}

func (h *poolTxHandle) Hash() common.Hash { return h.hash }

func (h *poolTxHandle) WaitExecuted(ctx context.Context) (Outcome, error) {
	var status struct {
		SuccessValue string `json:"SuccessValue"`
		Failure      *struct {
			ErrorMessage string `json:"error_message"`
		} `json:"Failure"`
	}
	err := h.pool.call(ctx, func(c *rpc.Client) error {
		return c.CallContext(ctx, &status, "tx", h.hash.Hex())
	})
	if err != nil {
		return Outcome{Hash: h.hash}, err
	}
	return Outcome{Hash: h.hash, Success: status.Failure == nil}, nil
}

func (h *poolTxHandle) WaitSuccess(ctx context.Context) (Outcome, error) {
	outcome, err := h.WaitExecuted(ctx)
	if err != nil {
		return outcome, err
	}
	if !outcome.Success {
		return outcome, errs.NewDomain("rpcpool.WaitSuccess", fmt.Errorf("transaction %s reverted", h.hash.Hex()))
	}
	return outcome, nil
}

// Close releases every dialed endpoint's underlying client.
func (p *Pool) Close() {
	for _, ep := range p.endpoints {
		ep.client.Close()
	}
}

// Stats snapshots the current per-endpoint failure counters, for
// diagnostics.
func (p *Pool) Stats() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.endpoints))
	for _, ep := range p.endpoints {
		out[ep.cfg.URL] = ep.failureCount
	}
	return out
}
