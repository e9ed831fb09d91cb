package rates

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"

	"github.com/ammtrader/ammtrader/internal/errs"
	"github.com/ammtrader/ammtrader/internal/pathgraph"
)

// ReserveProvider exposes the pool reserves the swap simulator needs,
// direction-aware (reserveIn corresponds to edge.In, reserveOut to
// edge.Out), plus the native-side reserve used by the spot correction
// formula of §4.5.
type ReserveProvider interface {
	Reserves(ctx context.Context, poolID, in, out string) (reserveIn, reserveOut *big.Int, feeBps int, err error)
	NativeReserve(ctx context.Context, poolID string) (*big.Int, error)
}

// Pair is one (base, quote) pair the recorder tracks.
type Pair struct {
	Base  string
	Quote string
}

// Recorder computes and persists exchange rates on each record tick
// (spec §4.3/C4).
type Recorder struct {
	db              *gorm.DB
	graph           func() *pathgraph.Graph
	reserves        ReserveProvider
	calcInputNative *big.Rat
	retentionDays   int
}

// Config configures the recorder's simulated swap size and retention.
type Config struct {
	CalcInputNative *big.Rat
	RetentionDays   int
}

// New constructs a Recorder. graph is called fresh on every tick since the
// underlying pool reserves mutate between ticks.
func New(db *gorm.DB, graph func() *pathgraph.Graph, reserves ReserveProvider, cfg Config) (*Recorder, error) {
	if cfg.CalcInputNative == nil || cfg.CalcInputNative.Sign() <= 0 {
		cfg.CalcInputNative = big.NewRat(1, 1)
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 365
	}
	if err := db.AutoMigrate(&tokenRateRow{}); err != nil {
		return nil, errs.NewFatalProcess("rates.New", fmt.Errorf("automigrate: %w", err))
	}
	return &Recorder{db: db, graph: graph, reserves: reserves, calcInputNative: cfg.CalcInputNative, retentionDays: cfg.RetentionDays}, nil
}

// RecordTick computes and writes one TokenRate per pair with base != quote,
// skipping (not failing the tick for) individual pairs with no route.
func (r *Recorder) RecordTick(ctx context.Context, pairs []Pair) error {
	g := r.graph()
	now := time.Now()
	var skipped int

	for _, pair := range pairs {
		if pair.Base == pair.Quote {
			continue
		}
		sp := g.UpdateGraph(pair.Quote)
		path, err := sp.GetPath(pair.Base)
		if err != nil {
			skipped++
			continue
		}

		amountOut, err := SimulateSwap(ctx, path, r.calcInputNative, r.reserves)
		if err != nil {
			skipped++
			continue
		}
		if amountOut.Sign() <= 0 {
			skipped++
			continue
		}

		rate := new(big.Rat).Quo(new(big.Rat).SetInt(amountOut), r.calcInputNative)
		tr := TokenRate{
			Base:            pair.Base,
			Quote:           pair.Quote,
			Rate:            rate,
			Timestamp:       now,
			CalcInputNative: new(big.Rat).Set(r.calcInputNative),
			SwapPath:        path,
		}
		row, err := toRow(tr)
		if err != nil {
			skipped++
			continue
		}
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			skipped++
			continue
		}
	}

	if len(pairs) > 0 && skipped == len(pairs) {
		return errs.NewFatalTick("rates.RecordTick", fmt.Errorf("all %d pairs failed to price", len(pairs)))
	}
	return nil
}

// Cleanup removes rows older than the configured retention window.
func (r *Recorder) Cleanup(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -r.retentionDays)
	if err := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&tokenRateRow{}).Error; err != nil {
		return errs.NewTransient("rates.Cleanup", err)
	}
	return nil
}

// SimulateSwap applies the constant-product-with-fee formula along path,
// starting from amountIn whole native-token units, returning the final
// smallest-unit output amount.
func SimulateSwap(ctx context.Context, path []pathgraph.Edge, amountIn *big.Rat, reserves ReserveProvider) (*big.Int, error) {
	if len(path) == 0 {
		return nil, errs.NewDomain("rates.SimulateSwap", fmt.Errorf("empty swap path"))
	}
	// amountIn is expressed in whole native units but the first leg's
	// reserves are in smallest units; scale by 10^24 (native decimals).
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)
	scaled := new(big.Rat).Mul(amountIn, new(big.Rat).SetInt(scale))
	amount := new(big.Int).Quo(scaled.Num(), scaled.Denom())

	for _, edge := range path {
		reserveIn, reserveOut, feeBps, err := reserves.Reserves(ctx, edge.PoolID, edge.In, edge.Out)
		if err != nil {
			return nil, errs.NewTransient("rates.SimulateSwap", err)
		}
		if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
			return nil, errs.NewDomain("rates.SimulateSwap", fmt.Errorf("empty reserves for pool %s", edge.PoolID))
		}
		amount = constantProductOut(amount, reserveIn, reserveOut, feeBps)
		if amount.Sign() <= 0 {
			return big.NewInt(0), nil
		}
	}
	return amount, nil
}

// constantProductOut applies the standard x*y=k swap formula with a
// feeBps/10000 fee taken from the input leg.
func constantProductOut(amountIn, reserveIn, reserveOut *big.Int, feeBps int) *big.Int {
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(10000-feeBps)))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(10000)), amountInWithFee)
	if denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(numerator, denominator)
}
