// Package period implements the evaluation-period state machine (spec
// §4.11/C11) and the harvest check (spec §4.12), the single point of
// mutable shared truth updated only by the scheduler's trade tick (spec
// §3.3 "Ownership and lifecycle").
package period

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ammtrader/ammtrader/internal/errs"
)

// Status is a period's per-period state (spec §4.11).
type Status string

const (
	StatusActive  Status = "active"
	StatusClosing Status = "closing"
	StatusClosed  Status = "closed"
)

// EvaluationPeriod is the spec §3.3 entity.
type EvaluationPeriod struct {
	PeriodID       string `gorm:"column:period_id;primaryKey"`
	StartTime      time.Time `gorm:"column:start_time"`
	InitialValue   string `gorm:"column:initial_value"`
	SelectedTokens string `gorm:"column:selected_tokens"` // comma-joined, nullable
	Status         Status `gorm:"column:status"`
}

func (EvaluationPeriod) TableName() string { return "evaluation_periods" }

// FSM drives period lifecycle transitions. Config and DB access are
// injected so the scheduler is the only writer (spec §5 "single-writer").
type FSM struct {
	db              *gorm.DB
	evaluationDays  int
}

// Config configures the FSM's period length.
type Config struct {
	EvaluationDays int
}

// New constructs an FSM, migrating its table.
func New(db *gorm.DB, cfg Config) (*FSM, error) {
	if cfg.EvaluationDays <= 0 {
		cfg.EvaluationDays = 30
	}
	if err := db.AutoMigrate(&EvaluationPeriod{}); err != nil {
		return nil, errs.NewFatalProcess("period.New", fmt.Errorf("automigrate: %w", err))
	}
	return &FSM{db: db, evaluationDays: cfg.EvaluationDays}, nil
}

// TransactionCounter reports how many trade_transactions rows exist for a
// period, used to distinguish "period started but no trade yet" from a
// genuinely mid-period no-op (spec §4.11 step 2).
type TransactionCounter interface {
	CountForPeriod(ctx context.Context, periodID string) (int64, error)
}

// Decision is the result of one trade-tick FSM evaluation.
type Decision struct {
	PeriodID       string
	IsNew          bool
	ShouldLiquidate bool
	ShouldStop     bool // true => caller must return empty period id, stop further trade ticks
	PriorPeriod    *EvaluationPeriod
}

// Evaluate runs the spec §4.11 transitions for one trade tick.
func (f *FSM) Evaluate(ctx context.Context, availableNative *big.Rat, txCounter TransactionCounter, tradingEnabled bool) (Decision, error) {
	latest, err := f.latest(ctx)
	if err != nil {
		return Decision{}, errs.NewFatalTick("period.Evaluate", err)
	}

	if latest == nil {
		p, err := f.create(ctx, availableNative)
		if err != nil {
			return Decision{}, err
		}
		return Decision{PeriodID: p.PeriodID, IsNew: true}, nil
	}

	age := time.Since(latest.StartTime)
	if age < time.Duration(f.evaluationDays)*24*time.Hour {
		if !tradingEnabled {
			// trading was disabled mid-period: liquidate and stop now rather
			// than waiting for maturity (mirrors the original's separate
			// trade_enabled check ahead of its maturity check).
			return Decision{PeriodID: latest.PeriodID, ShouldLiquidate: true, ShouldStop: true, PriorPeriod: latest}, nil
		}
		count, err := txCounter.CountForPeriod(ctx, latest.PeriodID)
		if err != nil {
			return Decision{}, errs.NewFatalTick("period.Evaluate", err)
		}
		return Decision{PeriodID: latest.PeriodID, IsNew: count == 0, PriorPeriod: latest}, nil
	}

	return Decision{PeriodID: latest.PeriodID, ShouldLiquidate: true, ShouldStop: !tradingEnabled, PriorPeriod: latest}, nil
}

// Close transitions a period Active -> Closing -> Closed, recording the
// realized liquidation value, and logs (initial, final, delta, %).
func (f *FSM) Close(ctx context.Context, p *EvaluationPeriod, realizedNative *big.Rat, log func(initial, final, delta, percent *big.Rat)) error {
	if err := f.setStatus(ctx, p.PeriodID, StatusClosing); err != nil {
		return err
	}

	initial, ok := new(big.Rat).SetString(p.InitialValue)
	if !ok {
		initial = new(big.Rat)
	}
	delta := new(big.Rat).Sub(realizedNative, initial)
	var percent big.Rat
	if initial.Sign() != 0 {
		percent.Quo(delta, initial)
		percent.Mul(&percent, big.NewRat(100, 1))
	}
	if log != nil {
		log(initial, realizedNative, delta, &percent)
	}

	return f.setStatus(ctx, p.PeriodID, StatusClosed)
}

// StartNew creates the next Active period from a liquidated balance.
func (f *FSM) StartNew(ctx context.Context, initialValue *big.Rat) (*EvaluationPeriod, error) {
	return f.create(ctx, initialValue)
}

func (f *FSM) create(ctx context.Context, initialValue *big.Rat) (*EvaluationPeriod, error) {
	p := &EvaluationPeriod{
		PeriodID:     uuid.NewString(),
		StartTime:    time.Now(),
		InitialValue: initialValue.RatString(),
		Status:       StatusActive,
	}
	if err := f.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, errs.NewFatalTick("period.create", err)
	}
	return p, nil
}

func (f *FSM) setStatus(ctx context.Context, periodID string, status Status) error {
	if err := f.db.WithContext(ctx).Model(&EvaluationPeriod{}).Where("period_id = ?", periodID).Update("status", status).Error; err != nil {
		return errs.NewFatalTick("period.setStatus", err)
	}
	return nil
}

// latest returns the most recently started period, or nil if none exists
// (spec §4.11 "no latest period" transition).
func (f *FSM) latest(ctx context.Context) (*EvaluationPeriod, error) {
	var p EvaluationPeriod
	err := f.db.WithContext(ctx).Order("start_time desc").First(&p).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// HarvestCheck holds the harvest configuration (spec §4.12).
type HarvestCheck struct {
	Account            string
	ReserveAmount       *big.Rat
	BalanceMultiplier   float64
	Interval            time.Duration
	lastRun             time.Time
}

// NewHarvestCheck applies the default 128x multiplier when unset.
func NewHarvestCheck(account string, reserveAmount *big.Rat, multiplier float64, interval time.Duration) *HarvestCheck {
	if multiplier <= 0 {
		multiplier = 128
	}
	return &HarvestCheck{Account: account, ReserveAmount: reserveAmount, BalanceMultiplier: multiplier, Interval: interval}
}

// ShouldHarvest reports whether a harvest transfer is due, and the excess
// amount to transfer (balance minus the reserve), per spec §4.12. Returns
// false if the account isn't configured, the interval hasn't elapsed, or
// the balance doesn't exceed reserve*multiplier.
func (h *HarvestCheck) ShouldHarvest(now time.Time, balance *big.Rat) (*big.Rat, bool) {
	if h.Account == "" {
		return nil, false
	}
	if !h.lastRun.IsZero() && now.Sub(h.lastRun) < h.Interval {
		return nil, false
	}
	threshold := new(big.Rat).Mul(h.ReserveAmount, new(big.Rat).SetFloat64(h.BalanceMultiplier))
	if balance.Cmp(threshold) <= 0 {
		return nil, false
	}
	excess := new(big.Rat).Sub(balance, h.ReserveAmount)
	return excess, true
}

// MarkHarvested records that a harvest just ran, for the interval check.
func (h *HarvestCheck) MarkHarvested(now time.Time) { h.lastRun = now }
