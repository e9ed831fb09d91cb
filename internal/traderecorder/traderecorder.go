// Package traderecorder persists every executed swap keyed by period and
// batch (spec §4.12/C12), plus the predictions table and a rolling MAPE
// tracker (SPEC_FULL MODULE ADDITIONS), following the teacher's own GORM
// persistence pattern (internal/db/transaction_recorder.go).
package traderecorder

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ammtrader/ammtrader/internal/errs"
)

// TradeTransaction is the spec §3.3 entity.
type TradeTransaction struct {
	ID         uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	BatchID    string `gorm:"column:batch_id;index"`
	PeriodID   string `gorm:"column:period_id;index"`
	FromToken  string `gorm:"column:from_token"`
	ToToken    string `gorm:"column:to_token"`
	AmountIn   string `gorm:"column:amount_in"`
	AmountOut  string `gorm:"column:amount_out"`
	TxHash     string `gorm:"column:tx_hash"`
	Timestamp  time.Time `gorm:"column:timestamp"`
}

func (TradeTransaction) TableName() string { return "trade_transactions" }

// Prediction is the spec §3.3 entity, joined against recorded rates to
// compute rolling MAPE.
type Prediction struct {
	ID             uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	PeriodID       string `gorm:"column:period_id;index"`
	Token          string `gorm:"column:token;index"`
	PredictedPrice string `gorm:"column:predicted_price"`
	HorizonHours   int    `gorm:"column:horizon_hours"`
	RecordedAt     time.Time `gorm:"column:recorded_at"`
}

func (Prediction) TableName() string { return "predictions" }

// Recorder writes trade transactions and predictions and derives batch ids.
type Recorder struct {
	db *gorm.DB
}

// New constructs a Recorder, migrating its tables.
func New(db *gorm.DB) (*Recorder, error) {
	if err := db.AutoMigrate(&TradeTransaction{}, &Prediction{}); err != nil {
		return nil, errs.NewFatalProcess("traderecorder.New", fmt.Errorf("automigrate: %w", err))
	}
	return &Recorder{db: db}, nil
}

// NewBatchID generates a batch id for one rebalance cycle.
func NewBatchID() string { return uuid.NewString() }

// RecordSwap persists one executed swap under the given batch/period.
func (r *Recorder) RecordSwap(ctx context.Context, batchID, periodID, fromToken, toToken string, amountIn, amountOut *big.Int, txHash string) error {
	tt := TradeTransaction{
		BatchID:   batchID,
		PeriodID:  periodID,
		FromToken: fromToken,
		ToToken:   toToken,
		AmountIn:  amountIn.String(),
		AmountOut: amountOut.String(),
		TxHash:    txHash,
		Timestamp: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&tt).Error; err != nil {
		return errs.NewTransient("traderecorder.RecordSwap", err)
	}
	return nil
}

// RecordHarvest persists a harvest transfer as a trade_transactions row
// from native to the harvest account (SPEC_FULL "Harvest ledger").
func (r *Recorder) RecordHarvest(ctx context.Context, periodID, harvestAccount string, amount *big.Int, txHash string) error {
	return r.RecordSwap(ctx, NewBatchID(), periodID, "native", harvestAccount, amount, amount, txHash)
}

// ByBatch retrieves every swap issued by a single rebalance cycle.
func (r *Recorder) ByBatch(ctx context.Context, batchID string) ([]TradeTransaction, error) {
	var rows []TradeTransaction
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, errs.NewTransient("traderecorder.ByBatch", err)
	}
	return rows, nil
}

// CountForPeriod implements period.TransactionCounter: the number of
// trade_transactions rows recorded under periodID, which the FSM uses to
// tell a genuinely new period from one that already traded (spec §4.11).
func (r *Recorder) CountForPeriod(ctx context.Context, periodID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&TradeTransaction{}).Where("period_id = ?", periodID).Count(&count).Error; err != nil {
		return 0, errs.NewTransient("traderecorder.CountForPeriod", err)
	}
	return count, nil
}

// RecordPrediction persists a forecast made when a trade decision is taken.
func (r *Recorder) RecordPrediction(ctx context.Context, periodID, token string, predictedPrice *big.Rat, horizonHours int) error {
	p := Prediction{
		PeriodID:       periodID,
		Token:          token,
		PredictedPrice: predictedPrice.RatString(),
		HorizonHours:   horizonHours,
		RecordedAt:     time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return errs.NewTransient("traderecorder.RecordPrediction", err)
	}
	return nil
}

// ObservedPrice pairs a prediction with the price later observed at its
// horizon, the input to MAPE.
type ObservedPrice struct {
	Predicted float64
	Observed  float64
}

// RollingMAPE computes mean absolute percentage error across observations,
// the Glossary's "Rolling MAPE → confidence" input. Observations with a
// zero observed price are excluded (undefined percentage error).
func RollingMAPE(observations []ObservedPrice) float64 {
	var sum float64
	var count int
	for _, o := range observations {
		if o.Observed == 0 {
			continue
		}
		sum += math.Abs((o.Observed - o.Predicted) / o.Observed)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// MAPEToConfidence maps a rolling MAPE into [0,1], 0 MAPE meaning full
// confidence and mapeCeiling or above meaning none.
func MAPEToConfidence(mape, mapeCeiling float64) float64 {
	if mapeCeiling <= 0 {
		return 0
	}
	c := 1 - mape/mapeCeiling
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
