// Package rates implements the rate recorder (spec §4.3/C4) and rate store
// (spec §4.4-4.5/C5): persisting, querying and spot-correcting exchange
// rates for known trading pairs, backed by GORM/MySQL in the teacher's own
// persistence style (internal/db/transaction_recorder.go).
package rates

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ammtrader/ammtrader/internal/pathgraph"
)

// TokenRate is the spec §3.2 entity: a recorded exchange rate plus the
// input amount and route used to derive it.
type TokenRate struct {
	Base            string
	Quote           string
	Rate            *big.Rat
	Timestamp       time.Time
	CalcInputNative *big.Rat
	SwapPath        []pathgraph.Edge // nil for legacy records
}

// tokenRateRow is the GORM-mapped persistence shape; TokenRate stays
// pure-domain (big.Rat, time.Time) and is converted at the store boundary.
type tokenRateRow struct {
	ID              uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Base            string `gorm:"column:base;index:idx_base_quote"`
	Quote           string `gorm:"column:quote;index:idx_base_quote"`
	Rate            string `gorm:"column:rate"`
	Timestamp       time.Time `gorm:"column:timestamp;index"`
	CalcInputNative string `gorm:"column:calc_input_native"`
	SwapPath        string `gorm:"column:swap_path"` // JSON, empty string means null
}

func (tokenRateRow) TableName() string { return "token_rates" }

func toRow(tr TokenRate) (tokenRateRow, error) {
	row := tokenRateRow{
		Base:            tr.Base,
		Quote:           tr.Quote,
		Rate:            tr.Rate.RatString(),
		Timestamp:       tr.Timestamp,
		CalcInputNative: tr.CalcInputNative.RatString(),
	}
	if tr.SwapPath != nil {
		b, err := json.Marshal(tr.SwapPath)
		if err != nil {
			return tokenRateRow{}, err
		}
		row.SwapPath = string(b)
	}
	return row, nil
}

func fromRow(row tokenRateRow) (TokenRate, error) {
	rate, ok := new(big.Rat).SetString(row.Rate)
	if !ok {
		rate = new(big.Rat)
	}
	calcInput, ok := new(big.Rat).SetString(row.CalcInputNative)
	if !ok {
		calcInput = new(big.Rat)
	}
	tr := TokenRate{
		Base:            row.Base,
		Quote:           row.Quote,
		Rate:            rate,
		Timestamp:       row.Timestamp,
		CalcInputNative: calcInput,
	}
	if row.SwapPath != "" {
		var path []pathgraph.Edge
		if err := json.Unmarshal([]byte(row.SwapPath), &path); err != nil {
			return TokenRate{}, err
		}
		tr.SwapPath = path
	}
	return tr, nil
}
