package rates

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/ammtrader/ammtrader/internal/errs"
)

// TimeRange bounds a history query, both ends inclusive.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// VarianceEntry is one row of the volatility ranking (spec §4.4).
type VarianceEntry struct {
	Base     string
	Variance float64
}

// Store is the C5 query layer over persisted TokenRate rows.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an already-migrated database (the recorder owns migration
// since it is constructed first in the wiring order).
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Latest returns the most recent TokenRate for (base, quote), or nil if none
// exists.
func (s *Store) Latest(ctx context.Context, base, quote string) (*TokenRate, error) {
	var row tokenRateRow
	err := s.db.WithContext(ctx).
		Where("base = ? AND quote = ?", base, quote).
		Order("timestamp desc").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewTransient("rates.Latest", err)
	}
	tr, err := fromRow(row)
	if err != nil {
		return nil, errs.NewDomain("rates.Latest", err)
	}
	return &tr, nil
}

// History returns rates for (base, quote) within the range, ascending by
// timestamp, optionally capped at limit (0 = unbounded).
func (s *Store) History(ctx context.Context, base, quote string, tr TimeRange, limit int) ([]TokenRate, error) {
	q := s.db.WithContext(ctx).
		Where("base = ? AND quote = ? AND timestamp BETWEEN ? AND ?", base, quote, tr.From, tr.To).
		Order("timestamp asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []tokenRateRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, errs.NewTransient("rates.History", err)
	}
	return fromRows(rows)
}

// HistoryBatch is the single-query multi-token form used by the forecast
// path (spec §4.4): one round trip, results grouped by base and each
// group's rates in strictly non-decreasing timestamp order.
func (s *Store) HistoryBatch(ctx context.Context, bases []string, quote string, tr TimeRange) (map[string][]TokenRate, error) {
	if len(bases) == 0 {
		return map[string][]TokenRate{}, nil
	}
	var rows []tokenRateRow
	if err := s.db.WithContext(ctx).
		Where("base IN ? AND quote = ? AND timestamp BETWEEN ? AND ?", bases, quote, tr.From, tr.To).
		Order("base asc, timestamp asc").
		Find(&rows).Error; err != nil {
		return nil, errs.NewTransient("rates.HistoryBatch", err)
	}
	all, err := fromRows(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]TokenRate, len(bases))
	for _, tr := range all {
		out[tr.Base] = append(out[tr.Base], tr)
	}
	return out, nil
}

// VolatilityRanking computes the variance of each base's rate series in
// the window (quote fixed), restricted to bases whose minimum rate in the
// window is strictly positive, ordered by descending variance.
func (s *Store) VolatilityRanking(ctx context.Context, tr TimeRange, quote string) ([]VarianceEntry, error) {
	var rows []tokenRateRow
	if err := s.db.WithContext(ctx).
		Where("quote = ? AND timestamp BETWEEN ? AND ?", quote, tr.From, tr.To).
		Order("base asc, timestamp asc").
		Find(&rows).Error; err != nil {
		return nil, errs.NewTransient("rates.VolatilityRanking", err)
	}
	all, err := fromRows(rows)
	if err != nil {
		return nil, err
	}

	byBase := map[string][]float64{}
	order := []string{}
	for _, tr := range all {
		f, _ := tr.Rate.Float64()
		if _, seen := byBase[tr.Base]; !seen {
			order = append(order, tr.Base)
		}
		byBase[tr.Base] = append(byBase[tr.Base], f)
	}

	var out []VarianceEntry
	for _, base := range order {
		series := byBase[base]
		if minOf(series) <= 0 {
			continue
		}
		out = append(out, VarianceEntry{Base: base, Variance: variance(series)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Variance > out[j].Variance })
	return out, nil
}

// Cleanup removes rows older than the given number of days.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) error {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	if err := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&tokenRateRow{}).Error; err != nil {
		return errs.NewTransient("rates.Cleanup", fmt.Errorf("cleanup: %w", err))
	}
	return nil
}

func fromRows(rows []tokenRateRow) ([]TokenRate, error) {
	out := make([]TokenRate, 0, len(rows))
	for _, row := range rows {
		tr, err := fromRow(row)
		if err != nil {
			return nil, errs.NewDomain("rates.fromRows", err)
		}
		out = append(out, tr)
	}
	return out, nil
}

func minOf(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	m := series[0]
	for _, v := range series[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func variance(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	mean := sum / float64(len(series))
	var sq float64
	for _, v := range series {
		d := v - mean
		sq += d * d
	}
	if len(series) < 2 {
		return 0
	}
	return math.Max(sq/float64(len(series)), 0)
}
