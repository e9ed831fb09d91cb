// Package selector implements the token-universe selector (spec §4.9/C9):
// volatility ranking intersected with round-trip swap reachability.
package selector

import (
	"context"

	"github.com/ammtrader/ammtrader/internal/pathgraph"
	"github.com/ammtrader/ammtrader/internal/rates"
)

// RankingSource is the subset of the rate store the selector needs.
type RankingSource interface {
	VolatilityRanking(ctx context.Context, tr rates.TimeRange, quote string) ([]rates.VarianceEntry, error)
}

// Config configures the selector's quota and native token. The ranking
// window is Select's separate window argument; Select does not read
// VolatilityDays.
type Config struct {
	VolatilityDays int
	TopTokens      int
	Native         string
}

// Select implements spec §4.9: retrieve the volatility ranking, filter to
// tokens reachable both from and to the native token, and keep the first
// TopTokens that pass in original (descending-volatility) order.
func Select(ctx context.Context, source RankingSource, graph *pathgraph.Graph, window rates.TimeRange, cfg Config) ([]string, bool, error) {
	if cfg.TopTokens <= 0 {
		cfg.TopTokens = 10
	}

	ranking, err := source.VolatilityRanking(ctx, window, cfg.Native)
	if err != nil {
		return nil, false, err
	}

	buyable := graph.UpdateGraph(cfg.Native)

	var selected []string
	exhausted := true
	for _, entry := range ranking {
		if len(selected) >= cfg.TopTokens {
			exhausted = false
			break
		}
		if !buyable.Reachable(entry.Base) {
			continue
		}
		sellable := graph.UpdateGraph(entry.Base)
		if !sellable.Reachable(cfg.Native) {
			continue
		}
		selected = append(selected, entry.Base)
	}

	// exhausted reports whether the ranking ran out before the quota was
	// filled, so the caller can warn per spec §4.9 step 3.
	return selected, len(selected) < cfg.TopTokens && exhausted, nil
}
