// Package pools implements the pool registry (spec §4.2/C3): a snapshot of
// AMM pools kept fresh by bounded-parallel reserve refreshes and pruned to
// the most recent N rolling versions, backed by GORM/MySQL following the
// teacher's own persistence pattern (internal/db/transaction_recorder.go).
package pools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ammtrader/ammtrader/internal/errs"
)

// Pool is the immutable-identity snapshot of one AMM pool (spec §3.2).
type Pool struct {
	ID        string `gorm:"column:pool_id;primaryKey"`
	TokenA    string `gorm:"column:token_a"`
	TokenB    string `gorm:"column:token_b"`
	ReserveA  string `gorm:"column:reserve_a"`
	ReserveB  string `gorm:"column:reserve_b"`
	FeeBps    int    `gorm:"column:fee_bps"`
	Version   int64  `gorm:"column:version;primaryKey"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Pool) TableName() string { return "pool_info" }

// Tokens returns the pool's two-element token pair.
func (p Pool) Tokens() [2]string { return [2]string{p.TokenA, p.TokenB} }

// ChainReader is the subset of the RPC capability the registry needs: it
// lists known pool ids and fetches reserves for one pool at a time.
type ChainReader interface {
	ListPoolIDs(ctx context.Context) ([]string, error)
	PoolReserves(ctx context.Context, poolID string) (tokenA, tokenB string, reserveA, reserveB string, feeBps int, err error)
}

// Registry keeps the latest snapshot per pool id, refreshing from a
// ChainReader in bounded-parallel batches and retaining a configurable
// number of rolling versions per pool.
type Registry struct {
	db              *gorm.DB
	reader          ChainReader
	concurrency     int
	retentionCount  int
	mu              sync.Mutex
	nextVersion     int64
}

// Config configures refresh concurrency and version retention.
type Config struct {
	Concurrency    int
	RetentionCount int
}

// New constructs a Registry and ensures its tables exist.
func New(db *gorm.DB, reader ChainReader, cfg Config) (*Registry, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.RetentionCount <= 0 {
		cfg.RetentionCount = 3
	}
	if err := db.AutoMigrate(&Pool{}); err != nil {
		return nil, errs.NewFatalProcess("pools.New", fmt.Errorf("automigrate: %w", err))
	}
	return &Registry{db: db, reader: reader, concurrency: cfg.Concurrency, retentionCount: cfg.RetentionCount}, nil
}

// Refresh fetches the current pool id list then reserves in bounded
// parallel batches, writing one new version row per pool and pruning old
// versions beyond the retention count.
func (r *Registry) Refresh(ctx context.Context) error {
	ids, err := r.reader.ListPoolIDs(ctx)
	if err != nil {
		return errs.NewTransient("pools.Refresh.ListPoolIDs", err)
	}

	r.mu.Lock()
	r.nextVersion++
	version := r.nextVersion
	r.mu.Unlock()

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var skipped []error

	for _, id := range ids {
		id := id
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			tokenA, tokenB, reserveA, reserveB, feeBps, err := r.reader.PoolReserves(ctx, id)
			if err != nil {
				mu.Lock()
				skipped = append(skipped, errs.NewSkipped("pool "+id, err))
				mu.Unlock()
				return
			}
			p := Pool{
				ID:        id,
				TokenA:    tokenA,
				TokenB:    tokenB,
				ReserveA:  reserveA,
				ReserveB:  reserveB,
				FeeBps:    feeBps,
				Version:   version,
				UpdatedAt: time.Now(),
			}
			if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
				mu.Lock()
				skipped = append(skipped, errs.NewSkipped("pool "+id, fmt.Errorf("write: %w", err)))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := r.prune(ctx, version); err != nil {
		return err
	}
	if len(ids) > 0 && len(skipped) == len(ids) {
		return errs.NewFatalTick("pools.Refresh", fmt.Errorf("all %d pools failed to refresh", len(ids)))
	}
	return nil
}

// prune keeps only the retentionCount most recent versions of every pool id.
func (r *Registry) prune(ctx context.Context, currentVersion int64) error {
	threshold := currentVersion - int64(r.retentionCount) + 1
	if threshold <= 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("version < ?", threshold).Delete(&Pool{}).Error; err != nil {
		return errs.NewTransient("pools.prune", err)
	}
	return nil
}

// Latest returns the most recently written snapshot of every pool.
func (r *Registry) Latest(ctx context.Context) ([]Pool, error) {
	var rows []Pool
	if err := r.db.WithContext(ctx).
		Order("pool_id, version desc").
		Find(&rows).Error; err != nil {
		return nil, errs.NewTransient("pools.Latest", err)
	}
	return latestPerPool(rows), nil
}

// latestPerPool collapses a version-descending result set to one row per
// pool id, keeping the highest version seen for each.
func latestPerPool(rows []Pool) []Pool {
	best := map[string]Pool{}
	for _, row := range rows {
		existing, ok := best[row.ID]
		if !ok || row.Version > existing.Version {
			best[row.ID] = row
		}
	}
	out := make([]Pool, 0, len(best))
	for _, p := range best {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
