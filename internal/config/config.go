// Package config implements the trading-parameter precedence chain of
// spec §5/§6: runtime overrides → database → environment → TOML →
// defaults. It is distinct from the teacher's configs/config.yml, which
// remains the contract-client wiring (pool/router addresses, ABI paths)
// and is loaded separately.
package config

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/ammtrader/ammtrader/internal/errs"
)

// Settings is the full set of trading-parameter keys the core consumes
// (spec §6, partial enumeration in the original, complete here).
type Settings struct {
	TradeEnabled               bool
	TradeInitialInvestment     float64
	TradeTopTokens             int
	TradeVolatilityDays        int
	TradeEvaluationDays        int
	TradePriceHistoryDays      int
	TradePredictionConcurrency int
	TradeUnwrapOnStop          bool
	TradeCronSchedule          string

	PortfolioRebalanceThreshold float64

	HarvestAccountID          string
	HarvestMinAmount          float64
	HarvestReserveAmount      float64
	HarvestBalanceMultiplier  float64
	HarvestIntervalSeconds    int

	RPCEndpoints           []RPCEndpoint
	RPCFailureResetSeconds int
	RPCMaxAttempts         int

	PoolInfoRetentionCount  int
	TokenRatesRetentionDays int
}

// RPCEndpoint mirrors the RPC_ENDPOINTS JSON-list entries of spec §6.
type RPCEndpoint struct {
	URL        string `toml:"url"`
	Weight     int    `toml:"weight"`
	MaxRetries int    `toml:"max_retries"`
}

// Defaults returns the bottom layer of the precedence chain.
func Defaults() Settings {
	return Settings{
		TradeEnabled:                true,
		TradeInitialInvestment:      0,
		TradeTopTokens:              10,
		TradeVolatilityDays:         7,
		TradeEvaluationDays:         30,
		TradePriceHistoryDays:       30,
		TradePredictionConcurrency:  8,
		TradeUnwrapOnStop:           false,
		TradeCronSchedule:           "0 */6 * * *",
		PortfolioRebalanceThreshold: 0.1,
		HarvestBalanceMultiplier:    128,
		HarvestIntervalSeconds:      3600,
		RPCFailureResetSeconds:      300,
		RPCMaxAttempts:              6,
		PoolInfoRetentionCount:      3,
		TokenRatesRetentionDays:     365,
	}
}

// runtimeSettingRow is the "database" layer of the precedence chain
// (SPEC_FULL "Runtime settings store").
type runtimeSettingRow struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (runtimeSettingRow) TableName() string { return "runtime_settings" }

// Store is the database + in-memory-runtime-override layer.
type Store struct {
	db       *gorm.DB
	overrides map[string]string
}

// NewStore migrates the runtime_settings table and returns a Store ready
// to load layered settings.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&runtimeSettingRow{}); err != nil {
		return nil, errs.NewFatalProcess("config.NewStore", err)
	}
	return &Store{db: db, overrides: map[string]string{}}, nil
}

// SetOverride sets an in-memory runtime override, the chain's highest
// precedence layer, for admin-triggered config changes within a process
// lifetime.
func (s *Store) SetOverride(key, value string) {
	s.overrides[key] = value
}

// SetDBValue writes a value into the database layer.
func (s *Store) SetDBValue(ctx context.Context, key, value string) error {
	row := runtimeSettingRow{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return errs.NewTransient("config.SetDBValue", err)
	}
	return nil
}

// resolve walks the precedence chain runtime overrides → database →
// environment, returning the first layer that has a value for key.
func (s *Store) resolve(ctx context.Context, key string) (string, bool, error) {
	if v, ok := s.overrides[key]; ok {
		return v, true, nil
	}
	var row runtimeSettingRow
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err == nil {
		return row.Value, true, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", false, errs.NewTransient("config.resolve", err)
	}
	if v, ok := os.LookupEnv(key); ok {
		return v, true, nil
	}
	return "", false, nil
}

// Load builds the full Settings by starting from tomlPath (or defaults if
// empty/missing), then applying environment (via godotenv + os.Getenv),
// database, and runtime-override layers on top, per spec §5/§6 precedence.
// Only TRADE_ENABLED, TRADE_CRON_SCHEDULE and PORTFOLIO_REBALANCE_THRESHOLD
// are read from the database and runtime-override layers; every other key
// comes from the environment, TOML or defaults only.
// envFile is the .env path to load before reading the environment,
// mirroring the teacher's cmd/main.go bootstrap.
func Load(ctx context.Context, store *Store, tomlPath, envFile string) (Settings, error) {
	settings := Defaults()

	if tomlPath != "" {
		if _, err := os.Stat(tomlPath); err == nil {
			if _, err := toml.DecodeFile(tomlPath, &settings); err != nil {
				return Settings{}, errs.NewFatalProcess("config.Load", err)
			}
		}
	}

	if envFile != "" {
		_ = godotenv.Load(envFile) // missing .env is not fatal; env/defaults still apply
	}

	applyEnv(&settings)

	if store != nil {
		if err := applyStore(ctx, store, &settings); err != nil {
			return Settings{}, err
		}
	}

	return settings, nil
}

func applyEnv(s *Settings) {
	if v, ok := os.LookupEnv("TRADE_ENABLED"); ok {
		s.TradeEnabled = v == "true" || v == "1"
	}
	if v, ok := os.LookupEnv("TRADE_INITIAL_INVESTMENT"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.TradeInitialInvestment = f
		}
	}
	if v, ok := os.LookupEnv("TRADE_TOP_TOKENS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.TradeTopTokens = n
		}
	}
	if v, ok := os.LookupEnv("TRADE_VOLATILITY_DAYS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.TradeVolatilityDays = n
		}
	}
	if v, ok := os.LookupEnv("TRADE_EVALUATION_DAYS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.TradeEvaluationDays = n
		}
	}
	if v, ok := os.LookupEnv("TRADE_PRICE_HISTORY_DAYS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.TradePriceHistoryDays = n
		}
	}
	if v, ok := os.LookupEnv("TRADE_PREDICTION_CONCURRENCY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.TradePredictionConcurrency = n
		}
	}
	if v, ok := os.LookupEnv("TRADE_UNWRAP_ON_STOP"); ok {
		s.TradeUnwrapOnStop = v == "true" || v == "1"
	}
	if v, ok := os.LookupEnv("TRADE_CRON_SCHEDULE"); ok {
		s.TradeCronSchedule = v
	}
	if v, ok := os.LookupEnv("PORTFOLIO_REBALANCE_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.PortfolioRebalanceThreshold = f
		}
	}
	if v, ok := os.LookupEnv("HARVEST_ACCOUNT_ID"); ok {
		s.HarvestAccountID = v
	}
	if v, ok := os.LookupEnv("HARVEST_MIN_AMOUNT"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.HarvestMinAmount = f
		}
	}
	if v, ok := os.LookupEnv("HARVEST_RESERVE_AMOUNT"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.HarvestReserveAmount = f
		}
	}
	if v, ok := os.LookupEnv("HARVEST_BALANCE_MULTIPLIER"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.HarvestBalanceMultiplier = f
		}
	}
	if v, ok := os.LookupEnv("HARVEST_INTERVAL_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.HarvestIntervalSeconds = n
		}
	}
	if v, ok := os.LookupEnv("RPC_FAILURE_RESET_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.RPCFailureResetSeconds = n
		}
	}
	if v, ok := os.LookupEnv("RPC_MAX_ATTEMPTS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.RPCMaxAttempts = n
		}
	}
	if v, ok := os.LookupEnv("POOL_INFO_RETENTION_COUNT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.PoolInfoRetentionCount = n
		}
	}
	if v, ok := os.LookupEnv("TOKEN_RATES_RETENTION_DAYS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.TokenRatesRetentionDays = n
		}
	}
}

// applyStore overlays the database and in-memory-override layers, both
// read through Store.resolve (which itself checks overrides before the
// database row).
func applyStore(ctx context.Context, store *Store, s *Settings) error {
	if v, ok, err := store.resolve(ctx, "TRADE_ENABLED"); err != nil {
		return err
	} else if ok {
		s.TradeEnabled = v == "true" || v == "1"
	}
	if v, ok, err := store.resolve(ctx, "TRADE_CRON_SCHEDULE"); err != nil {
		return err
	} else if ok {
		s.TradeCronSchedule = v
	}
	if v, ok, err := store.resolve(ctx, "PORTFOLIO_REBALANCE_THRESHOLD"); err != nil {
		return err
	} else if ok {
		if f, perr := strconv.ParseFloat(v, 64); perr == nil {
			s.PortfolioRebalanceThreshold = f
		}
	}
	return nil
}
