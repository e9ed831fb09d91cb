// Command trader is the process entrypoint: it wires configuration, the
// RPC endpoint pool, persistence and every trading component into the
// scheduler's trade/record/cleanup ticks, following the shape of the
// teacher's own cmd/main.go (load config, dial the chain, build the
// domain object, run).
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ammtrader/ammtrader/configs"
	"github.com/ammtrader/ammtrader/internal/chainclient"
	"github.com/ammtrader/ammtrader/internal/config"
	"github.com/ammtrader/ammtrader/internal/forecaster"
	"github.com/ammtrader/ammtrader/internal/logging"
	"github.com/ammtrader/ammtrader/internal/numeric"
	"github.com/ammtrader/ammtrader/internal/optimizer"
	"github.com/ammtrader/ammtrader/internal/pathgraph"
	"github.com/ammtrader/ammtrader/internal/period"
	"github.com/ammtrader/ammtrader/internal/pools"
	"github.com/ammtrader/ammtrader/internal/rates"
	"github.com/ammtrader/ammtrader/internal/rebalance"
	"github.com/ammtrader/ammtrader/internal/rpcpool"
	"github.com/ammtrader/ammtrader/internal/scheduler"
	"github.com/ammtrader/ammtrader/internal/selector"
	"github.com/ammtrader/ammtrader/internal/traderecorder"
	"github.com/ammtrader/ammtrader/internal/wallet"
)

func main() {
	logging.Init(os.Getenv("DEBUG") == "1")
	log := logging.New("main")

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "report":
			runReport()
			return
		case "status":
			runStatus()
			return
		}
	}

	app, err := bootstrap(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app.registerTicks()
	app.log.Info().Str("cron", app.settings.TradeCronSchedule).Msg("scheduler starting")
	app.sched.Run(ctx)
}

// app bundles every wired component the scheduler's handlers close over.
type app struct {
	log      zerolog.Logger
	settings config.Settings
	db       *gorm.DB

	pool       *rpcpool.Pool
	reader     *chainclient.Reader
	registry   *pools.Registry
	graph      *pathgraph.Graph
	ratesRec   *rates.Recorder
	ratesStore *rates.Store
	forecast   *forecaster.Client
	periodFSM  *period.FSM
	harvest    *period.HarvestCheck
	recorder   *traderecorder.Recorder
	router     *chainclient.Router
	swapper    *chainclient.Swapper
	sched      *scheduler.Scheduler

	exchangeID  string
	account     string
	nativeToken string
	quoteToken  string
	universe    []string
}

func bootstrap(ctx context.Context) (*app, error) {
	log := logging.New("bootstrap")

	yamlCfg, err := configs.LoadConfig("configs/config.yml")
	if err != nil {
		return nil, fmt.Errorf("load contract client config: %w", err)
	}
	chainclient.SetNativeToken(yamlCfg.WrappedNative)

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(127.0.0.1:3306)/ammtrader?charset=utf8mb4&parseTime=True&loc=Local"
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store, err := config.NewStore(db)
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(ctx, store, os.Getenv("CONFIG_TOML"), ".env")
	if err != nil {
		return nil, err
	}

	endpoints := make([]rpcpool.Endpoint, 0, len(settings.RPCEndpoints))
	for _, e := range settings.RPCEndpoints {
		endpoints = append(endpoints, rpcpool.Endpoint{URL: e.URL, Weight: e.Weight, MaxRetries: e.MaxRetries})
	}
	if len(endpoints) == 0 {
		endpoints = append(endpoints, rpcpool.Endpoint{URL: yamlCfg.RPC, Weight: 1, MaxRetries: settings.RPCMaxAttempts})
	}
	pool, err := rpcpool.New(ctx, rpcpool.Config{
		Endpoints:         endpoints,
		MaxAttempts:       settings.RPCMaxAttempts,
		FailureResetAfter: time.Duration(settings.RPCFailureResetSeconds) * time.Second,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("dial rpc pool: %w", err)
	}

	poolIDs := make([]string, 0, len(yamlCfg.ContractClient))
	for id := range yamlCfg.ContractClient {
		poolIDs = append(poolIDs, id)
	}
	reader := chainclient.NewReader(pool, chainclient.PoolDirectory{Registry: yamlCfg.ExchangeID, PoolIDs: poolIDs})

	registry, err := pools.New(db, reader, pools.Config{RetentionCount: settings.PoolInfoRetentionCount})
	if err != nil {
		return nil, err
	}

	var currentGraph *pathgraph.Graph = pathgraph.New(nil)
	graphFunc := func() *pathgraph.Graph { return currentGraph }

	ratesRec, err := rates.New(db, graphFunc, reader, rates.Config{
		CalcInputNative: big.NewRat(1, 1),
		RetentionDays:   settings.TokenRatesRetentionDays,
	})
	if err != nil {
		return nil, err
	}
	ratesStore := rates.NewStore(db)

	forecastClient := forecaster.New(forecaster.Config{BaseURL: os.Getenv("FORECASTER_URL")})

	periodFSM, err := period.New(db, period.Config{EvaluationDays: settings.TradeEvaluationDays})
	if err != nil {
		return nil, err
	}
	harvest := period.NewHarvestCheck(
		settings.HarvestAccountID,
		new(big.Rat).SetFloat64(settings.HarvestReserveAmount),
		settings.HarvestBalanceMultiplier,
		time.Duration(settings.HarvestIntervalSeconds)*time.Second,
	)

	recorder, err := traderecorder.New(db)
	if err != nil {
		return nil, err
	}

	router := chainclient.NewRouter(graphFunc)

	var signer rpcpool.Signer
	if keyHex := os.Getenv("SIGNER_KEY_HEX"); keyHex != "" {
		raw, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("decode SIGNER_KEY_HEX: %w", err)
		}
		s, err := wallet.NewEd25519Signer(os.Getenv("SIGNER_ACCOUNT_ID"), ed25519.PrivateKey(raw))
		if err != nil {
			return nil, err
		}
		signer = s
	}
	account := os.Getenv("SIGNER_ACCOUNT_ID")
	swapper := chainclient.NewSwapper(pool, signer, account)

	sched := scheduler.New()

	log.Info().Msg("bootstrap complete")

	return &app{
		log:         log,
		settings:    settings,
		db:          db,
		pool:        pool,
		reader:      reader,
		registry:    registry,
		graph:       currentGraph,
		ratesRec:    ratesRec,
		ratesStore:  ratesStore,
		forecast:    forecastClient,
		periodFSM:   periodFSM,
		harvest:     harvest,
		recorder:    recorder,
		router:      router,
		swapper:     swapper,
		sched:       sched,
		exchangeID:  yamlCfg.ExchangeID,
		account:     account,
		nativeToken: yamlCfg.WrappedNative,
		quoteToken:  yamlCfg.WrappedNative,
	}, nil
}

// registerTicks wires the three scheduled jobs: pool/rate recording runs
// every tick, the trade tick runs on the configured cron schedule, and a
// daily cleanup prunes old rows (spec §4.13's three independent schedules).
func (a *app) registerTicks() {
	must := func(err error) {
		if err != nil {
			a.log.Fatal().Err(err).Msg("register job")
		}
	}
	must(a.sched.Register("refresh-pools", "*/1 * * * *", a.tickRefresh))
	must(a.sched.Register("trade", a.settings.TradeCronSchedule, a.tickTrade))
	must(a.sched.Register("cleanup", "0 0 * * *", a.tickCleanup))
}

func (a *app) tickRefresh(ctx context.Context) error {
	if err := a.registry.Refresh(ctx); err != nil {
		return err
	}
	snapshot, err := a.registry.Latest(ctx)
	if err != nil {
		return err
	}
	edges := make([]pathgraph.Edge, 0, len(snapshot)*2)
	for _, p := range snapshot {
		ra, okA := new(big.Float).SetString(p.ReserveA)
		rb, okB := new(big.Float).SetString(p.ReserveB)
		if !okA || !okB {
			continue
		}
		rateAB, _ := new(big.Float).Quo(rb, ra).Float64()
		rateBA, _ := new(big.Float).Quo(ra, rb).Float64()
		edges = append(edges,
			pathgraph.Edge{PoolID: p.ID, In: p.TokenA, Out: p.TokenB, Rate: rateAB},
			pathgraph.Edge{PoolID: p.ID, In: p.TokenB, Out: p.TokenA, Rate: rateBA},
		)
	}
	*a.graph = *pathgraph.New(edges)

	seen := map[string]bool{}
	pairs := make([]rates.Pair, 0, len(snapshot)*2)
	for _, p := range snapshot {
		for _, token := range p.Tokens() {
			if token == a.quoteToken || seen[token] {
				continue
			}
			seen[token] = true
			pairs = append(pairs, rates.Pair{Base: token, Quote: a.quoteToken})
		}
	}
	return a.ratesRec.RecordTick(ctx, pairs)
}

func (a *app) tickTrade(ctx context.Context) error {
	holdings, err := a.readPortfolio(ctx)
	if err != nil {
		return err
	}

	decision, err := a.periodFSM.Evaluate(ctx, holdings.totalNative, a.recorder, a.settings.TradeEnabled)
	if err != nil {
		return err
	}
	if decision.ShouldStop && decision.PriorPeriod != nil && decision.PriorPeriod.Status == period.StatusClosed {
		return nil
	}

	periodID := decision.PeriodID
	balances := holdings.balances
	totalNative := holdings.totalNative

	if decision.ShouldLiquidate {
		realized, err := a.liquidate(ctx, decision, holdings)
		if err != nil {
			return err
		}
		if decision.ShouldStop {
			a.log.Info().Str("period", decision.PeriodID).Msg("trading disabled; period liquidated and closed")
			if a.settings.TradeUnwrapOnStop {
				excess := new(big.Rat).Sub(realized, a.harvest.ReserveAmount)
				a.runHarvestExcess(ctx, decision.PeriodID, excess)
			}
			return nil
		}
		next, err := a.periodFSM.StartNew(ctx, realized)
		if err != nil {
			return err
		}
		periodID = next.PeriodID
		balances = nil
		totalNative = realized
		a.log.Info().Str("period", periodID).Str("initial", realized.FloatString(8)).Msg("new evaluation period started")
	}

	window := rates.TimeRange{From: time.Now().AddDate(0, 0, -a.settings.TradeVolatilityDays), To: time.Now()}
	universe, exhausted, err := selector.Select(ctx, a.ratesStore, a.graph, window, selector.Config{
		VolatilityDays: a.settings.TradeVolatilityDays,
		TopTokens:      a.settings.TradeTopTokens,
		Native:         a.nativeToken,
	})
	if err != nil {
		return err
	}
	if exhausted {
		a.log.Warn().Msg("token universe exhausted before reaching quota")
	}
	a.universe = universe

	volatility, err := a.ratesStore.VolatilityRanking(ctx, window, a.nativeToken)
	if err != nil {
		return err
	}
	varianceByToken := make(map[string]float64, len(volatility))
	for _, v := range volatility {
		varianceByToken[v.Base] = v.Variance
	}
	sp := a.graph.UpdateGraph(a.nativeToken)
	valueByToken := make(map[string]*big.Rat, len(balances))
	for _, b := range balances {
		valueByToken[b.Token] = b.ValueNative
	}

	currentWeights := make(map[string]float64, len(universe))
	assets := make([]optimizer.Asset, 0, len(universe))
	for _, token := range universe {
		history, err := a.ratesStore.History(ctx, token, a.nativeToken, window, 0)
		if err != nil || len(history) == 0 {
			continue
		}
		series := make([]float64, 0, len(history))
		for _, h := range history {
			f, _ := h.Rate.Float64()
			series = append(series, f)
		}
		returns := make([]float64, 0, len(series))
		for i := 1; i < len(series); i++ {
			if series[i-1] == 0 {
				continue
			}
			returns = append(returns, (series[i]-series[i-1])/series[i-1])
		}
		timestamps := make([]int64, 0, len(history))
		for _, h := range history {
			timestamps = append(timestamps, h.Timestamp.Unix())
		}
		predicted := series[len(series)-1]
		req := forecaster.Request{Timestamps: timestamps, Values: series, ForecastUntil: time.Now().Add(24 * time.Hour).Unix()}
		if p, err := a.forecast.Predict(ctx, req); err == nil && len(p.Points) > 0 {
			predicted = p.Points[len(p.Points)-1].Value
		}

		annualizedVol := math.Sqrt(varianceByToken[token] * 365)

		liquidityScore := 0.0
		if path, err := sp.GetPath(token); err == nil {
			liquidityScore = 1.0 / float64(1+len(path))
		}

		currentWeight := 0.0
		if totalNative.Sign() > 0 {
			if v, ok := valueByToken[token]; ok {
				w := new(big.Rat).Quo(v, totalNative)
				currentWeight, _ = w.Float64()
			}
		}
		currentWeights[token] = currentWeight

		assets = append(assets, optimizer.Asset{
			Token:          token,
			CurrentPrice:   series[len(series)-1],
			PredictedPrice: predicted,
			DailyReturns:   returns,
			AnnualizedVol:  annualizedVol,
			LiquidityScore: liquidityScore,
			CurrentWeight:  currentWeight,
		})

		predictedRat := new(big.Rat).SetFloat64(predicted)
		if predictedRat != nil {
			if err := a.recorder.RecordPrediction(ctx, periodID, token, predictedRat, 24); err != nil {
				a.log.Warn().Str("token", token).Err(err).Msg("record prediction failed")
			}
		}
	}
	result := optimizer.Optimize(assets)

	if optimizer.ShouldRebalance(currentWeights, result.Weights, a.settings.PortfolioRebalanceThreshold) {
		batchID := traderecorder.NewBatchID()
		outcomes, err := rebalance.Execute(ctx, a.nativeToken, result.Weights, balances, totalNative, a.router, a.swapper)
		if err != nil {
			return err
		}
		a.recordOutcomes(ctx, batchID, periodID, outcomes)
	} else {
		a.log.Info().Str("period", periodID).Msg("rebalance skipped: within threshold")
	}

	if balance, err := a.swapper.NativeBalance(ctx); err == nil {
		if native, verr := numeric.NewNativeAmount(balance); verr == nil {
			if excess, due := a.harvest.ShouldHarvest(time.Now(), native.ToValue().Rat()); due {
				a.runHarvestExcess(ctx, periodID, excess)
				a.harvest.MarkHarvested(time.Now())
			}
		}
	}

	return nil
}

// recordOutcomes logs every swap leg and persists the successful ones as
// trade_transactions rows (spec §3.3/§4.12).
func (a *app) recordOutcomes(ctx context.Context, batchID, periodID string, outcomes []rebalance.Outcome) {
	for _, o := range outcomes {
		if !o.Success {
			a.log.Warn().Str("batch", batchID).Str("token", o.Token).Err(o.Err).Msg("rebalance leg failed")
			continue
		}
		a.log.Info().Str("batch", batchID).Str("token", o.Token).Msg("rebalance leg succeeded")
		if o.AmountIn == nil || o.AmountOut == nil {
			continue
		}
		if err := a.recorder.RecordSwap(ctx, batchID, periodID, o.FromToken, o.ToToken, o.AmountIn, o.AmountOut, o.TxHash); err != nil {
			a.log.Warn().Str("batch", batchID).Str("token", o.Token).Err(err).Msg("record swap failed")
		}
	}
}

// portfolio is the real on-exchange balances for one trade tick (spec §6
// get_deposits), replacing the previously selected token universe as the
// rebalance plan's input.
type portfolio struct {
	balances    []rebalance.Balance
	totalNative *big.Rat
}

// readPortfolio reads every token the account holds inside the exchange
// contract and converts it into native-denominated balances using each
// token's latest recorded rate (spec §3.1: token_amount = native_diff * rate,
// inverted here as native_value = token_amount / rate).
func (a *app) readPortfolio(ctx context.Context) (portfolio, error) {
	deposits, err := a.reader.Deposits(ctx, a.exchangeID, a.account)
	if err != nil {
		return portfolio{}, err
	}

	total := new(big.Rat)
	balances := make([]rebalance.Balance, 0, len(deposits))
	for token, amount := range deposits {
		if token == a.nativeToken {
			nv, verr := numeric.NewNativeAmount(amount)
			if verr != nil {
				continue
			}
			total.Add(total, nv.ToValue().Rat())
			continue
		}

		tr, err := a.ratesStore.Latest(ctx, token, a.nativeToken)
		if err != nil || tr == nil {
			a.log.Warn().Str("token", token).Msg("no recorded rate; skipping balance this tick")
			continue
		}
		rate, err := numeric.NewExchangeRate(tr.Rate, 0)
		if err != nil {
			continue
		}
		ta, err := numeric.NewTokenAmount(amount, 0)
		if err != nil {
			continue
		}
		value, err := ta.Div(rate)
		if err != nil {
			continue
		}
		total.Add(total, value.Rat())
		balances = append(balances, rebalance.Balance{Token: token, ValueNative: value.Rat(), Rate: rate})
	}

	return portfolio{balances: balances, totalNative: total}, nil
}

// liquidate sells every current holding to native (spec §4.11 transition 3)
// by reusing Execute with no target weights, then closes the matured
// period with the realized value.
func (a *app) liquidate(ctx context.Context, decision period.Decision, p portfolio) (*big.Rat, error) {
	batchID := traderecorder.NewBatchID()
	outcomes, err := rebalance.Execute(ctx, a.nativeToken, nil, p.balances, p.totalNative, a.router, a.swapper)
	if err != nil {
		return nil, err
	}
	a.recordOutcomes(ctx, batchID, decision.PeriodID, outcomes)

	balance, err := a.swapper.NativeBalance(ctx)
	if err != nil {
		return nil, err
	}
	nv, err := numeric.NewNativeAmount(balance)
	if err != nil {
		return nil, err
	}
	realized := nv.ToValue().Rat()

	if decision.PriorPeriod != nil {
		if err := a.periodFSM.Close(ctx, decision.PriorPeriod, realized, func(initial, final, delta, percent *big.Rat) {
			a.log.Info().
				Str("period", decision.PeriodID).
				Str("initial", initial.FloatString(8)).
				Str("final", final.FloatString(8)).
				Str("delta", delta.FloatString(8)).
				Str("percent", percent.FloatString(4)).
				Msg("evaluation period closed")
		}); err != nil {
			return nil, err
		}
	}
	return realized, nil
}

// runHarvestExcess unwraps and transfers excess native out of the exchange
// account to the configured harvest account, recording the transfer (spec
// §4.12, SPEC_FULL "Harvest ledger").
func (a *app) runHarvestExcess(ctx context.Context, periodID string, excess *big.Rat) {
	if a.settings.HarvestAccountID == "" || excess == nil || excess.Sign() <= 0 {
		return
	}
	nv, err := numeric.NewNativeValue(excess)
	if err != nil {
		return
	}
	amount := nv.ToAmount().Int()

	if _, err := a.swapper.Unwrap(ctx, amount); err != nil {
		a.log.Warn().Err(err).Msg("harvest: unwrap failed")
		return
	}
	txHash, err := a.swapper.Transfer(ctx, a.settings.HarvestAccountID, amount)
	if err != nil {
		a.log.Warn().Err(err).Msg("harvest: transfer failed")
		return
	}
	if err := a.recorder.RecordHarvest(ctx, periodID, a.settings.HarvestAccountID, amount, txHash); err != nil {
		a.log.Warn().Err(err).Msg("harvest: record failed")
		return
	}
	a.log.Info().Str("amount", amount.String()).Str("account", a.settings.HarvestAccountID).Msg("harvest executed")
}

func (a *app) tickCleanup(ctx context.Context) error {
	if err := a.ratesRec.Cleanup(ctx); err != nil {
		return err
	}
	return a.ratesStore.Cleanup(ctx, a.settings.TokenRatesRetentionDays)
}

func runReport() {
	fmt.Println("report: connect DB and print recent trade_transactions (see internal/traderecorder)")
}

func runStatus() {
	fmt.Println("status: connect DB and print the active evaluation period and latest rates (see internal/period, internal/rates)")
}
