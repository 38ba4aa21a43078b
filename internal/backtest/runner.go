package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"orbiter/internal/domain"
	"orbiter/internal/indicators"
	"orbiter/internal/marketdata"
	"orbiter/internal/strategy"
	"orbiter/internal/util"
)

// defaultFullID is the registry id used to pair a trading strategy with a
// request-level exit strategy.
const defaultFullID = "default-full-strategy"

// Runner executes backtest requests: it realises strategy trees, retrieves
// and hydrates bars per ticker, and simulates tickers concurrently.
type Runner struct {
	registry   *strategy.Registry
	fetcher    marketdata.Fetcher
	calendar   *util.TradingCalendar
	maxWorkers int
	extraBars  int
	log        *slog.Logger
}

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	// MaxWorkers bounds concurrent tickers. Values below 1 mean 1.
	MaxWorkers int
	// WarmupBars is added to the warm-up each strategy tree needs.
	WarmupBars int
}

// NewRunner creates a Runner that resolves strategies in registry and reads
// bars from fetcher.
func NewRunner(registry *strategy.Registry, fetcher marketdata.Fetcher, cfg RunnerConfig) *Runner {
	workers := cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		registry:   registry,
		fetcher:    fetcher,
		calendar:   util.NewTradingCalendar(),
		maxWorkers: workers,
		extraBars:  cfg.WarmupBars,
		log:        slog.Default().With("component", "backtest"),
	}
}

// Registry returns the strategy registry used by the runner.
func (r *Runner) Registry() *strategy.Registry {
	return r.registry
}

// plan is a realised trading entry ready to simulate. ticker is the
// upper-cased symbol used for retrieval; requested is the symbol as sent and
// is used in error messages.
type plan struct {
	ticker    string
	requested string
	def       strategy.Definition
	fs        strategy.FullStrategy
}

// EffectiveDefinition returns the definition simulated for t: the strategy
// itself, or a default-full-strategy pairing it with t.ExitStrategy.
func EffectiveDefinition(t Trading) (strategy.Definition, error) {
	if t.ExitStrategy == nil || t.ExitStrategy.ID == "" {
		return t.Strategy, nil
	}
	return strategy.NewDefinition(defaultFullID, map[string]any{
		"trading_strategy": t.Strategy,
		"exit_strategy":    t.ExitStrategy,
	})
}

// Run executes req. Request validation errors and unknown strategy ids fail
// the whole request before any data is fetched. Per-ticker failures are
// reported in the matching TradingResult.
func (r *Runner) Run(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	log := r.log.With("run_id", runID)

	plans := make([]plan, len(req.Tradings))
	for i, t := range req.Tradings {
		def, err := EffectiveDefinition(t)
		if err != nil {
			return nil, fmt.Errorf("tradings[%d]: %w", i, err)
		}
		fs, err := r.registry.BuildFull(def)
		if err != nil {
			return nil, fmt.Errorf("tradings[%d]: %w", i, err)
		}
		requested := strings.TrimSpace(t.Ticker)
		plans[i] = plan{ticker: strings.ToUpper(requested), requested: requested, def: def, fs: fs}
	}

	start := time.Now()
	log.Info("backtest started", "tickers", len(plans), "entry_time", req.Settings.EntryTime)

	sim := NewSimulator(req.Settings, log)
	results := make([]TradingResult, len(plans))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxWorkers)
	for i, p := range plans {
		g.Go(func() error {
			results[i] = r.runTicker(gctx, sim, req.Settings, p, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := &Response{
		RunID:           runID,
		Benchmark:       SelectBenchmark(results),
		TradingsResults: results,
	}
	log.Info("backtest finished",
		"tickers", len(plans),
		"best_ticker", resp.Benchmark.BestTicker,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return resp, nil
}

func (r *Runner) runTicker(ctx context.Context, sim *Simulator, settings Settings, p plan, log *slog.Logger) TradingResult {
	res := TradingResult{Ticker: p.ticker}

	from, to := settings.Window()
	bars, err := r.Bars(ctx, marketdata.Request{
		Ticker:   p.ticker,
		From:     from,
		To:       to,
		Timespan: settings.Timespan,
		Range:    settings.Range,
	}, strategy.RequiredIndicators(p.fs))
	if err != nil {
		log.Warn("fetching bars failed", "ticker", p.ticker, "error", err)
		res.Error = fmt.Sprintf("Failed to fetch candles for ticker %s: %v", p.requested, err)
		return res
	}

	out, err := sim.Run(p.fs, bars)
	if err != nil {
		res.Error = fmt.Sprintf("No candles for ticker %s", p.requested)
		return res
	}

	def := p.def
	res.Candles = out.Candles
	res.Trades = out.Trades
	res.Balance = out.Balance
	res.StrategyDef = &def
	log.Debug("ticker simulated", "ticker", p.ticker, "bars", len(bars), "trades", len(out.Trades), "roi", out.Balance.ROI)
	return res
}

// Bars fetches the requested window with enough leading history to warm up
// keys, hydrates the indicators and trims the result back to req.From.
func (r *Runner) Bars(ctx context.Context, req marketdata.Request, keys []domain.IndicatorKey) ([]domain.Bar, error) {
	warmup := indicators.MaxWarmup(keys)
	if warmup > 0 {
		warmup += r.extraBars
	}
	fetch := req
	if step, ok := req.Timespan.Duration(req.Range); ok {
		fetch.From = r.calendar.LookbackStart(req.From, step, warmup)
	}

	bars, err := r.fetcher.FetchBars(ctx, fetch)
	if err != nil {
		return nil, err
	}
	hydrated, err := indicators.Hydrate(bars, keys...)
	if err != nil {
		return nil, err
	}

	first := 0
	for first < len(hydrated) && hydrated[first].Timestamp.Before(req.From) {
		first++
	}
	return hydrated[first:], nil
}

// Evaluate realises def and runs it on the latest bar of the window,
// assuming no open position.
func (r *Runner) Evaluate(ctx context.Context, def strategy.Definition, req marketdata.Request) (strategy.Detail, error) {
	fs, err := r.registry.BuildFull(def)
	if err != nil {
		return strategy.Detail{}, err
	}
	bars, err := r.Bars(ctx, req, strategy.RequiredIndicators(fs))
	if err != nil {
		return strategy.Detail{}, err
	}
	if len(bars) == 0 {
		return strategy.Detail{}, fmt.Errorf("%w for ticker %s", ErrNoData, req.Ticker)
	}

	detail := strategy.Detail{ID: def.ID, Result: fs.ProcessPosition(bars, false, 0)}
	if e, ok := r.registry.Get(def.ID); ok {
		detail.Name = e.Name
		detail.Description = e.Description
	}
	return detail, nil
}
