// Package app assembles the market-data, cache and backtest components from
// a loaded configuration. Both binaries share it.
package app

import (
	"fmt"
	"log/slog"

	"orbiter/internal/backtest"
	"orbiter/internal/config"
	"orbiter/internal/domain"
	"orbiter/internal/marketdata"
	"orbiter/internal/store"
	"orbiter/internal/strategy/builtins"
)

// App holds the wired components.
type App struct {
	Runner   *backtest.Runner
	Defaults backtest.Settings
	// Fetcher is the cache-backed fetcher the runner reads through.
	Fetcher marketdata.Fetcher

	closers []func() error
}

// New wires an App from cfg. upstream overrides the Alpaca fetcher when
// non-nil.
func New(cfg *config.Config, upstream marketdata.Fetcher, log *slog.Logger) (*App, error) {
	a := &App{Defaults: Defaults(cfg.Backtest)}

	if upstream == nil {
		upstream = marketdata.NewAlpacaFetcher(marketdata.AlpacaConfig{
			APIKey:          cfg.Alpaca.APIKey,
			APISecret:       cfg.Alpaca.APISecret,
			DataURL:         cfg.Alpaca.DataURL,
			Feed:            cfg.Alpaca.Feed,
			RateLimitPerMin: cfg.MarketData.RateLimitPerMin,
			MaxAttempts:     cfg.MarketData.MaxAttempts,
			RetryDelay:      cfg.MarketData.RetryDelay,
		})
	}

	fetcher := upstream
	switch cfg.Storage.Backend {
	case "parquet":
		fetcher = marketdata.NewCachedFetcher(upstream, store.NewParquetStore(cfg.Storage.DataDir))
	case "sqlite":
		db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite cache %s: %w", cfg.Storage.SQLitePath, err)
		}
		a.closers = append(a.closers, db.Close)
		fetcher = marketdata.NewCachedFetcher(upstream, db)
	case "none":
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	log.Info("bar cache configured", "backend", cfg.Storage.Backend)
	a.Fetcher = fetcher

	a.Runner = backtest.NewRunner(builtins.NewRegistry(), fetcher, backtest.RunnerConfig{
		MaxWorkers: cfg.Backtest.MaxWorkers,
		WarmupBars: cfg.Backtest.WarmupBars,
	})
	return a, nil
}

// Close releases resources opened by New.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Defaults converts the backtest config section into request defaults.
func Defaults(b config.Backtest) backtest.Settings {
	return backtest.Settings{
		InitialBalance:   b.InitialBalance,
		FeePct:           b.FeePct,
		TruncateNominals: b.TruncateNominals,
		EntryTime:        backtest.EntryTime(b.EntryTime),
		Timespan:         domain.Timespan(b.Timespan),
		Range:            1,
	}
}
