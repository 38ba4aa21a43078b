// Package gather warms the bar cache ahead of backtests.
package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"orbiter/internal/domain"
	"orbiter/internal/marketdata"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs the gathering and blocks until it finishes or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Stats summarises a finished Prefetcher run.
type Stats struct {
	Tickers int
	Bars    int64
	Empty   int64
	Failed  int64
	Elapsed time.Duration
}

// Prefetcher pulls bars for a list of tickers through a (usually caching)
// Fetcher so later backtests are served locally.
type Prefetcher struct {
	fetcher    marketdata.Fetcher
	tickers    []string
	window     DateRange
	timespan   domain.Timespan
	rng        int
	maxWorkers int
	log        *slog.Logger

	stats Stats
}

var _ Gatherer = (*Prefetcher)(nil)

// NewPrefetcher creates a Prefetcher. Tickers are upper-cased and
// de-duplicated; maxWorkers below 1 means 1.
func NewPrefetcher(fetcher marketdata.Fetcher, tickers []string, window DateRange, timespan domain.Timespan, rng, maxWorkers int) *Prefetcher {
	seen := make(map[string]bool, len(tickers))
	var uniq []string
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		uniq = append(uniq, t)
	}
	return &Prefetcher{
		fetcher:    fetcher,
		tickers:    uniq,
		window:     window,
		timespan:   timespan,
		rng:        rng,
		maxWorkers: max(maxWorkers, 1),
		log:        slog.Default().With("gatherer", "prefetch"),
	}
}

// Name returns the gatherer identifier.
func (p *Prefetcher) Name() string { return "prefetch" }

// Stats returns the counters of the last Run.
func (p *Prefetcher) Stats() Stats { return p.stats }

// Run fetches every ticker. Per-ticker failures are logged and joined into
// the returned error; the remaining tickers still run.
func (p *Prefetcher) Run(ctx context.Context) error {
	tickerCh := make(chan string, len(p.tickers))
	for _, t := range p.tickers {
		tickerCh <- t
	}
	close(tickerCh)

	var (
		wg       sync.WaitGroup
		bars     atomic.Int64
		empty    atomic.Int64
		failed   atomic.Int64
		mu       sync.Mutex
		errs     []error
		runStart = time.Now()
	)

	p.log.Info("starting prefetch",
		"tickers", len(p.tickers),
		"from", p.window.Start.Format(time.DateOnly),
		"to", p.window.End.Format(time.DateOnly),
		"timespan", p.timespan,
	)

	workers := min(p.maxWorkers, len(p.tickers))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range tickerCh {
				if ctx.Err() != nil {
					return
				}
				got, err := p.fetcher.FetchBars(ctx, marketdata.Request{
					Ticker:   ticker,
					From:     p.window.Start,
					To:       p.window.End,
					Timespan: p.timespan,
					Range:    p.rng,
				})
				if err != nil {
					failed.Add(1)
					p.log.Error("prefetch failed", "ticker", ticker, "error", err)
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", ticker, err))
					mu.Unlock()
					continue
				}
				if len(got) == 0 {
					empty.Add(1)
				}
				bars.Add(int64(len(got)))
				p.log.Debug("prefetched", "ticker", ticker, "bars", len(got))
			}
		}()
	}
	wg.Wait()

	p.stats = Stats{
		Tickers: len(p.tickers),
		Bars:    bars.Load(),
		Empty:   empty.Load(),
		Failed:  failed.Load(),
		Elapsed: time.Since(runStart),
	}
	p.log.Info("prefetch done",
		"tickers", p.stats.Tickers,
		"bars", p.stats.Bars,
		"empty", p.stats.Empty,
		"failed", p.stats.Failed,
		"elapsed", p.stats.Elapsed.Round(time.Millisecond),
	)

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
