package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"orbiter/internal/domain"
	"orbiter/internal/store"
)

// CachedFetcher serves bars from a store.Cache and falls back to an upstream
// Fetcher for windows not fetched before. Only completed days are recorded as
// covered, so requests reaching today always go upstream.
type CachedFetcher struct {
	upstream Fetcher
	cache    store.Cache
	group    singleflight.Group
	now      func() time.Time
	log      *slog.Logger
}

var _ Fetcher = (*CachedFetcher)(nil)

// NewCachedFetcher wraps upstream with cache.
func NewCachedFetcher(upstream Fetcher, cache store.Cache) *CachedFetcher {
	return &CachedFetcher{
		upstream: upstream,
		cache:    cache,
		now:      time.Now,
		log:      slog.Default().With("fetcher", "cache"),
	}
}

// FetchBars returns cached bars when the window is covered, otherwise it
// fetches the union of the cached and requested windows upstream and
// stores the result.
func (c *CachedFetcher) FetchBars(ctx context.Context, req Request) ([]domain.Bar, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(req.Ticker)
	tf := req.Timeframe()
	want := store.Window{Start: req.From, End: req.Until()}

	covered, ok, err := c.cache.Coverage(ctx, symbol, tf)
	if err != nil {
		c.log.Warn("reading coverage failed", "symbol", symbol, "timeframe", tf, "error", err)
		ok = false
	}
	if ok && covered.Covers(want.Start, want.End) {
		bars, err := c.cache.ReadBars(ctx, symbol, tf, want.Start, want.End)
		if err == nil {
			c.log.Debug("cache hit", "symbol", symbol, "timeframe", tf, "count", len(bars))
			return bars, nil
		}
		c.log.Warn("reading cached bars failed", "symbol", symbol, "timeframe", tf, "error", err)
	}

	fetch := want
	if ok {
		fetch = covered.Union(want)
	}
	key := fmt.Sprintf("%s/%s/%d/%d", symbol, tf, fetch.Start.UnixMilli(), fetch.End.UnixMilli())
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.refresh(ctx, req, symbol, tf, fetch)
	})
	if err != nil {
		return nil, err
	}
	return within(v.([]domain.Bar), want), nil
}

// refresh fetches window upstream and writes the result back.
func (c *CachedFetcher) refresh(ctx context.Context, req Request, symbol, tf string, window store.Window) ([]domain.Bar, error) {
	up := req
	up.Ticker = symbol
	up.From, up.To = window.Start, window.End
	bars, err := c.upstream.FetchBars(ctx, up)
	if err != nil {
		return nil, err
	}

	if err := c.cache.WriteBars(ctx, tf, bars); err != nil {
		c.log.Warn("caching bars failed", "symbol", symbol, "timeframe", tf, "error", err)
		return bars, nil
	}

	today := c.now().UTC().Truncate(24 * time.Hour)
	if window.End.After(today) {
		window.End = today.Add(-time.Nanosecond)
	}
	if window.End.After(window.Start) {
		if err := c.cache.SetCoverage(ctx, symbol, tf, window); err != nil {
			c.log.Warn("recording coverage failed", "symbol", symbol, "timeframe", tf, "error", err)
		}
	}
	return bars, nil
}

// within returns the bars whose timestamps fall inside w.
func within(bars []domain.Bar, w store.Window) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if !b.Timestamp.Before(w.Start) && !b.Timestamp.After(w.End) {
			out = append(out, b)
		}
	}
	return out
}
