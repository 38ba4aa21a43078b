package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"orbiter/internal/domain"
	"orbiter/internal/util"
)

// AlpacaConfig configures AlpacaFetcher.
type AlpacaConfig struct {
	APIKey          string
	APISecret       string
	DataURL         string
	Feed            string
	RateLimitPerMin int
	MaxAttempts     int
	RetryDelay      time.Duration
}

// AlpacaFetcher fetches split-adjusted bars from the Alpaca market-data API.
type AlpacaFetcher struct {
	client      *marketdata.Client
	feed        string
	limiter     *util.RateLimiter
	maxAttempts int
	retryDelay  time.Duration
	log         *slog.Logger
}

var _ Fetcher = (*AlpacaFetcher)(nil)

// NewAlpacaFetcher creates an AlpacaFetcher configured with the given
// Alpaca credentials and throttling parameters.
func NewAlpacaFetcher(cfg AlpacaConfig) *AlpacaFetcher {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	feed := cfg.Feed
	if feed == "" {
		feed = "sip"
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &AlpacaFetcher{
		client:      marketdata.NewClient(opts),
		feed:        feed,
		limiter:     util.NewRateLimiter(cfg.RateLimitPerMin),
		maxAttempts: attempts,
		retryDelay:  cfg.RetryDelay,
		log:         slog.Default().With("fetcher", "alpaca"),
	}
}

// FetchBars fetches the requested bars, retrying transient failures.
func (f *AlpacaFetcher) FetchBars(ctx context.Context, req Request) ([]domain.Bar, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tf, err := timeFrame(req.Timespan, req.Range)
	if err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(req.Ticker)

	var raw []marketdata.Bar
	start := time.Now()
	err = util.Retry(ctx, f.maxAttempts, f.retryDelay, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var gerr error
		raw, gerr = f.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  tf,
			Adjustment: marketdata.Split,
			Start:      req.From,
			End:        req.Until(),
			Feed:       f.feed,
		})
		if gerr != nil {
			f.log.Warn("GetBars failed", "symbol", symbol, "error", gerr)
		}
		return gerr
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, convertBar(symbol, ab))
	}
	f.log.Debug("fetched bars",
		"symbol", symbol,
		"timeframe", req.Timeframe(),
		"count", len(bars),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return bars, nil
}

func convertBar(symbol string, ab marketdata.Bar) domain.Bar {
	return domain.Bar{
		Symbol:     symbol,
		Timestamp:  ab.Timestamp.UTC(),
		Open:       ab.Open,
		High:       ab.High,
		Low:        ab.Low,
		Close:      ab.Close,
		Volume:     float64(ab.Volume),
		TradeCount: int64(ab.TradeCount),
		VWAP:       ab.VWAP,
	}
}

// timeFrame maps a timespan and multiplier to an Alpaca TimeFrame.
func timeFrame(ts domain.Timespan, n int) (marketdata.TimeFrame, error) {
	var unit marketdata.TimeFrameUnit
	switch ts {
	case domain.TimespanMinute:
		unit = marketdata.Min
	case domain.TimespanHour:
		unit = marketdata.Hour
	case domain.TimespanDay:
		unit = marketdata.Day
	case domain.TimespanWeek:
		unit = marketdata.Week
	case domain.TimespanMonth:
		unit = marketdata.Month
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("%w: unsupported timespan %q", ErrInvalidRequest, ts)
	}
	return marketdata.NewTimeFrame(n, unit), nil
}
