// Package marketdata retrieves OHLCV bars for the backtester from an
// upstream provider, optionally through a local cache.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"orbiter/internal/domain"
)

// ErrInvalidRequest is returned for requests that can never succeed.
var ErrInvalidRequest = errors.New("invalid market data request")

// Request selects a bar series. From and To are inclusive.
type Request struct {
	Ticker   string
	From     time.Time
	To       time.Time
	Timespan domain.Timespan
	Range    int
}

// Timeframe identifies the bar width, e.g. "1day".
func (r Request) Timeframe() string {
	return fmt.Sprintf("%d%s", r.Range, r.Timespan)
}

// Until returns the inclusive end of the window. A To at midnight is taken
// as a date and extended to the last second of that day, since providers
// stamp daily bars after midnight UTC.
func (r Request) Until() time.Time {
	if r.To.Equal(r.To.Truncate(24 * time.Hour)) {
		return r.To.Add(24*time.Hour - time.Second)
	}
	return r.To
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Ticker) == "" {
		return fmt.Errorf("%w: ticker is required", ErrInvalidRequest)
	}
	if r.Range < 1 {
		return fmt.Errorf("%w: range must be at least 1, got %d", ErrInvalidRequest, r.Range)
	}
	if _, ok := r.Timespan.Duration(r.Range); !ok {
		return fmt.Errorf("%w: unsupported timespan %q", ErrInvalidRequest, r.Timespan)
	}
	if r.To.Before(r.From) {
		return fmt.Errorf("%w: to %s is before from %s", ErrInvalidRequest,
			r.To.Format(time.DateOnly), r.From.Format(time.DateOnly))
	}
	return nil
}

// Fetcher returns bars ordered ascending by timestamp. An empty slice with a
// nil error means the provider has no data for the window.
type Fetcher interface {
	FetchBars(ctx context.Context, req Request) ([]domain.Bar, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) ([]domain.Bar, error)

// FetchBars calls f.
func (f FetcherFunc) FetchBars(ctx context.Context, req Request) ([]domain.Bar, error) {
	return f(ctx, req)
}
