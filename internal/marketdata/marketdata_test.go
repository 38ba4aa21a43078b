package marketdata

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"orbiter/internal/domain"
	"orbiter/internal/store"
)

func date(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func dailyRequest(from, to time.Time) Request {
	return Request{Ticker: "aapl", From: from, To: to, Timespan: domain.TimespanDay, Range: 1}
}

// fakeUpstream serves one bar per calendar day at 05:00 UTC.
type fakeUpstream struct {
	calls atomic.Int32
	last  Request
	err   error
}

func (f *fakeUpstream) FetchBars(_ context.Context, req Request) ([]domain.Bar, error) {
	f.calls.Add(1)
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	var bars []domain.Bar
	for d := req.From.Truncate(24 * time.Hour); !d.After(req.Until()); d = d.AddDate(0, 0, 1) {
		ts := d.Add(5 * time.Hour)
		if ts.Before(req.From) || ts.After(req.Until()) {
			continue
		}
		bars = append(bars, domain.Bar{Symbol: req.Ticker, Timestamp: ts, Open: 1, High: 1, Low: 1, Close: float64(d.Day())})
	}
	return bars, nil
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", dailyRequest(date(1, 1), date(1, 31)), false},
		{"missing ticker", Request{From: date(1, 1), To: date(1, 2), Timespan: domain.TimespanDay, Range: 1}, true},
		{"zero range", Request{Ticker: "A", From: date(1, 1), To: date(1, 2), Timespan: domain.TimespanDay}, true},
		{"bad timespan", Request{Ticker: "A", From: date(1, 1), To: date(1, 2), Timespan: "year", Range: 1}, true},
		{"inverted", dailyRequest(date(2, 1), date(1, 1)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestRequestUntilAndTimeframe(t *testing.T) {
	req := dailyRequest(date(1, 1), date(1, 31))
	if got, want := req.Until(), date(1, 31).Add(24*time.Hour-time.Second); !got.Equal(want) {
		t.Errorf("Until() = %v, want %v", got, want)
	}

	exact := date(1, 31).Add(15 * time.Hour)
	req.To = exact
	if !req.Until().Equal(exact) {
		t.Errorf("Until() moved an explicit timestamp to %v", req.Until())
	}

	req.Range, req.Timespan = 15, domain.TimespanMinute
	if got := req.Timeframe(); got != "15minute" {
		t.Errorf("Timeframe() = %q, want 15minute", got)
	}
}

func TestTimeFrame(t *testing.T) {
	tests := []struct {
		ts   domain.Timespan
		n    int
		want marketdata.TimeFrame
	}{
		{domain.TimespanMinute, 5, marketdata.NewTimeFrame(5, marketdata.Min)},
		{domain.TimespanHour, 1, marketdata.NewTimeFrame(1, marketdata.Hour)},
		{domain.TimespanDay, 1, marketdata.NewTimeFrame(1, marketdata.Day)},
		{domain.TimespanWeek, 1, marketdata.NewTimeFrame(1, marketdata.Week)},
		{domain.TimespanMonth, 3, marketdata.NewTimeFrame(3, marketdata.Month)},
	}
	for _, tt := range tests {
		got, err := timeFrame(tt.ts, tt.n)
		if err != nil {
			t.Fatalf("timeFrame(%s, %d): %v", tt.ts, tt.n, err)
		}
		if got != tt.want {
			t.Errorf("timeFrame(%s, %d) = %v, want %v", tt.ts, tt.n, got, tt.want)
		}
	}
	if _, err := timeFrame("decade", 1); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("timeFrame(decade) error = %v, want ErrInvalidRequest", err)
	}
}

func TestConvertBar(t *testing.T) {
	ts := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)
	got := convertBar("AAPL", marketdata.Bar{
		Timestamp:  ts,
		Open:       185,
		High:       186.5,
		Low:        184,
		Close:      185.5,
		Volume:     50000000,
		TradeCount: 500000,
		VWAP:       185.25,
	})
	if got.Symbol != "AAPL" || !got.Timestamp.Equal(ts) || got.Close != 185.5 || got.Volume != 50000000 || got.TradeCount != 500000 {
		t.Errorf("convertBar = %+v", got)
	}
}

func TestCachedFetcherServesCoveredWindow(t *testing.T) {
	up := &fakeUpstream{}
	cf := NewCachedFetcher(up, store.NewParquetStore(t.TempDir()))
	cf.now = func() time.Time { return date(6, 1) }
	ctx := context.Background()

	bars, err := cf.FetchBars(ctx, dailyRequest(date(1, 1), date(1, 31)))
	if err != nil {
		t.Fatalf("FetchBars (miss): %v", err)
	}
	if len(bars) != 31 {
		t.Fatalf("FetchBars (miss) returned %d bars, want 31", len(bars))
	}
	if up.last.Ticker != "AAPL" {
		t.Errorf("upstream ticker = %q, want upper-cased AAPL", up.last.Ticker)
	}

	bars, err = cf.FetchBars(ctx, dailyRequest(date(1, 10), date(1, 20)))
	if err != nil {
		t.Fatalf("FetchBars (hit): %v", err)
	}
	if len(bars) != 11 {
		t.Errorf("FetchBars (hit) returned %d bars, want 11", len(bars))
	}
	if n := up.calls.Load(); n != 1 {
		t.Errorf("upstream called %d times, want 1", n)
	}
}

func TestCachedFetcherExtendsCoverage(t *testing.T) {
	up := &fakeUpstream{}
	cache, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "bars.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer cache.Close()

	cf := NewCachedFetcher(up, cache)
	cf.now = func() time.Time { return date(6, 1) }
	ctx := context.Background()

	if _, err := cf.FetchBars(ctx, dailyRequest(date(1, 10), date(1, 20))); err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	bars, err := cf.FetchBars(ctx, dailyRequest(date(1, 15), date(1, 25)))
	if err != nil {
		t.Fatalf("FetchBars (extend): %v", err)
	}
	if len(bars) != 11 {
		t.Errorf("FetchBars (extend) returned %d bars, want 11", len(bars))
	}
	if !up.last.From.Equal(date(1, 10)) {
		t.Errorf("second upstream From = %v, want union start %v", up.last.From, date(1, 10))
	}

	w, ok, err := cache.Coverage(ctx, "AAPL", "1day")
	if err != nil || !ok {
		t.Fatalf("Coverage = ok %v, err %v", ok, err)
	}
	if !w.Covers(date(1, 10), date(1, 25)) {
		t.Errorf("coverage %+v does not span the union", w)
	}
}

func TestCachedFetcherDoesNotCoverToday(t *testing.T) {
	up := &fakeUpstream{}
	cf := NewCachedFetcher(up, store.NewParquetStore(t.TempDir()))
	cf.now = func() time.Time { return date(1, 20).Add(14 * time.Hour) }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cf.FetchBars(ctx, dailyRequest(date(1, 10), date(1, 20))); err != nil {
			t.Fatalf("FetchBars %d: %v", i, err)
		}
	}
	if n := up.calls.Load(); n != 2 {
		t.Errorf("upstream called %d times, want 2 for a window reaching today", n)
	}
}

func TestCachedFetcherPropagatesUpstreamError(t *testing.T) {
	boom := errors.New("upstream down")
	cf := NewCachedFetcher(&fakeUpstream{err: boom}, store.NewParquetStore(t.TempDir()))

	if _, err := cf.FetchBars(context.Background(), dailyRequest(date(1, 1), date(1, 2))); !errors.Is(err, boom) {
		t.Errorf("FetchBars error = %v, want %v", err, boom)
	}
}
