// Package store defines storage interfaces for caching OHLCV bars fetched
// from market-data providers, with Parquet and SQLite implementations.
package store

import (
	"context"
	"time"

	"orbiter/internal/domain"
)

// Window is an inclusive time range that has been fetched in full.
type Window struct {
	Start time.Time
	End   time.Time
}

// Covers reports whether w contains [start, end].
func (w Window) Covers(start, end time.Time) bool {
	return !start.Before(w.Start) && !end.After(w.End)
}

// Union returns the smallest window containing both w and o.
func (w Window) Union(o Window) Window {
	out := w
	if o.Start.Before(out.Start) {
		out.Start = o.Start
	}
	if o.End.After(out.End) {
		out.End = o.End
	}
	return out
}

// BarStore persists and retrieves OHLCV bar data. timeframe identifies the
// bar width, e.g. "1day" or "15minute".
type BarStore interface {
	// WriteBars persists a batch of bars to storage. Bars with an existing
	// (symbol, timeframe, timestamp) replace the stored ones.
	WriteBars(ctx context.Context, timeframe string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and timeframe within
	// [start, end], ordered by timestamp.
	ReadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols stored for timeframe.
	ListSymbols(ctx context.Context, timeframe string) ([]string, error)
}

// CoverageStore records which window of a series has been fetched, so a
// cache can tell an empty period apart from one never requested.
type CoverageStore interface {
	// Coverage returns the recorded window. ok is false when nothing has
	// been recorded.
	Coverage(ctx context.Context, symbol, timeframe string) (w Window, ok bool, err error)

	// SetCoverage replaces the recorded window.
	SetCoverage(ctx context.Context, symbol, timeframe string, w Window) error
}

// Cache is a BarStore that also tracks coverage.
type Cache interface {
	BarStore
	CoverageStore
}
