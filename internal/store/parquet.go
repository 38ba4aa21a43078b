package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"orbiter/internal/domain"
)

var _ Cache = (*ParquetStore)(nil)

// ParquetStore implements Cache with one directory per series:
//
//	<DataDir>/<timeframe>/<SYMBOL>/<YYYY>.parquet
//	<DataDir>/<timeframe>/<SYMBOL>/coverage.parquet
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at dataDir.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// barRow is the on-disk bar schema. The symbol is implied by the directory.
type barRow struct {
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     float64 `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

type coverageRow struct {
	Start int64 `parquet:"start,timestamp(millisecond)"`
	End   int64 `parquet:"end,timestamp(millisecond)"`
}

func (r barRow) bar(symbol string) domain.Bar {
	return domain.Bar{
		Symbol:     symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

func rowOf(b domain.Bar) barRow {
	return barRow{
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

// WriteBars merges bars into the yearly files of their series. A bar with a
// timestamp already on disk replaces the stored one.
func (s *ParquetStore) WriteBars(_ context.Context, timeframe string, bars []domain.Bar) error {
	type partition struct {
		symbol string
		year   int
	}
	parts := make(map[partition][]barRow)
	for _, b := range bars {
		p := partition{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.UTC().Year()}
		parts[p] = append(parts[p], rowOf(b))
	}

	for p, rows := range parts {
		path := s.barPath(p.symbol, timeframe, p.year)
		stored, err := readRows[barRow](path)
		if err != nil {
			return fmt.Errorf("%s %s %d: %w", timeframe, p.symbol, p.year, err)
		}
		if err := writeRows(path, upsertRows(stored, rows)); err != nil {
			return fmt.Errorf("%s %s %d: %w", timeframe, p.symbol, p.year, err)
		}
	}
	return nil
}

// ReadBars returns the series' bars in [start, end], oldest first.
func (s *ParquetStore) ReadBars(_ context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)
	lo, hi := start.UnixMilli(), end.UnixMilli()

	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		rows, err := readRows[barRow](s.barPath(symbol, timeframe, year))
		if err != nil {
			return nil, fmt.Errorf("%s %s %d: %w", timeframe, symbol, year, err)
		}
		for _, r := range rows {
			if r.Timestamp >= lo && r.Timestamp <= hi {
				bars = append(bars, r.bar(symbol))
			}
		}
	}
	return bars, nil
}

// ListSymbols returns the series directories present for timeframe.
func (s *ParquetStore) ListSymbols(_ context.Context, timeframe string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, timeframe))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	slices.Sort(symbols)
	return symbols, nil
}

// Coverage reads the series' coverage file.
func (s *ParquetStore) Coverage(_ context.Context, symbol, timeframe string) (Window, bool, error) {
	rows, err := readRows[coverageRow](s.coveragePath(symbol, timeframe))
	if err != nil || len(rows) == 0 {
		return Window{}, false, err
	}
	last := rows[len(rows)-1]
	return Window{Start: time.UnixMilli(last.Start).UTC(), End: time.UnixMilli(last.End).UTC()}, true, nil
}

// SetCoverage overwrites the series' coverage file.
func (s *ParquetStore) SetCoverage(_ context.Context, symbol, timeframe string, w Window) error {
	return writeRows(s.coveragePath(symbol, timeframe), []coverageRow{{
		Start: w.Start.UnixMilli(),
		End:   w.End.UnixMilli(),
	}})
}

func (s *ParquetStore) seriesDir(symbol, timeframe string) string {
	return filepath.Join(s.DataDir, timeframe, strings.ToUpper(symbol))
}

func (s *ParquetStore) barPath(symbol, timeframe string, year int) string {
	return filepath.Join(s.seriesDir(symbol, timeframe), strconv.Itoa(year)+".parquet")
}

func (s *ParquetStore) coveragePath(symbol, timeframe string) string {
	return filepath.Join(s.seriesDir(symbol, timeframe), "coverage.parquet")
}

func writeRows[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, rows)
}

// readRows returns nil rows and no error when path does not exist.
func readRows[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// upsertRows overlays incoming on stored by timestamp and returns the result
// in timestamp order.
func upsertRows(stored, incoming []barRow) []barRow {
	byTS := make(map[int64]barRow, len(stored)+len(incoming))
	for _, r := range stored {
		byTS[r.Timestamp] = r
	}
	for _, r := range incoming {
		byTS[r.Timestamp] = r
	}

	out := make([]barRow, 0, len(byTS))
	for _, r := range byTS {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b barRow) int { return cmp.Compare(a.Timestamp, b.Timestamp) })
	return out
}
