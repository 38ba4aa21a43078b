// Package domain defines the core value types shared across orbiter: price
// bars, indicator records attached to bars, and the signal vocabulary emitted
// by strategies.
package domain

import "time"

// ---------------------------------------------------------------------------
// Operation
// ---------------------------------------------------------------------------

// Operation is the signal vocabulary produced by every strategy.
type Operation string

const (
	OperationBuy   Operation = "BUY"
	OperationSell  Operation = "SELL"
	OperationHold  Operation = "HOLD"
	OperationError Operation = "ERROR"
)

// Valid reports whether o is one of the four known operations.
func (o Operation) Valid() bool {
	switch o {
	case OperationBuy, OperationSell, OperationHold, OperationError:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Bars
// ---------------------------------------------------------------------------

// Bar is a single OHLCV sample for a fixed granularity, optionally hydrated
// with indicator results. Bars are treated as immutable once hydrated.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int64
	VWAP       float64
	Indicators IndicatorSet
}

// Date returns the bar's timestamp as an RFC3339 string in UTC.
func (b Bar) Date() string {
	return b.Timestamp.UTC().Format(time.RFC3339)
}

// Timespan is the unit of a bar's granularity.
type Timespan string

const (
	TimespanMinute Timespan = "minute"
	TimespanHour   Timespan = "hour"
	TimespanDay    Timespan = "day"
	TimespanWeek   Timespan = "week"
	TimespanMonth  Timespan = "month"
)

// Duration returns the approximate wall-clock length of n units of ts.
// Months are approximated as 30 days.
func (ts Timespan) Duration(n int) (time.Duration, bool) {
	var unit time.Duration
	switch ts {
	case TimespanMinute:
		unit = time.Minute
	case TimespanHour:
		unit = time.Hour
	case TimespanDay:
		unit = 24 * time.Hour
	case TimespanWeek:
		unit = 7 * 24 * time.Hour
	case TimespanMonth:
		unit = 30 * 24 * time.Hour
	default:
		return 0, false
	}
	return unit * time.Duration(n), true
}
