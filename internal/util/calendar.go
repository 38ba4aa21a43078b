package util

import (
	"math"
	"time"
)

// USSessionMinutes is the length of the regular US equity session.
const USSessionMinutes = 390

// TradingCalendar provides weekday awareness for US equities. Exchange
// holidays are not modelled; callers that need a number of sessions pad the
// result.
type TradingCalendar struct{}

// NewTradingCalendar creates a TradingCalendar.
func NewTradingCalendar() *TradingCalendar {
	return &TradingCalendar{}
}

// IsTradingDay reports whether t falls on a weekday.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// SessionsBefore walks back n trading days from t and returns midnight UTC
// of the earliest one. A non-positive n returns t unchanged.
func (tc *TradingCalendar) SessionsBefore(t time.Time, n int) time.Time {
	if n <= 0 {
		return t
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for n > 0 {
		d = d.AddDate(0, 0, -1)
		if tc.IsTradingDay(d) {
			n--
		}
	}
	return d
}

// LookbackStart returns a start time early enough that at least n bars of
// width step precede from. Intraday bars are assumed to cover only the
// regular session. A holiday allowance of one extra session per twenty is
// added.
func (tc *TradingCalendar) LookbackStart(from time.Time, step time.Duration, n int) time.Time {
	if n <= 0 || step <= 0 {
		return from
	}
	day := 24 * time.Hour
	if step > day {
		// Weekly and monthly bars are calendar based already.
		return from.Add(-step*time.Duration(n) - 7*day)
	}

	var sessions int
	if step < day {
		perSession := math.Max(1, math.Floor(float64(USSessionMinutes*time.Minute)/float64(step)))
		sessions = int(math.Ceil(float64(n) / perSession))
	} else {
		sessions = n
	}
	sessions += sessions/20 + 1
	return tc.SessionsBefore(from, sessions)
}
