// Package backtest replays price bars through a strategy tree and reports the
// resulting trades, balances and benchmark across tickers.
package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orbiter/internal/domain"
	"orbiter/internal/strategy"
)

// EntryTime selects when a signal is executed.
type EntryTime string

const (
	// EntryTimeDay executes on the signal bar, at its close.
	EntryTimeDay EntryTime = "day"
	// EntryTimeNextDay executes at the open of the bar after the signal.
	EntryTimeNextDay EntryTime = "next_day"
)

// ErrNoData is returned by the simulator when a ticker has no bars.
var ErrNoData = errors.New("no candles")

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Settings parameterise a backtest run. From and To accept either a date
// (2006-01-02) or an RFC 3339 timestamp.
type Settings struct {
	InitialBalance   float64         `json:"initial_balance" yaml:"initial_balance"`
	FeePct           float64         `json:"fee_pct" yaml:"fee_pct"`
	TruncateNominals bool            `json:"truncate_nominals" yaml:"truncate_nominals"`
	EntryTime        EntryTime       `json:"entry_time" yaml:"entry_time"`
	From             string          `json:"from" yaml:"from"`
	To               string          `json:"to" yaml:"to"`
	Timespan         domain.Timespan `json:"timespan" yaml:"timespan"`
	Range            int             `json:"range" yaml:"range"`

	// feeSet and truncateSet record that a decoded document carried the
	// field, so an explicit zero is not replaced by a default.
	feeSet, truncateSet bool

	from, to time.Time
}

type plainSettings Settings

// settingsWire overrides the fee and truncation fields of plainSettings with
// pointers so their presence survives a JSON round trip.
type settingsWire struct {
	plainSettings
	FeePct           *float64 `json:"fee_pct,omitempty"`
	TruncateNominals *bool    `json:"truncate_nominals,omitempty"`
}

// MarshalJSON omits fee_pct and truncate_nominals when they are zero and
// were never set explicitly.
func (s Settings) MarshalJSON() ([]byte, error) {
	w := settingsWire{plainSettings: plainSettings(s)}
	if s.feeSet || s.FeePct != 0 {
		w.FeePct = &s.FeePct
	}
	if s.truncateSet || s.TruncateNominals {
		w.TruncateNominals = &s.TruncateNominals
	}
	return json.Marshal(w)
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	var w settingsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Settings(w.plainSettings)
	if w.FeePct != nil {
		s.FeePct, s.feeSet = *w.FeePct, true
	}
	if w.TruncateNominals != nil {
		s.TruncateNominals, s.truncateSet = *w.TruncateNominals, true
	}
	return nil
}

func (s *Settings) UnmarshalYAML(node *yaml.Node) error {
	var p plainSettings
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = Settings(p)
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			switch node.Content[i].Value {
			case "fee_pct":
				s.feeSet = true
			case "truncate_nominals":
				s.truncateSet = true
			}
		}
	}
	return nil
}

// Normalize fills defaults, validates the settings and parses the date
// range. It must be called before the settings are used by a Runner.
func (s *Settings) Normalize() error {
	if s.EntryTime == "" {
		s.EntryTime = EntryTimeDay
	}
	if s.Timespan == "" {
		s.Timespan = domain.TimespanDay
	}
	if s.Range == 0 {
		s.Range = 1
	}

	if s.InitialBalance <= 0 {
		return invalid("initial_balance", "must be positive, got %g", s.InitialBalance)
	}
	if s.FeePct < 0 || s.FeePct >= 1 {
		return invalid("fee_pct", "must be in [0, 1), got %g", s.FeePct)
	}
	if s.EntryTime != EntryTimeDay && s.EntryTime != EntryTimeNextDay {
		return invalid("entry_time", "must be %q or %q, got %q", EntryTimeDay, EntryTimeNextDay, s.EntryTime)
	}
	if _, ok := s.Timespan.Duration(1); !ok {
		return invalid("timespan", "unsupported value %q", s.Timespan)
	}
	if s.Range < 1 {
		return invalid("range", "must be at least 1, got %d", s.Range)
	}

	var err error
	if s.from, err = ParseDate(s.From); err != nil {
		return invalid("from", "%v", err)
	}
	if s.to, err = ParseDate(s.To); err != nil {
		return invalid("to", "%v", err)
	}
	if s.to.Before(s.from) {
		return invalid("to", "%s is before from %s", s.To, s.From)
	}
	return nil
}

// WithDefaults returns s with unset fields taken from d, field by field.
// A fee of 0 or a false truncation flag counts as unset only when the
// decoded document did not carry the field.
func (s Settings) WithDefaults(d Settings) Settings {
	if s.InitialBalance == 0 {
		s.InitialBalance = d.InitialBalance
	}
	if !s.feeSet && s.FeePct == 0 {
		s.FeePct = d.FeePct
	}
	if !s.truncateSet && !s.TruncateNominals {
		s.TruncateNominals = d.TruncateNominals
	}
	if s.EntryTime == "" {
		s.EntryTime = d.EntryTime
	}
	if s.Timespan == "" {
		s.Timespan = d.Timespan
	}
	if s.Range == 0 {
		s.Range = d.Range
	}
	return s
}

// Window returns the parsed date range. Only valid after Normalize.
func (s Settings) Window() (from, to time.Time) {
	return s.from, s.to
}

// ParseDate accepts YYYY-MM-DD or RFC 3339. Date-only values are UTC
// midnight.
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("date is required")
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", v)
	}
	return t.UTC(), nil
}

// ---------------------------------------------------------------------------
// Request / response
// ---------------------------------------------------------------------------

// Trading is one ticker to simulate. When ExitStrategy is set the pair is
// wrapped into a default-full-strategy.
type Trading struct {
	Ticker       string               `json:"ticker" yaml:"ticker"`
	Strategy     strategy.Definition  `json:"strategy" yaml:"strategy"`
	ExitStrategy *strategy.Definition `json:"exit_strategy,omitempty" yaml:"exit_strategy"`
}

// Request is a complete backtest request.
type Request struct {
	Settings Settings  `json:"settings" yaml:"settings"`
	Tradings []Trading `json:"tradings" yaml:"tradings"`
}

// Validate normalises the settings and checks every trading entry.
func (r *Request) Validate() error {
	if err := r.Settings.Normalize(); err != nil {
		return err
	}
	for i, t := range r.Tradings {
		if strings.TrimSpace(t.Ticker) == "" {
			return invalid(fmt.Sprintf("tradings[%d].ticker", i), "is required")
		}
		if t.Strategy.ID == "" {
			return invalid(fmt.Sprintf("tradings[%d].strategy.id", i), "is required")
		}
	}
	return nil
}

// Response is the result of a backtest request. TradingsResults follows the
// order of Request.Tradings.
type Response struct {
	RunID           string          `json:"run_id"`
	Benchmark       Benchmark       `json:"benchmark"`
	TradingsResults []TradingResult `json:"tradings_results"`
}

// TradingResult is the outcome for one ticker. Either Error is set, or
// Candles, Balance and StrategyDef are. Ticker is upper-cased; Error names
// the ticker as it was requested.
type TradingResult struct {
	Ticker      string               `json:"ticker"`
	Candles     []TraceEntry         `json:"trading_candles,omitempty"`
	Balance     *BalanceSummary      `json:"balance,omitempty"`
	StrategyDef *strategy.Definition `json:"strategy_def,omitempty"`
	Trades      []Trade              `json:"trades,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// Failed reports whether the result is an error placeholder.
func (r TradingResult) Failed() bool {
	return r.Balance == nil
}
