// Package strategy defines the signal-generation contracts used by the
// backtest simulator (Strategy, ExitStrategy, FullStrategy) and provides a
// Registry that realises wire-level strategy definitions into live instances.
package strategy

import (
	"orbiter/internal/domain"
)

// Strategy generates a trading signal from a prefix of the bar history.
// Implementations are pure functions of the bars they are given.
type Strategy interface {
	// ID returns the registry id of this strategy.
	ID() string

	// Process evaluates the strategy on bars, where the last element is the
	// current bar.
	Process(bars []domain.Bar) Result
}

// ExitStrategy decides whether an open position should be force-closed based
// on its entry price and the worst price seen on the current bar.
type ExitStrategy interface {
	// ID returns the registry id of this exit strategy.
	ID() string

	// ShouldExit reports whether a position entered at entryPrice must be
	// closed given adversePrice (normally the current bar's low).
	ShouldExit(entryPrice, adversePrice float64, bars []domain.Bar) bool

	// ExitPrice returns the price at which the triggered exit is filled.
	ExitPrice(entryPrice, adversePrice float64, bars []domain.Bar) float64
}

// FullStrategy is a position-aware strategy. It may merge exit logic into
// its signal stream, in which case the Result carries an explicit ExitPrice.
type FullStrategy interface {
	// ID returns the registry id of this strategy.
	ID() string

	// ProcessPosition evaluates the strategy on bars given the current
	// position state. entryPrice is only meaningful when inPosition is true.
	ProcessPosition(bars []domain.Bar, inPosition bool, entryPrice float64) Result
}

// DayTime says which price of a bar an operation executes at.
type DayTime string

const (
	DayTimeOpen  DayTime = "open"
	DayTimeClose DayTime = "close"
)

// DayTimer is implemented by strategies whose decisions lag the current bar
// and therefore execute at a specific price of the bar.
type DayTimer interface {
	OperationDayTime() DayTime
}

// IndicatorUser is implemented by strategies that read indicator values from
// bars, so callers can hydrate exactly what is needed.
type IndicatorUser interface {
	Indicators() []domain.IndicatorKey
}

// Describer exposes human-readable metadata for a strategy.
type Describer interface {
	Name() string
	Description() string
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// Result is the outcome of evaluating a strategy on one bar.
type Result struct {
	Operation domain.Operation `json:"recommended_operation"`

	// ExitPrice is set only for a SELL triggered by an ExitStrategy.
	ExitPrice *float64 `json:"exit_price,omitempty"`

	// Trading is the wrapped trading strategy outcome of a full strategy.
	Trading *Result `json:"trading_strategy_result,omitempty"`
	// ExitTriggered reports whether the wrapped exit strategy fired.
	ExitTriggered bool `json:"exit_strategy_result,omitempty"`

	// Composite holds per-child, per-window-offset results of a composite.
	Composite []ChildResults `json:"composite_strategy_result,omitempty"`
}

// ChildResults groups the results of one composite child over a window.
type ChildResults struct {
	StrategyID string   `json:"strategy_id"`
	Results    []Result `json:"strategy_results"`
}

// NewResult returns a Result recommending op.
func NewResult(op domain.Operation) Result {
	return Result{Operation: op}
}

// Detail pairs a strategy's metadata with one evaluation result.
type Detail struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Result      Result `json:"result"`
}

// ---------------------------------------------------------------------------
// Adapters
// ---------------------------------------------------------------------------

// AsFull lifts a plain Strategy into a FullStrategy with no exit logic. The
// position arguments are ignored.
func AsFull(s Strategy) FullStrategy {
	if fs, ok := s.(FullStrategy); ok {
		return fs
	}
	return plainFull{s}
}

type plainFull struct {
	Strategy
}

func (p plainFull) ProcessPosition(bars []domain.Bar, _ bool, _ float64) Result {
	return p.Process(bars)
}

func (p plainFull) Indicators() []domain.IndicatorKey {
	return RequiredIndicators(p.Strategy)
}

// RequiredIndicators returns the indicator keys v depends on, or nil when v
// does not read indicators.
func RequiredIndicators(v any) []domain.IndicatorKey {
	if u, ok := v.(IndicatorUser); ok {
		return u.Indicators()
	}
	return nil
}

// MergeIndicators concatenates key lists dropping duplicates, preserving
// first-seen order.
func MergeIndicators(lists ...[]domain.IndicatorKey) []domain.IndicatorKey {
	seen := make(map[domain.IndicatorKey]struct{})
	var out []domain.IndicatorKey
	for _, l := range lists {
		for _, k := range l {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
