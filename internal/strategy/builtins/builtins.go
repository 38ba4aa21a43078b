// Package builtins provides the built-in strategy implementations that ship
// with orbiter and registers them with a strategy.Registry.
package builtins

import (
	"orbiter/internal/domain"
	"orbiter/internal/strategy"
)

// Registry ids of the built-in strategies.
const (
	StandardDMIID         = "standard-dmi"
	StandardBollingerID   = "standard-bollinger-bands"
	RSIBollingerID        = "rsi-bollinger"
	TakeProfitExitID      = "take-profit-exit"
	DefaultFullStrategyID = "default-full-strategy"
	DelayedCompositeID    = "delayed-composite"
)

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register(strategy.Entry{
		ID:          StandardDMIID,
		Name:        standardDMIName,
		Description: standardDMIDescription,
		Kind:        strategy.KindStrategy,
		New:         newStandardDMI,
	})
	r.Register(strategy.Entry{
		ID:          StandardBollingerID,
		Name:        standardBollingerName,
		Description: standardBollingerDescription,
		Kind:        strategy.KindStrategy,
		New:         newStandardBollinger,
	})
	r.Register(strategy.Entry{
		ID:          RSIBollingerID,
		Name:        rsiBollingerName,
		Description: rsiBollingerDescription,
		Kind:        strategy.KindStrategy,
		New:         newRSIBollinger,
	})
	r.Register(strategy.Entry{
		ID:          TakeProfitExitID,
		Name:        takeProfitName,
		Description: takeProfitDescription,
		Kind:        strategy.KindExit,
		New:         newTakeProfitExit,
	})
	r.Register(strategy.Entry{
		ID:          DefaultFullStrategyID,
		Name:        defaultFullName,
		Description: defaultFullDescription,
		Kind:        strategy.KindFull,
		New:         newDefaultFull,
	})
	r.Register(strategy.Entry{
		ID:          DelayedCompositeID,
		Name:        delayedCompositeName,
		Description: delayedCompositeDescription,
		Kind:        strategy.KindFull,
		New:         newDelayedComposite,
	})
}

// NewRegistry returns a registry pre-populated with all built-ins.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}

// lastTwo returns the current and previous bar, or false when there is not
// enough history.
func lastTwo(bars []domain.Bar) (last, prev domain.Bar, ok bool) {
	if len(bars) < 2 {
		return domain.Bar{}, domain.Bar{}, false
	}
	return bars[len(bars)-1], bars[len(bars)-2], true
}
