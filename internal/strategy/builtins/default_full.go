package builtins

import (
	"fmt"

	"orbiter/internal/domain"
	"orbiter/internal/strategy"
)

const (
	defaultFullName        = "Default Full Strategy"
	defaultFullDescription = "Combines a trading strategy with an exit strategy. The exit strategy is checked against the bar low before the trading signal."
)

// DefaultFullConfig holds the two child definitions.
type DefaultFullConfig struct {
	TradingStrategy strategy.Definition  `json:"trading_strategy"`
	ExitStrategy    *strategy.Definition `json:"exit_strategy"`
}

// DefaultFull merges a trading Strategy with an ExitStrategy.
type DefaultFull struct {
	trading strategy.Strategy
	exit    strategy.ExitStrategy
}

var (
	_ strategy.FullStrategy  = (*DefaultFull)(nil)
	_ strategy.IndicatorUser = (*DefaultFull)(nil)
	_ strategy.Describer     = (*DefaultFull)(nil)
)

// NewDefaultFull wraps trading and exit. exit may be nil, in which case the
// trading signal passes through unchanged.
func NewDefaultFull(trading strategy.Strategy, exit strategy.ExitStrategy) *DefaultFull {
	return &DefaultFull{trading: trading, exit: exit}
}

func newDefaultFull(r *strategy.Registry, def strategy.Definition) (strategy.Node, error) {
	var cfg DefaultFullConfig
	if err := def.Decode(&cfg); err != nil {
		return strategy.Node{}, err
	}
	if cfg.TradingStrategy.ID == "" {
		return strategy.Node{}, fmt.Errorf("%w: trading_strategy is required", strategy.ErrInvalidConfig)
	}
	trading, err := r.BuildStrategy(cfg.TradingStrategy)
	if err != nil {
		return strategy.Node{}, err
	}
	var exit strategy.ExitStrategy
	if cfg.ExitStrategy != nil && cfg.ExitStrategy.ID != "" {
		if exit, err = r.BuildExit(*cfg.ExitStrategy); err != nil {
			return strategy.Node{}, err
		}
	}
	return strategy.FullNode(def, NewDefaultFull(trading, exit)), nil
}

func (f *DefaultFull) ID() string          { return DefaultFullStrategyID }
func (f *DefaultFull) Name() string        { return defaultFullName }
func (f *DefaultFull) Description() string { return defaultFullDescription }

// Indicators returns what the trading strategy reads.
func (f *DefaultFull) Indicators() []domain.IndicatorKey {
	return strategy.RequiredIndicators(f.trading)
}

// ProcessPosition applies the merge rule: when a position is open, a fired
// exit strategy or a trading SELL both produce SELL, and only the exit
// strategy fixes the exit price. Otherwise the trading result passes through.
func (f *DefaultFull) ProcessPosition(bars []domain.Bar, inPosition bool, entryPrice float64) strategy.Result {
	trading := f.trading.Process(bars)
	res := strategy.Result{Operation: trading.Operation, Trading: &trading}

	if !inPosition || entryPrice <= 0 || len(bars) == 0 {
		return res
	}

	exitFired := false
	if f.exit != nil {
		low := bars[len(bars)-1].Low
		if f.exit.ShouldExit(entryPrice, low, bars) {
			exitFired = true
			price := f.exit.ExitPrice(entryPrice, low, bars)
			res.ExitPrice = &price
		}
	}
	res.ExitTriggered = exitFired
	if exitFired || trading.Operation == domain.OperationSell {
		res.Operation = domain.OperationSell
	}
	return res
}
