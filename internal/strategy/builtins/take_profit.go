package builtins

import (
	"fmt"

	"orbiter/internal/domain"
	"orbiter/internal/strategy"
)

const (
	takeProfitName        = "Take Profit / Stop Loss"
	takeProfitDescription = "Closes the position once the adverse price moves pct away from the entry price. A negative pct acts as a stop loss."
)

// TakeProfitConfig configures TakeProfitExit. Pct is signed: positive values
// take profit, negative values stop losses, zero disables the exit.
type TakeProfitConfig struct {
	Pct float64 `json:"pct"`
}

// DefaultTakeProfitConfig returns the TakeProfitExit defaults.
func DefaultTakeProfitConfig() TakeProfitConfig {
	return TakeProfitConfig{Pct: 0.1}
}

// TakeProfitExit is a fixed-threshold ExitStrategy.
type TakeProfitExit struct {
	pct float64
}

var (
	_ strategy.ExitStrategy = (*TakeProfitExit)(nil)
	_ strategy.Describer    = (*TakeProfitExit)(nil)
)

// NewTakeProfitExit creates a TakeProfitExit. pct must be greater than -1 so
// the fill price stays positive.
func NewTakeProfitExit(cfg TakeProfitConfig) (*TakeProfitExit, error) {
	if cfg.Pct <= -1 {
		return nil, fmt.Errorf("%w: pct must be greater than -1, got %g", strategy.ErrInvalidConfig, cfg.Pct)
	}
	return &TakeProfitExit{pct: cfg.Pct}, nil
}

func newTakeProfitExit(_ *strategy.Registry, def strategy.Definition) (strategy.Node, error) {
	cfg := DefaultTakeProfitConfig()
	if err := def.Decode(&cfg); err != nil {
		return strategy.Node{}, err
	}
	e, err := NewTakeProfitExit(cfg)
	if err != nil {
		return strategy.Node{}, err
	}
	return strategy.ExitNode(def, e), nil
}

func (e *TakeProfitExit) ID() string          { return TakeProfitExitID }
func (e *TakeProfitExit) Name() string        { return takeProfitName }
func (e *TakeProfitExit) Description() string { return takeProfitDescription }

// ShouldExit reports whether the move from entryPrice to adversePrice reached
// the threshold.
func (e *TakeProfitExit) ShouldExit(entryPrice, adversePrice float64, _ []domain.Bar) bool {
	if e.pct == 0 || entryPrice == 0 || adversePrice == 0 {
		return false
	}
	change := (adversePrice - entryPrice) / entryPrice
	if e.pct > 0 {
		return change >= e.pct
	}
	return change <= e.pct
}

// ExitPrice is the threshold price itself.
func (e *TakeProfitExit) ExitPrice(entryPrice, _ float64, _ []domain.Bar) float64 {
	return entryPrice * (1 + e.pct)
}
