package builtins

import (
	"fmt"

	"orbiter/internal/domain"
	"orbiter/internal/strategy"
)

const (
	standardDMIName        = "Standard DMI"
	standardDMIDescription = "Buys when +DI crosses above -DI while ADX signals a strong trend, sells on the opposite crossover."
)

// DMIConfig configures StandardDMI.
type DMIConfig struct {
	Period               int     `json:"period"`
	ADXStrengthThreshold float64 `json:"adx_strength_threshold"`
}

// DefaultDMIConfig returns the StandardDMI defaults.
func DefaultDMIConfig() DMIConfig {
	return DMIConfig{Period: 14, ADXStrengthThreshold: 20}
}

// StandardDMI trades directional-indicator crossovers filtered by trend
// strength.
type StandardDMI struct {
	cfg DMIConfig
	key domain.IndicatorKey
}

var (
	_ strategy.Strategy      = (*StandardDMI)(nil)
	_ strategy.IndicatorUser = (*StandardDMI)(nil)
	_ strategy.Describer     = (*StandardDMI)(nil)
)

// NewStandardDMI creates a StandardDMI from cfg.
func NewStandardDMI(cfg DMIConfig) (*StandardDMI, error) {
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive, got %d", strategy.ErrInvalidConfig, cfg.Period)
	}
	return &StandardDMI{cfg: cfg, key: domain.DMIKey(cfg.Period)}, nil
}

func newStandardDMI(_ *strategy.Registry, def strategy.Definition) (strategy.Node, error) {
	cfg := DefaultDMIConfig()
	if err := def.Decode(&cfg); err != nil {
		return strategy.Node{}, err
	}
	s, err := NewStandardDMI(cfg)
	if err != nil {
		return strategy.Node{}, err
	}
	return strategy.StrategyNode(def, s), nil
}

func (s *StandardDMI) ID() string          { return StandardDMIID }
func (s *StandardDMI) Name() string        { return standardDMIName }
func (s *StandardDMI) Description() string { return standardDMIDescription }

// Indicators returns the DMI series this strategy reads.
func (s *StandardDMI) Indicators() []domain.IndicatorKey {
	return []domain.IndicatorKey{s.key}
}

// Process evaluates the crossover on the last two bars.
func (s *StandardDMI) Process(bars []domain.Bar) strategy.Result {
	last, prev, ok := lastTwo(bars)
	if !ok {
		return strategy.NewResult(domain.OperationError)
	}
	cur, ok := last.Indicators.DMI(s.key)
	if !ok || !cur.Ready() {
		return strategy.NewResult(domain.OperationError)
	}
	before, ok := prev.Indicators.DMI(s.key)
	if !ok || before.DIPositive == nil || before.DINegative == nil {
		return strategy.NewResult(domain.OperationError)
	}

	if *cur.ADX <= s.cfg.ADXStrengthThreshold {
		return strategy.NewResult(domain.OperationHold)
	}
	switch {
	case *before.DIPositive < *before.DINegative && *cur.DIPositive > *cur.DINegative:
		return strategy.NewResult(domain.OperationBuy)
	case *before.DIPositive > *before.DINegative && *cur.DIPositive < *cur.DINegative:
		return strategy.NewResult(domain.OperationSell)
	default:
		return strategy.NewResult(domain.OperationHold)
	}
}
