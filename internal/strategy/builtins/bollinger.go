package builtins

import (
	"fmt"

	"orbiter/internal/domain"
	"orbiter/internal/strategy"
)

// ---------------------------------------------------------------------------
// StandardBollinger
// ---------------------------------------------------------------------------

const (
	standardBollingerName        = "Standard Bollinger Bands"
	standardBollingerDescription = "Mean reversion on Bollinger Band breaches, only while ADX reports a ranging market."
)

// BollingerConfig configures StandardBollinger.
type BollingerConfig struct {
	Period               int     `json:"period"`
	StdDev               float64 `json:"std_dev"`
	DMIPeriod            int     `json:"dmi_period"`
	ADXStrengthThreshold float64 `json:"adx_strength_threshold"`
}

// DefaultBollingerConfig returns the StandardBollinger defaults.
func DefaultBollingerConfig() BollingerConfig {
	return BollingerConfig{Period: 20, StdDev: 2, DMIPeriod: 14, ADXStrengthThreshold: 20}
}

// StandardBollinger buys below the lower band and sells above the upper band
// when the trend is weak.
type StandardBollinger struct {
	cfg    BollingerConfig
	bbKey  domain.IndicatorKey
	dmiKey domain.IndicatorKey
}

var (
	_ strategy.Strategy      = (*StandardBollinger)(nil)
	_ strategy.IndicatorUser = (*StandardBollinger)(nil)
	_ strategy.Describer     = (*StandardBollinger)(nil)
)

// NewStandardBollinger creates a StandardBollinger from cfg.
func NewStandardBollinger(cfg BollingerConfig) (*StandardBollinger, error) {
	if cfg.Period <= 0 || cfg.DMIPeriod <= 0 {
		return nil, fmt.Errorf("%w: periods must be positive", strategy.ErrInvalidConfig)
	}
	if cfg.StdDev <= 0 {
		return nil, fmt.Errorf("%w: std_dev must be positive, got %g", strategy.ErrInvalidConfig, cfg.StdDev)
	}
	return &StandardBollinger{
		cfg:    cfg,
		bbKey:  domain.BollingerKey(cfg.Period, cfg.StdDev),
		dmiKey: domain.DMIKey(cfg.DMIPeriod),
	}, nil
}

func newStandardBollinger(_ *strategy.Registry, def strategy.Definition) (strategy.Node, error) {
	cfg := DefaultBollingerConfig()
	if err := def.Decode(&cfg); err != nil {
		return strategy.Node{}, err
	}
	s, err := NewStandardBollinger(cfg)
	if err != nil {
		return strategy.Node{}, err
	}
	return strategy.StrategyNode(def, s), nil
}

func (s *StandardBollinger) ID() string          { return StandardBollingerID }
func (s *StandardBollinger) Name() string        { return standardBollingerName }
func (s *StandardBollinger) Description() string { return standardBollingerDescription }

func (s *StandardBollinger) Indicators() []domain.IndicatorKey {
	return []domain.IndicatorKey{s.bbKey, s.dmiKey}
}

func (s *StandardBollinger) Process(bars []domain.Bar) strategy.Result {
	if len(bars) == 0 {
		return strategy.NewResult(domain.OperationError)
	}
	last := bars[len(bars)-1]
	bb, ok := last.Indicators.Bollinger(s.bbKey)
	if !ok || !bb.Ready() {
		return strategy.NewResult(domain.OperationError)
	}
	dmi, ok := last.Indicators.DMI(s.dmiKey)
	if !ok || dmi.ADX == nil {
		return strategy.NewResult(domain.OperationError)
	}

	if *dmi.ADX >= s.cfg.ADXStrengthThreshold {
		return strategy.NewResult(domain.OperationHold)
	}
	switch {
	case last.Close < *bb.Lower:
		return strategy.NewResult(domain.OperationBuy)
	case last.Close > *bb.Upper:
		return strategy.NewResult(domain.OperationSell)
	default:
		return strategy.NewResult(domain.OperationHold)
	}
}

// ---------------------------------------------------------------------------
// RSIBollinger
// ---------------------------------------------------------------------------

const (
	rsiBollingerName        = "RSI Bollinger"
	rsiBollingerDescription = "Buys when price closes below the lower band with an oversold RSI, sells above the upper band with an overbought RSI."
)

// RSIBollingerConfig configures RSIBollinger.
type RSIBollingerConfig struct {
	BBPeriod      int     `json:"bb_period"`
	BBStdDev      float64 `json:"bb_std_dev"`
	RSIPeriod     int     `json:"rsi_period"`
	RSIOversold   float64 `json:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought"`
}

// DefaultRSIBollingerConfig returns the RSIBollinger defaults.
func DefaultRSIBollingerConfig() RSIBollingerConfig {
	return RSIBollingerConfig{
		BBPeriod:      30,
		BBStdDev:      2,
		RSIPeriod:     13,
		RSIOversold:   25,
		RSIOverbought: 75,
	}
}

// RSIBollinger combines band breaches with RSI extremes.
type RSIBollinger struct {
	cfg    RSIBollingerConfig
	bbKey  domain.IndicatorKey
	rsiKey domain.IndicatorKey
}

var (
	_ strategy.Strategy      = (*RSIBollinger)(nil)
	_ strategy.IndicatorUser = (*RSIBollinger)(nil)
	_ strategy.Describer     = (*RSIBollinger)(nil)
)

// NewRSIBollinger creates an RSIBollinger from cfg.
func NewRSIBollinger(cfg RSIBollingerConfig) (*RSIBollinger, error) {
	if cfg.BBPeriod <= 0 || cfg.RSIPeriod <= 0 {
		return nil, fmt.Errorf("%w: periods must be positive", strategy.ErrInvalidConfig)
	}
	if cfg.BBStdDev <= 0 {
		return nil, fmt.Errorf("%w: bb_std_dev must be positive, got %g", strategy.ErrInvalidConfig, cfg.BBStdDev)
	}
	if cfg.RSIOversold >= cfg.RSIOverbought {
		return nil, fmt.Errorf("%w: rsi_oversold (%g) must be below rsi_overbought (%g)",
			strategy.ErrInvalidConfig, cfg.RSIOversold, cfg.RSIOverbought)
	}
	return &RSIBollinger{
		cfg:    cfg,
		bbKey:  domain.BollingerKey(cfg.BBPeriod, cfg.BBStdDev),
		rsiKey: domain.RSIKey(cfg.RSIPeriod),
	}, nil
}

func newRSIBollinger(_ *strategy.Registry, def strategy.Definition) (strategy.Node, error) {
	cfg := DefaultRSIBollingerConfig()
	if err := def.Decode(&cfg); err != nil {
		return strategy.Node{}, err
	}
	s, err := NewRSIBollinger(cfg)
	if err != nil {
		return strategy.Node{}, err
	}
	return strategy.StrategyNode(def, s), nil
}

func (s *RSIBollinger) ID() string          { return RSIBollingerID }
func (s *RSIBollinger) Name() string        { return rsiBollingerName }
func (s *RSIBollinger) Description() string { return rsiBollingerDescription }

func (s *RSIBollinger) Indicators() []domain.IndicatorKey {
	return []domain.IndicatorKey{s.bbKey, s.rsiKey}
}

func (s *RSIBollinger) Process(bars []domain.Bar) strategy.Result {
	if len(bars) == 0 {
		return strategy.NewResult(domain.OperationError)
	}
	last := bars[len(bars)-1]
	bb, ok := last.Indicators.Bollinger(s.bbKey)
	if !ok || !bb.Ready() {
		return strategy.NewResult(domain.OperationError)
	}
	rsi, ok := last.Indicators.RSI(s.rsiKey)
	if !ok || !rsi.Ready() {
		return strategy.NewResult(domain.OperationError)
	}

	switch {
	case last.Close < *bb.Lower && *rsi.RSI < s.cfg.RSIOversold:
		return strategy.NewResult(domain.OperationBuy)
	case last.Close > *bb.Upper && *rsi.RSI > s.cfg.RSIOverbought:
		return strategy.NewResult(domain.OperationSell)
	default:
		return strategy.NewResult(domain.OperationHold)
	}
}
