package builtins

import (
	"fmt"

	"orbiter/internal/domain"
	"orbiter/internal/strategy"
)

const (
	delayedCompositeName        = "Delayed Composite"
	delayedCompositeDescription = "Re-evaluates child strategies over a trailing window of bars and acts once enough BUY or SELL signals agree."
)

// DelayedCompositeConfig configures DelayedComposite. DelayMin and DelayMax
// are offsets back from the current bar.
type DelayedCompositeConfig struct {
	Strategies []strategy.Definition `json:"strategies"`
	MinSignals int                   `json:"min_signals"`
	DelayMin   int                   `json:"delay_min"`
	DelayMax   int                   `json:"delay_max"`
}

// DelayedComposite tallies child signals over a trailing window.
type DelayedComposite struct {
	children   []strategy.FullStrategy
	minSignals int
	delayMin   int
	delayMax   int
}

var (
	_ strategy.FullStrategy  = (*DelayedComposite)(nil)
	_ strategy.DayTimer      = (*DelayedComposite)(nil)
	_ strategy.IndicatorUser = (*DelayedComposite)(nil)
	_ strategy.Describer     = (*DelayedComposite)(nil)
)

// NewDelayedComposite creates a DelayedComposite over children.
func NewDelayedComposite(children []strategy.FullStrategy, minSignals, delayMin, delayMax int) (*DelayedComposite, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: at least one child strategy is required", strategy.ErrInvalidConfig)
	}
	if minSignals < 1 {
		return nil, fmt.Errorf("%w: min_signals must be at least 1, got %d", strategy.ErrInvalidConfig, minSignals)
	}
	if delayMin < 0 || delayMax < delayMin {
		return nil, fmt.Errorf("%w: need 0 <= delay_min <= delay_max, got %d..%d", strategy.ErrInvalidConfig, delayMin, delayMax)
	}
	return &DelayedComposite{
		children:   children,
		minSignals: minSignals,
		delayMin:   delayMin,
		delayMax:   delayMax,
	}, nil
}

func newDelayedComposite(r *strategy.Registry, def strategy.Definition) (strategy.Node, error) {
	cfg := DelayedCompositeConfig{MinSignals: 1}
	if err := def.Decode(&cfg); err != nil {
		return strategy.Node{}, err
	}
	children := make([]strategy.FullStrategy, 0, len(cfg.Strategies))
	for i, childDef := range cfg.Strategies {
		child, err := r.BuildFull(childDef)
		if err != nil {
			return strategy.Node{}, fmt.Errorf("strategies[%d]: %w", i, err)
		}
		children = append(children, child)
	}
	dc, err := NewDelayedComposite(children, cfg.MinSignals, cfg.DelayMin, cfg.DelayMax)
	if err != nil {
		return strategy.Node{}, err
	}
	return strategy.FullNode(def, dc), nil
}

func (d *DelayedComposite) ID() string          { return DelayedCompositeID }
func (d *DelayedComposite) Name() string        { return delayedCompositeName }
func (d *DelayedComposite) Description() string { return delayedCompositeDescription }

// OperationDayTime reports open when decisions lag at least one bar.
func (d *DelayedComposite) OperationDayTime() strategy.DayTime {
	if d.delayMin > 0 {
		return strategy.DayTimeOpen
	}
	return strategy.DayTimeClose
}

// Indicators merges the requirements of all children.
func (d *DelayedComposite) Indicators() []domain.IndicatorKey {
	lists := make([][]domain.IndicatorKey, 0, len(d.children))
	for _, c := range d.children {
		lists = append(lists, strategy.RequiredIndicators(c))
	}
	return strategy.MergeIndicators(lists...)
}

// window returns the inclusive bar index range evaluated for a history whose
// last index is last.
func (d *DelayedComposite) window(last int) (start, end int) {
	return max(0, last-d.delayMax), max(0, last-d.delayMin)
}

// ProcessPosition re-evaluates every child on every truncated history in the
// window and votes. BUY wins when both tallies reach MinSignals.
func (d *DelayedComposite) ProcessPosition(bars []domain.Bar, inPosition bool, entryPrice float64) strategy.Result {
	if len(bars) == 0 {
		return strategy.NewResult(domain.OperationHold)
	}
	start, end := d.window(len(bars) - 1)

	var buys, sells int
	composite := make([]strategy.ChildResults, 0, len(d.children))
	for _, child := range d.children {
		results := make([]strategy.Result, 0, end-start+1)
		for i := start; i <= end; i++ {
			r := child.ProcessPosition(bars[:i+1], inPosition, entryPrice)
			switch r.Operation {
			case domain.OperationBuy:
				buys++
			case domain.OperationSell:
				sells++
			}
			results = append(results, r)
		}
		composite = append(composite, strategy.ChildResults{StrategyID: child.ID(), Results: results})
	}

	op := domain.OperationHold
	switch {
	case buys >= d.minSignals:
		op = domain.OperationBuy
	case sells >= d.minSignals:
		op = domain.OperationSell
	}
	return strategy.Result{Operation: op, Composite: composite}
}
