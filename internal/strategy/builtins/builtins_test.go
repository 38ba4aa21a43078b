package builtins

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbiter/internal/domain"
	"orbiter/internal/strategy"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func bar(i int, price float64) domain.Bar {
	return domain.Bar{
		Symbol:    "TEST",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
	}
}

func withDMI(b domain.Bar, period int, adx, plus, minus float64) domain.Bar {
	b.Indicators = b.Indicators.Clone()
	b.Indicators.SetDMI(domain.DMIKey(period), domain.DMIResult{
		ADX:        domain.Float(adx),
		DIPositive: domain.Float(plus),
		DINegative: domain.Float(minus),
	})
	return b
}

func withBB(b domain.Bar, period int, k, lower, upper float64) domain.Bar {
	b.Indicators = b.Indicators.Clone()
	b.Indicators.SetBollinger(domain.BollingerKey(period, k), domain.BollingerResult{
		Middle: domain.Float((lower + upper) / 2),
		Upper:  domain.Float(upper),
		Lower:  domain.Float(lower),
	})
	return b
}

func withRSI(b domain.Bar, period int, v float64) domain.Bar {
	b.Indicators = b.Indicators.Clone()
	b.Indicators.SetRSI(domain.RSIKey(period), domain.RSIResult{RSI: domain.Float(v)})
	return b
}

// scripted returns a fixed operation per history length, used to drive
// composites deterministically.
type scripted struct {
	id  string
	ops map[int]domain.Operation
}

func (s *scripted) ID() string { return s.id }
func (s *scripted) Process(bars []domain.Bar) strategy.Result {
	if op, ok := s.ops[len(bars)]; ok {
		return strategy.NewResult(op)
	}
	return strategy.NewResult(domain.OperationHold)
}

type fixedExit struct{ fire bool }

func (fixedExit) ID() string                                        { return "fixed-exit" }
func (e fixedExit) ShouldExit(_, _ float64, _ []domain.Bar) bool     { return e.fire }
func (fixedExit) ExitPrice(entry, _ float64, _ []domain.Bar) float64 { return entry * 0.95 }

// ---------------------------------------------------------------------------
// StandardDMI
// ---------------------------------------------------------------------------

func TestStandardDMI(t *testing.T) {
	s, err := NewStandardDMI(DefaultDMIConfig())
	require.NoError(t, err)

	tests := []struct {
		name string
		bars []domain.Bar
		want domain.Operation
	}{
		{
			name: "bullish crossover in strong trend",
			bars: []domain.Bar{withDMI(bar(0, 10), 14, 25, 10, 20), withDMI(bar(1, 11), 14, 25, 22, 18)},
			want: domain.OperationBuy,
		},
		{
			name: "bearish crossover in strong trend",
			bars: []domain.Bar{withDMI(bar(0, 10), 14, 25, 22, 18), withDMI(bar(1, 9), 14, 25, 10, 20)},
			want: domain.OperationSell,
		},
		{
			name: "crossover in weak trend",
			bars: []domain.Bar{withDMI(bar(0, 10), 14, 15, 10, 20), withDMI(bar(1, 11), 14, 15, 22, 18)},
			want: domain.OperationHold,
		},
		{
			name: "adx equal to threshold is not strong",
			bars: []domain.Bar{withDMI(bar(0, 10), 14, 20, 10, 20), withDMI(bar(1, 11), 14, 20, 22, 18)},
			want: domain.OperationHold,
		},
		{
			name: "no crossover",
			bars: []domain.Bar{withDMI(bar(0, 10), 14, 30, 22, 18), withDMI(bar(1, 11), 14, 30, 25, 18)},
			want: domain.OperationHold,
		},
		{
			name: "missing indicators",
			bars: []domain.Bar{bar(0, 10), bar(1, 11)},
			want: domain.OperationError,
		},
		{
			name: "single bar",
			bars: []domain.Bar{withDMI(bar(0, 10), 14, 30, 22, 18)},
			want: domain.OperationError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Process(tt.bars).Operation)
		})
	}
}

func TestStandardDMIRejectsBadPeriod(t *testing.T) {
	_, err := NewRegistry().Build(strategy.MustDefinition(StandardDMIID, map[string]any{"period": 0}))
	assert.ErrorIs(t, err, strategy.ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// Bollinger strategies
// ---------------------------------------------------------------------------

func TestStandardBollinger(t *testing.T) {
	s, err := NewStandardBollinger(DefaultBollingerConfig())
	require.NoError(t, err)

	mk := func(price, adx float64) []domain.Bar {
		b := withBB(bar(0, price), 20, 2, 90, 110)
		return []domain.Bar{withDMI(b, 14, adx, 10, 10)}
	}
	assert.Equal(t, domain.OperationBuy, s.Process(mk(85, 15)).Operation)
	assert.Equal(t, domain.OperationSell, s.Process(mk(115, 15)).Operation)
	assert.Equal(t, domain.OperationHold, s.Process(mk(100, 15)).Operation)
	assert.Equal(t, domain.OperationHold, s.Process(mk(85, 30)).Operation, "trending market is ignored")
	assert.Equal(t, domain.OperationError, s.Process([]domain.Bar{bar(0, 85)}).Operation)
	assert.ElementsMatch(t, []domain.IndicatorKey{domain.BollingerKey(20, 2), domain.DMIKey(14)}, s.Indicators())
}

func TestRSIBollinger(t *testing.T) {
	s, err := NewRSIBollinger(DefaultRSIBollingerConfig())
	require.NoError(t, err)

	mk := func(price, rsi float64) []domain.Bar {
		b := withBB(bar(0, price), 30, 2, 90, 110)
		return []domain.Bar{withRSI(b, 13, rsi)}
	}
	assert.Equal(t, domain.OperationBuy, s.Process(mk(85, 20)).Operation)
	assert.Equal(t, domain.OperationHold, s.Process(mk(85, 40)).Operation)
	assert.Equal(t, domain.OperationSell, s.Process(mk(115, 80)).Operation)
	assert.Equal(t, domain.OperationHold, s.Process(mk(115, 60)).Operation)

	noRSI := []domain.Bar{withBB(bar(0, 85), 30, 2, 90, 110)}
	assert.Equal(t, domain.OperationError, s.Process(noRSI).Operation)
}

func TestRSIBollingerRejectsInvertedThresholds(t *testing.T) {
	_, err := NewRegistry().Build(strategy.MustDefinition(RSIBollingerID, map[string]any{
		"rsi_oversold":   80,
		"rsi_overbought": 20,
	}))
	assert.ErrorIs(t, err, strategy.ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// TakeProfitExit
// ---------------------------------------------------------------------------

func TestTakeProfitExit(t *testing.T) {
	tests := []struct {
		name     string
		pct      float64
		entry    float64
		adverse  float64
		wantExit bool
	}{
		{"take profit reached", 0.1, 100, 110, true},
		{"take profit not reached", 0.1, 100, 109.99, false},
		{"stop loss reached", -0.05, 100, 95, true},
		{"stop loss not reached", -0.05, 100, 96, false},
		{"zero pct never exits", 0, 100, 50, false},
		{"zero entry never exits", 0.1, 0, 200, false},
		{"zero adverse never exits", -0.05, 100, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewTakeProfitExit(TakeProfitConfig{Pct: tt.pct})
			require.NoError(t, err)
			assert.Equal(t, tt.wantExit, e.ShouldExit(tt.entry, tt.adverse, nil))
		})
	}
}

func TestTakeProfitExitPrice(t *testing.T) {
	e, err := NewTakeProfitExit(TakeProfitConfig{Pct: -0.05})
	require.NoError(t, err)
	assert.InDelta(t, 95.0, e.ExitPrice(100, 80, nil), 1e-9, "fills at the threshold, not the adverse price")

	_, err = NewTakeProfitExit(TakeProfitConfig{Pct: -1})
	assert.True(t, errors.Is(err, strategy.ErrInvalidConfig))
}

// ---------------------------------------------------------------------------
// DefaultFull
// ---------------------------------------------------------------------------

func TestDefaultFullMergeRule(t *testing.T) {
	bars := []domain.Bar{bar(0, 100)}
	sell := &scripted{id: "sell", ops: map[int]domain.Operation{1: domain.OperationSell}}
	buy := &scripted{id: "buy", ops: map[int]domain.Operation{1: domain.OperationBuy}}

	t.Run("exit strategy fires", func(t *testing.T) {
		f := NewDefaultFull(buy, fixedExit{fire: true})
		res := f.ProcessPosition(bars, true, 100)
		assert.Equal(t, domain.OperationSell, res.Operation)
		require.NotNil(t, res.ExitPrice)
		assert.InDelta(t, 95.0, *res.ExitPrice, 1e-9)
		assert.True(t, res.ExitTriggered)
		require.NotNil(t, res.Trading)
		assert.Equal(t, domain.OperationBuy, res.Trading.Operation)
	})

	t.Run("exit strategy wins over trading sell", func(t *testing.T) {
		res := NewDefaultFull(sell, fixedExit{fire: true}).ProcessPosition(bars, true, 100)
		assert.Equal(t, domain.OperationSell, res.Operation)
		assert.NotNil(t, res.ExitPrice)
	})

	t.Run("trading sell leaves price to simulator", func(t *testing.T) {
		res := NewDefaultFull(sell, fixedExit{}).ProcessPosition(bars, true, 100)
		assert.Equal(t, domain.OperationSell, res.Operation)
		assert.Nil(t, res.ExitPrice)
		assert.False(t, res.ExitTriggered)
	})

	t.Run("pass through when flat", func(t *testing.T) {
		res := NewDefaultFull(buy, fixedExit{fire: true}).ProcessPosition(bars, false, 0)
		assert.Equal(t, domain.OperationBuy, res.Operation)
		assert.Nil(t, res.ExitPrice)
	})

	t.Run("pass through without entry price", func(t *testing.T) {
		res := NewDefaultFull(buy, fixedExit{fire: true}).ProcessPosition(bars, true, 0)
		assert.Equal(t, domain.OperationBuy, res.Operation)
	})
}

func TestDefaultFullUsesBarLow(t *testing.T) {
	tp, err := NewTakeProfitExit(TakeProfitConfig{Pct: -0.05})
	require.NoError(t, err)
	hold := &scripted{id: "hold"}
	f := NewDefaultFull(hold, tp)

	b := bar(0, 100)
	b.Low = 94
	res := f.ProcessPosition([]domain.Bar{b}, true, 100)
	assert.Equal(t, domain.OperationSell, res.Operation, "close is above the stop but the low breached it")
	require.NotNil(t, res.ExitPrice)
	assert.InDelta(t, 95.0, *res.ExitPrice, 1e-9)
}

func TestDefaultFullBuild(t *testing.T) {
	r := NewRegistry()
	fs, err := r.BuildFull(strategy.MustDefinition(DefaultFullStrategyID, map[string]any{
		"trading_strategy": map[string]any{"id": StandardDMIID},
		"exit_strategy":    map[string]any{"id": TakeProfitExitID, "config": map[string]any{"pct": 0.2}},
	}))
	require.NoError(t, err)
	assert.Equal(t, DefaultFullStrategyID, fs.ID())
	assert.Equal(t, []domain.IndicatorKey{domain.DMIKey(14)}, strategy.RequiredIndicators(fs))

	_, err = r.Build(strategy.MustDefinition(DefaultFullStrategyID, map[string]any{
		"trading_strategy": map[string]any{"id": "no-such-strategy"},
	}))
	assert.ErrorIs(t, err, strategy.ErrUnknownStrategy)

	_, err = r.Build(strategy.MustDefinition(DefaultFullStrategyID, map[string]any{
		"trading_strategy": map[string]any{"id": TakeProfitExitID},
	}))
	assert.ErrorIs(t, err, strategy.ErrInvalidConfig, "exit strategy cannot be the trading strategy")
}

// ---------------------------------------------------------------------------
// DelayedComposite
// ---------------------------------------------------------------------------

func bars(n int) []domain.Bar {
	out := make([]domain.Bar, n)
	for i := range out {
		out[i] = bar(i, float64(100+i))
	}
	return out
}

func TestDelayedCompositeWindow(t *testing.T) {
	// Child signals BUY only on the history ending at index 2 (length 3).
	child := &scripted{id: "a", ops: map[int]domain.Operation{3: domain.OperationBuy}}
	dc, err := NewDelayedComposite([]strategy.FullStrategy{strategy.AsFull(child)}, 1, 1, 2)
	require.NoError(t, err)

	// last=3: window [1,2] includes index 2.
	res := dc.ProcessPosition(bars(4), false, 0)
	assert.Equal(t, domain.OperationBuy, res.Operation)
	require.Len(t, res.Composite, 1)
	assert.Equal(t, "a", res.Composite[0].StrategyID)
	assert.Len(t, res.Composite[0].Results, 2)

	// last=5: window [3,4] no longer sees index 2.
	assert.Equal(t, domain.OperationHold, dc.ProcessPosition(bars(6), false, 0).Operation)

	// last=2: window [0,1]; the signal at index 2 is not visible yet.
	assert.Equal(t, domain.OperationHold, dc.ProcessPosition(bars(3), false, 0).Operation)
}

func TestDelayedCompositeWindowClampsAtZero(t *testing.T) {
	child := &scripted{id: "a", ops: map[int]domain.Operation{1: domain.OperationSell}}
	dc, err := NewDelayedComposite([]strategy.FullStrategy{strategy.AsFull(child)}, 1, 3, 5)
	require.NoError(t, err)

	res := dc.ProcessPosition(bars(2), true, 100)
	assert.Equal(t, domain.OperationSell, res.Operation)
	assert.Len(t, res.Composite[0].Results, 1, "window collapses to [0,0]")
}

func TestDelayedCompositeVoting(t *testing.T) {
	buyAt := func(id string, n int) strategy.FullStrategy {
		return strategy.AsFull(&scripted{id: id, ops: map[int]domain.Operation{n: domain.OperationBuy}})
	}
	sellAt := func(id string, n int) strategy.FullStrategy {
		return strategy.AsFull(&scripted{id: id, ops: map[int]domain.Operation{n: domain.OperationSell}})
	}

	t.Run("below threshold holds", func(t *testing.T) {
		dc, err := NewDelayedComposite([]strategy.FullStrategy{buyAt("a", 5), sellAt("b", 5)}, 2, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.OperationHold, dc.ProcessPosition(bars(5), false, 0).Operation)
	})

	t.Run("buy wins when both thresholds met", func(t *testing.T) {
		dc, err := NewDelayedComposite([]strategy.FullStrategy{buyAt("a", 5), sellAt("b", 5)}, 1, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.OperationBuy, dc.ProcessPosition(bars(5), false, 0).Operation)
	})

	t.Run("signals accumulate across window offsets", func(t *testing.T) {
		child := strategy.AsFull(&scripted{id: "a", ops: map[int]domain.Operation{
			4: domain.OperationSell,
			5: domain.OperationSell,
		}})
		dc, err := NewDelayedComposite([]strategy.FullStrategy{child}, 2, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.OperationSell, dc.ProcessPosition(bars(5), true, 100).Operation)
	})
}

// constant signals op on every history.
type constant struct{ op domain.Operation }

func (c constant) ID() string                             { return "constant" }
func (c constant) Process(_ []domain.Bar) strategy.Result { return strategy.NewResult(c.op) }

func TestDelayedCompositeUnreachableThresholdHolds(t *testing.T) {
	for _, op := range []domain.Operation{domain.OperationBuy, domain.OperationSell} {
		t.Run(string(op), func(t *testing.T) {
			children := []strategy.FullStrategy{strategy.AsFull(constant{op}), strategy.AsFull(constant{op})}

			// Two children over a three-offset window cast at most six votes.
			dc, err := NewDelayedComposite(children, 7, 1, 3)
			require.NoError(t, err)
			for n := 1; n <= 10; n++ {
				assert.Equal(t, domain.OperationHold, dc.ProcessPosition(bars(n), op == domain.OperationSell, 100).Operation, "history of %d bars", n)
			}

			reachable, err := NewDelayedComposite(children, 6, 1, 3)
			require.NoError(t, err)
			assert.Equal(t, op, reachable.ProcessPosition(bars(10), op == domain.OperationSell, 100).Operation)
		})
	}
}

func TestDelayedCompositeDayTime(t *testing.T) {
	child := strategy.AsFull(&scripted{id: "a"})
	sameBar, err := NewDelayedComposite([]strategy.FullStrategy{child}, 1, 0, 2)
	require.NoError(t, err)
	lagged, err := NewDelayedComposite([]strategy.FullStrategy{child}, 1, 1, 2)
	require.NoError(t, err)

	assert.Equal(t, strategy.DayTimeClose, sameBar.OperationDayTime())
	assert.Equal(t, strategy.DayTimeOpen, lagged.OperationDayTime())
}

func TestDelayedCompositeBuild(t *testing.T) {
	r := NewRegistry()
	fs, err := r.BuildFull(strategy.MustDefinition(DelayedCompositeID, map[string]any{
		"min_signals": 2,
		"delay_min":   1,
		"delay_max":   3,
		"strategies": []map[string]any{
			{"id": StandardDMIID},
			{"id": RSIBollingerID},
			{"id": DefaultFullStrategyID, "config": map[string]any{
				"trading_strategy": map[string]any{"id": StandardBollingerID},
				"exit_strategy":    map[string]any{"id": TakeProfitExitID},
			}},
		},
	}))
	require.NoError(t, err)

	keys := strategy.RequiredIndicators(fs)
	assert.ElementsMatch(t, []domain.IndicatorKey{
		domain.DMIKey(14),
		domain.BollingerKey(30, 2),
		domain.RSIKey(13),
		domain.BollingerKey(20, 2),
	}, keys)

	_, err = r.Build(strategy.MustDefinition(DelayedCompositeID, map[string]any{
		"strategies": []map[string]any{{"id": "missing"}},
	}))
	assert.ErrorIs(t, err, strategy.ErrUnknownStrategy)

	_, err = r.Build(strategy.MustDefinition(DelayedCompositeID, map[string]any{
		"strategies": []map[string]any{{"id": StandardDMIID}},
		"delay_min":  3,
		"delay_max":  1,
	}))
	assert.ErrorIs(t, err, strategy.ErrInvalidConfig)
}

func TestRegistryListsBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{
		DefaultFullStrategyID,
		DelayedCompositeID,
		RSIBollingerID,
		StandardBollingerID,
		StandardDMIID,
		TakeProfitExitID,
	}, r.List())

	for _, e := range r.Entries() {
		assert.NotEmpty(t, e.Name, e.ID)
		assert.NotEmpty(t, e.Description, e.ID)
	}
}
