package backtest

import (
	"log/slog"

	"orbiter/internal/domain"
	"orbiter/internal/strategy"
)

// TraceEntry is the per-bar record of a simulation.
type TraceEntry struct {
	Timestamp         int64               `json:"timestamp"`
	Date              string              `json:"date"`
	Open              float64             `json:"open"`
	High              float64             `json:"high"`
	Low               float64             `json:"low"`
	Close             float64             `json:"close"`
	Volume            float64             `json:"volume"`
	Indicators        domain.IndicatorSet `json:"indicators"`
	StrategyResult    strategy.Result     `json:"strategy_result"`
	CurrentBalance    float64             `json:"current_balance"`
	CalculatedBalance float64             `json:"calculated_balance"`
	CurrentNominals   float64             `json:"current_nominals"`
}

// Simulation is the output of a single Simulator run.
type Simulation struct {
	Candles []TraceEntry
	Trades  []Trade
	Balance *BalanceSummary
}

// Simulator folds a bar sequence through a FullStrategy. A Simulator holds
// no run state and may be shared between goroutines.
type Simulator struct {
	settings Settings
	logger   *slog.Logger
}

// NewSimulator creates a Simulator. settings should already be normalised.
func NewSimulator(settings Settings, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{settings: settings, logger: logger}
}

// Run simulates fs over bars. It returns ErrNoData when bars is empty.
//
// In day mode signals execute on the signal bar: at its close, or at its
// open when fs reports DayTimeOpen. In next_day mode a BUY or trading SELL
// on bar i executes at the open of bar i+1. Exits fixed by an exit strategy
// always fill at their threshold price on the bar that triggered them.
func (s *Simulator) Run(fs strategy.FullStrategy, bars []domain.Bar) (*Simulation, error) {
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	execAtOpen := false
	if dt, ok := fs.(strategy.DayTimer); ok && dt.OperationDayTime() == strategy.DayTimeOpen {
		execAtOpen = true
	}
	nextDay := s.settings.EntryTime == EntryTimeNextDay

	l := newLedger(s.settings.InitialBalance, s.settings.FeePct, s.settings.TruncateNominals)
	sim := &Simulation{Candles: make([]TraceEntry, 0, len(bars))}
	last := len(bars) - 1

	closeTrade := func(price float64, i int, reason ExitReason) {
		t, ok := l.exit(price, i, reason)
		if !ok {
			return
		}
		t.EntryDate = bars[t.EntryIndex].Date()
		t.ExitDate = bars[i].Date()
		sim.Trades = append(sim.Trades, t)
		s.logger.Debug("position closed",
			"bar", i, "price", price, "reason", reason, "net", t.Net)
	}
	openTrade := func(price float64, i int) {
		if l.enter(price, i) {
			s.logger.Debug("position opened", "bar", i, "price", price, "nominals", l.nominals().String())
		} else {
			s.logger.Debug("entry skipped", "bar", i, "price", price, "cash", l.cash.String())
		}
	}

	var pendingEntry, pendingExit bool
	for i, bar := range bars {
		if nextDay {
			switch {
			case pendingEntry && !l.inPosition():
				openTrade(bar.Open, i)
			case pendingExit && l.inPosition():
				closeTrade(bar.Open, i, ExitReasonStrategy)
			}
			pendingEntry, pendingExit = false, false
		}

		res := fs.ProcessPosition(bars[:i+1], l.inPosition(), l.entryPrice())

		if l.inPosition() {
			if res.Operation == domain.OperationSell {
				switch {
				case res.ExitPrice != nil:
					closeTrade(*res.ExitPrice, i, ExitReasonExitStrategy)
				case nextDay:
					pendingExit = i < last
				default:
					closeTrade(execPrice(bar, execAtOpen), i, ExitReasonStrategy)
				}
			}
		} else if res.Operation == domain.OperationBuy && l.cash.IsPositive() {
			if nextDay {
				pendingEntry = i < last
			} else {
				openTrade(execPrice(bar, execAtOpen), i)
			}
		}

		sim.Candles = append(sim.Candles, TraceEntry{
			Timestamp:         bar.Timestamp.UnixMilli(),
			Date:              bar.Date(),
			Open:              bar.Open,
			High:              bar.High,
			Low:               bar.Low,
			Close:             bar.Close,
			Volume:            bar.Volume,
			Indicators:        bar.Indicators,
			StrategyResult:    res,
			CurrentBalance:    l.cash.InexactFloat64(),
			CalculatedBalance: l.markToMarket(bar.Close).InexactFloat64(),
			CurrentNominals:   l.nominals().InexactFloat64(),
		})
	}

	lastClose := bars[last].Close
	if l.inPosition() {
		closeTrade(lastClose, last, ExitReasonEndOfData)
	}
	sim.Balance = l.summary(lastClose)
	return sim, nil
}

func execPrice(bar domain.Bar, atOpen bool) float64 {
	if atOpen {
		return bar.Open
	}
	return bar.Close
}
