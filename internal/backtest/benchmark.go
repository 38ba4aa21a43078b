package backtest

import (
	"orbiter/internal/strategy"
)

// Benchmark identifies the best performing ticker of a run. All fields are
// empty when no ticker produced a balance.
type Benchmark struct {
	BestROI      *float64             `json:"best_roi"`
	BestStrategy *strategy.Definition `json:"best_strategy"`
	BestTicker   string               `json:"best_ticker,omitempty"`
}

// SelectBenchmark returns the result with the highest ROI. Comparison is
// strictly greater-than so the first result wins ties. Error placeholders are
// skipped.
func SelectBenchmark(results []TradingResult) Benchmark {
	var b Benchmark
	for _, r := range results {
		if r.Failed() {
			continue
		}
		if b.BestROI == nil || r.Balance.ROI > *b.BestROI {
			roi := r.Balance.ROI
			b.BestROI = &roi
			b.BestStrategy = r.StrategyDef
			b.BestTicker = r.Ticker
		}
	}
	return b
}
