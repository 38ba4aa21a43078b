// Package indicators hydrates price bars with precomputed technical
// indicator values (DMI/ADX, Bollinger Bands, RSI). Bars inside an
// indicator's warm-up period receive records with nil fields.
package indicators

import (
	"fmt"

	"orbiter/internal/domain"
)

// WarmupBars returns how many leading bars key needs before it produces its
// first complete value.
func WarmupBars(key domain.IndicatorKey) int {
	switch key.Kind {
	case domain.IndicatorDMI:
		return 2*key.Period - 1
	case domain.IndicatorBollinger:
		return key.Period - 1
	case domain.IndicatorRSI:
		return key.Period
	default:
		return 0
	}
}

// MaxWarmup returns the largest warm-up requirement across keys.
func MaxWarmup(keys []domain.IndicatorKey) int {
	n := 0
	for _, k := range keys {
		n = max(n, WarmupBars(k))
	}
	return n
}

// Hydrate returns a copy of bars with every requested indicator attached.
// The input slice is not modified.
func Hydrate(bars []domain.Bar, keys ...domain.IndicatorKey) ([]domain.Bar, error) {
	out := make([]domain.Bar, len(bars))
	for i, b := range bars {
		b.Indicators = b.Indicators.Clone()
		out[i] = b
	}

	for _, key := range keys {
		if key.Period <= 0 {
			return nil, fmt.Errorf("indicator %s: period must be positive", key)
		}
		switch key.Kind {
		case domain.IndicatorDMI:
			for i, r := range DMI(out, key.Period) {
				out[i].Indicators.SetDMI(key, r)
			}
		case domain.IndicatorBollinger:
			for i, r := range Bollinger(out, key.Period, key.StdDev) {
				out[i].Indicators.SetBollinger(key, r)
			}
		case domain.IndicatorRSI:
			for i, r := range RSI(out, key.Period) {
				out[i].Indicators.SetRSI(key, r)
			}
		default:
			return nil, fmt.Errorf("unsupported indicator kind %q", key.Kind)
		}
	}
	return out, nil
}
