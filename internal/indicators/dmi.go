package indicators

import (
	"math"

	"orbiter/internal/domain"
)

// DMI computes Wilder's directional movement index for every bar. The first
// complete record appears at index 2*period-1, once ADX has been seeded with
// period DX values.
func DMI(bars []domain.Bar, period int) []domain.DMIResult {
	out := make([]domain.DMIResult, len(bars))
	if period <= 0 || len(bars) < 2*period {
		return out
	}

	var (
		smTR, smPlus, smMinus float64
		adx, dxSum            float64
		dxCount               int
	)

	for i := 1; i < len(bars); i++ {
		cur, prev := bars[i], bars[i-1]

		tr := math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		plusDM, minusDM := 0.0, 0.0
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}

		if i <= period {
			smTR += tr
			smPlus += plusDM
			smMinus += minusDM
			if i < period {
				continue
			}
		} else {
			p := float64(period)
			smTR = smTR - smTR/p + tr
			smPlus = smPlus - smPlus/p + plusDM
			smMinus = smMinus - smMinus/p + minusDM
		}

		var diPlus, diMinus, dx float64
		if smTR != 0 {
			diPlus = 100 * smPlus / smTR
			diMinus = 100 * smMinus / smTR
		}
		if sum := diPlus + diMinus; sum != 0 {
			dx = 100 * math.Abs(diPlus-diMinus) / sum
		}

		if dxCount < period {
			dxSum += dx
			dxCount++
			if dxCount < period {
				continue
			}
			adx = dxSum / float64(period)
		} else {
			adx = (adx*float64(period-1) + dx) / float64(period)
		}

		out[i] = domain.DMIResult{
			ADX:        domain.Float(adx),
			DIPositive: domain.Float(diPlus),
			DINegative: domain.Float(diMinus),
		}
	}
	return out
}
