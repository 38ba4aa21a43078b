package indicators

import (
	"math"

	"orbiter/internal/domain"
)

// Bollinger computes Bollinger Bands over closing prices: an SMA middle band
// with upper/lower bands at stdDev population standard deviations.
func Bollinger(bars []domain.Bar, period int, stdDev float64) []domain.BollingerResult {
	out := make([]domain.BollingerResult, len(bars))
	if period <= 0 {
		return out
	}

	for i := period - 1; i < len(bars); i++ {
		window := bars[i-period+1 : i+1]

		var sum float64
		for _, b := range window {
			sum += b.Close
		}
		mean := sum / float64(period)

		var sq float64
		for _, b := range window {
			d := b.Close - mean
			sq += d * d
		}
		sd := math.Sqrt(sq / float64(period))

		out[i] = domain.BollingerResult{
			Middle: domain.Float(mean),
			Upper:  domain.Float(mean + stdDev*sd),
			Lower:  domain.Float(mean - stdDev*sd),
		}
	}
	return out
}

// RSI computes Wilder's relative strength index over closing prices. The
// first value appears at index period.
func RSI(bars []domain.Bar, period int) []domain.RSIResult {
	out := make([]domain.RSIResult, len(bars))
	if period <= 0 || len(bars) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = domain.RSIResult{RSI: domain.Float(rsiValue(avgGain, avgLoss))}

	p := float64(period)
	for i := period + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = domain.RSIResult{RSI: domain.Float(rsiValue(avgGain, avgLoss))}
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
