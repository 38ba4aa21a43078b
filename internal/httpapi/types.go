package httpapi

import (
	"encoding/json"

	"orbiter/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// CandleJSON is one bar as served by GET /api/candles.
type CandleJSON struct {
	Timestamp  int64               `json:"timestamp"`
	Date       string              `json:"date"`
	Open       float64             `json:"open"`
	High       float64             `json:"high"`
	Low        float64             `json:"low"`
	Close      float64             `json:"close"`
	Volume     float64             `json:"volume"`
	VWAP       float64             `json:"vwap,omitempty"`
	Indicators *domain.IndicatorSet `json:"indicators,omitempty"`
}

// CandlesResponse is the body of GET /api/candles.
type CandlesResponse struct {
	Symbol   string          `json:"symbol"`
	Timespan domain.Timespan `json:"timespan"`
	Range    int             `json:"range"`
	Candles  []CandleJSON    `json:"candles"`
}

// EvaluateRequest is the body of POST /api/strategies/:id/evaluate.
type EvaluateRequest struct {
	Config   json.RawMessage `json:"config,omitempty"`
	Ticker   string          `json:"ticker"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Timespan domain.Timespan `json:"timespan,omitempty"`
	Range    int             `json:"range,omitempty"`
}

func candleFromBar(b domain.Bar) CandleJSON {
	c := CandleJSON{
		Timestamp: b.Timestamp.UnixMilli(),
		Date:      b.Date(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		VWAP:      b.VWAP,
	}
	if b.Indicators.Len() > 0 {
		ind := b.Indicators
		c.Indicators = &ind
	}
	return c
}
