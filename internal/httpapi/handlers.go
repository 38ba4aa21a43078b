package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"orbiter/internal/backtest"
	"orbiter/internal/domain"
	"orbiter/internal/marketdata"
	"orbiter/internal/strategy"
)

// evaluateLookback is the window evaluated when a request omits "from".
const evaluateLookback = 365 * 24 * time.Hour

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req backtest.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}
	req.Settings = req.Settings.WithDefaults(s.defaults)

	resp, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCandles(c *gin.Context) {
	req, err := parseBarsQuery(c.Query("symbol"), c.Query("from"), c.Query("to"), c.Query("timespan"), c.Query("range"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	var keys []domain.IndicatorKey
	for _, id := range strings.Split(c.Query("hydrate"), ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		key, err := domain.ParseIndicatorKey(id)
		if err != nil {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		keys = append(keys, key)
	}

	bars, err := s.runner.Bars(c.Request.Context(), req, keys)
	if err != nil {
		s.fail(c, err)
		return
	}

	candles := make([]CandleJSON, len(bars))
	for i := range bars {
		candles[i] = candleFromBar(bars[i])
	}
	c.JSON(http.StatusOK, CandlesResponse{
		Symbol:   req.Ticker,
		Timespan: req.Timespan,
		Range:    req.Range,
		Candles:  candles,
	})
}

func (s *Server) handleListStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.runner.Registry().Entries()})
}

func (s *Server) handleEvaluate(c *gin.Context) {
	var body EvaluateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}
	if body.To == "" {
		body.To = time.Now().UTC().Format("2006-01-02")
	}
	if body.From == "" {
		to, err := backtest.ParseDate(body.To)
		if err != nil {
			writeError(c, http.StatusBadRequest, fmt.Sprintf("to: %v", err))
			return
		}
		body.From = to.Add(-evaluateLookback).Format("2006-01-02")
	}
	rng := ""
	if body.Range > 0 {
		rng = strconv.Itoa(body.Range)
	}
	req, err := parseBarsQuery(body.Ticker, body.From, body.To, string(body.Timespan), rng)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	def := strategy.Definition{ID: c.Param("id"), Config: body.Config}
	detail, err := s.runner.Evaluate(c.Request.Context(), def, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// parseBarsQuery builds a validated market-data request from string inputs.
// An empty timespan means day and an empty range means 1.
func parseBarsQuery(symbol, from, to, timespan, rng string) (marketdata.Request, error) {
	req := marketdata.Request{
		Ticker:   strings.ToUpper(strings.TrimSpace(symbol)),
		Timespan: domain.TimespanDay,
		Range:    1,
	}
	var err error
	if req.From, err = backtest.ParseDate(from); err != nil {
		return req, fmt.Errorf("from: %w", err)
	}
	if req.To, err = backtest.ParseDate(to); err != nil {
		return req, fmt.Errorf("to: %w", err)
	}
	if timespan != "" {
		req.Timespan = domain.Timespan(strings.ToLower(timespan))
	}
	if rng != "" {
		if req.Range, err = strconv.Atoi(rng); err != nil {
			return req, fmt.Errorf("range: %q is not an integer", rng)
		}
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}
