// Package httpapi exposes backtests, candles and strategy evaluation over a
// JSON REST API.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"orbiter/internal/backtest"
	"orbiter/internal/marketdata"
	"orbiter/internal/strategy"
	"orbiter/internal/util"
)

const requestIDHeader = "X-Request-ID"

// Options tunes a Server.
type Options struct {
	// Defaults fills settings a backtest request leaves unset.
	Defaults backtest.Settings
	// RateLimitPerSec and RateLimitBurst bound requests per client IP.
	// A non-positive RateLimitPerSec disables limiting.
	RateLimitPerSec float64
	RateLimitBurst  int
	// RequestTimeout caps the context of each request; 0 means no cap.
	RequestTimeout time.Duration
}

// Server serves the REST API.
type Server struct {
	runner   *backtest.Runner
	defaults backtest.Settings
	limiter  *util.KeyedLimiter
	timeout  time.Duration
	log      *slog.Logger
	engine   *gin.Engine
}

// NewServer creates a Server that runs backtests with runner.
func NewServer(runner *backtest.Runner, log *slog.Logger, opts Options) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		runner:   runner,
		defaults: opts.Defaults,
		timeout:  opts.RequestTimeout,
		log:      log.With("component", "httpapi"),
	}
	if opts.RateLimitPerSec > 0 {
		burst := opts.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = util.NewKeyedLimiter(opts.RateLimitPerSec, burst, 10*time.Minute)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(s.requestLogger())
	if s.limiter != nil {
		r.Use(s.rateLimitMiddleware())
	}
	if s.timeout > 0 {
		r.Use(timeoutMiddleware(s.timeout))
	}
	r.Use(corsMiddleware())
	s.engine = r
	s.RegisterRoutes(r)
	return s
}

// RegisterRoutes registers all API routes on the given router.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.POST("/backtesting", s.handleBacktest)
	api.GET("/candles", s.handleCandles)
	api.GET("/strategies", s.handleListStrategies)
	api.POST("/strategies/:id/evaluate", s.handleEvaluate)
}

// Handler returns the http.Handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// SweepLimiter drops idle per-client buckets every interval until ctx is
// done. It returns immediately when rate limiting is disabled.
func (s *Server) SweepLimiter(ctx context.Context, interval time.Duration) {
	if s.limiter == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.limiter.Sweep()
			s.log.Debug("rate limiter swept", "clients", n)
		}
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).Round(time.Microsecond),
			"client", c.ClientIP(),
		)
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !s.limiter.Allow(ip) {
			s.log.Warn("rate limit exceeded", "client", ip)
			writeError(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

func timeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, RequestID: c.GetString("request_id")})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verr *backtest.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, strategy.ErrInvalidConfig),
		errors.Is(err, marketdata.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, backtest.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "request_id", c.GetString("request_id"), "path", c.Request.URL.Path, "error", err)
	}
	writeError(c, status, err.Error())
}
