package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"orbiter/internal/api"
	"orbiter/internal/app"
	"orbiter/internal/config"
	"orbiter/internal/httpapi"
	"orbiter/internal/util"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("ORBITER_CONFIG"), "path to YAML config (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)
	if util.ParseLevel(cfg.Logging.Level) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(cfg, nil, logger)
	if err != nil {
		log.Fatalf("initializing: %v", err)
	}
	defer a.Close()

	hs := httpapi.NewServer(a.Runner, logger, httpapi.Options{
		Defaults:        a.Defaults,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		RequestTimeout:  5 * time.Minute,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		hs.SweepLimiter(gctx, 5*time.Minute)
		return nil
	})
	if cfg.Server.GRPCPort > 0 {
		gs := api.NewServer(
			fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort),
			api.NewBacktestService(a.Runner, a.Defaults, logger),
			logger,
		)
		g.Go(func() error { return gs.ListenAndServe(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("server stopped")
}
