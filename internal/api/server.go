// Package api provides the gRPC server for orbiter, exposing backtest runs
// and the strategy catalogue.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
)

// MaxMessageSize bounds gRPC messages in both directions. Backtest responses
// carry a per-bar trace and outgrow the 4 MiB default quickly.
const MaxMessageSize = 64 << 20

// Server hosts the gRPC endpoint.
type Server struct {
	addr string
	gs   *grpc.Server
	log  *slog.Logger
}

// NewServer creates a Server listening on addr that serves svc.
func NewServer(addr string, svc BacktestServer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(MaxMessageSize),
		grpc.MaxSendMsgSize(MaxMessageSize),
		grpc.ChainUnaryInterceptor(loggingInterceptor(log)),
	)
	RegisterBacktestServer(gs, svc)
	return &Server{addr: addr, gs: gs, log: log.With("component", "grpc")}
}

// ListenAndServe starts the gRPC listener and blocks until the context is
// cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- s.gs.Serve(lis) }()
	s.log.Info("grpc server listening", "addr", lis.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.gs.GracefulStop()
		return nil
	}
}

// Shutdown performs a graceful shutdown, forcing it once ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.gs.Stop()
		return ctx.Err()
	}
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warn("grpc call failed", "method", info.FullMethod, "elapsed", time.Since(start).Round(time.Millisecond), "error", err)
		} else {
			log.Info("grpc call", "method", info.FullMethod, "elapsed", time.Since(start).Round(time.Millisecond))
		}
		return resp, err
	}
}
