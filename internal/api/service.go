package api

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"orbiter/internal/backtest"
	"orbiter/internal/strategy"
)

// Fully-qualified method names of the orbiter.Backtest service.
const (
	ServiceName          = "orbiter.Backtest"
	RunMethod            = "/orbiter.Backtest/Run"
	ListStrategiesMethod = "/orbiter.Backtest/ListStrategies"
)

// BacktestServer is the server API for the orbiter.Backtest service.
// Messages are google.protobuf.Struct values carrying the JSON form of
// backtest.Request, backtest.Response and the strategy catalogue.
type BacktestServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListStrategies(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterBacktestServer registers srv on gs.
func RegisterBacktestServer(gs grpc.ServiceRegistrar, srv BacktestServer) {
	gs.RegisterService(&backtestServiceDesc, srv)
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "ListStrategies", Handler: listStrategiesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orbiter/backtest",
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listStrategiesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).ListStrategies(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListStrategiesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).ListStrategies(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// StrategyList is the ListStrategies response payload.
type StrategyList struct {
	Strategies []strategy.Entry `json:"strategies"`
}

// BacktestService implements BacktestServer on top of a backtest.Runner.
type BacktestService struct {
	runner   *backtest.Runner
	defaults backtest.Settings
	log      *slog.Logger
}

// NewBacktestService creates a BacktestService. defaults fills settings a
// request leaves unset.
func NewBacktestService(runner *backtest.Runner, defaults backtest.Settings, log *slog.Logger) *BacktestService {
	if log == nil {
		log = slog.Default()
	}
	return &BacktestService{runner: runner, defaults: defaults, log: log.With("component", "grpc")}
}

// Run executes a backtest request.
func (s *BacktestService) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req backtest.Request
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	req.Settings = req.Settings.WithDefaults(s.defaults)

	resp, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := ToStruct(resp)
	if err != nil {
		s.log.Error("encoding response", "run_id", resp.RunID, "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// ListStrategies returns every registered strategy id with its metadata.
func (s *BacktestService) ListStrategies(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := ToStruct(StrategyList{Strategies: s.runner.Registry().Entries()})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(err error) error {
	var verr *backtest.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, strategy.ErrInvalidConfig):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
