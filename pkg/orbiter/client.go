// Package orbiter is the Go client for the orbiter gRPC service.
package orbiter

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"orbiter/internal/api"
	"orbiter/internal/backtest"
	"orbiter/internal/strategy"
)

// Client talks to an orbiter-server gRPC endpoint.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a client for addr. Without options the connection is
// plaintext. Extra options are appended to the defaults.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(api.MaxMessageSize),
			grpc.MaxCallSendMsgSize(api.MaxMessageSize),
		),
	}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run executes a backtest on the server.
func (c *Client) Run(ctx context.Context, req backtest.Request) (*backtest.Response, error) {
	in, err := api.ToStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.RunMethod, in, out); err != nil {
		return nil, err
	}
	var resp backtest.Response
	if err := api.FromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListStrategies returns the server's strategy catalogue sorted by id.
func (c *Client) ListStrategies(ctx context.Context) ([]strategy.Entry, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.ListStrategiesMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var list api.StrategyList
	if err := api.FromStruct(out, &list); err != nil {
		return nil, err
	}
	return list.Strategies, nil
}
