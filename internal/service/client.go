package service

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/giantswarm/qa-environment/internal/schema"
)

// Client calls a remote environment service.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to target. Without further options the connection is
// plaintext; pass grpc.WithTransportCredentials to override.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", target, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// GetObservations sends one batch. Batch errors come back as status errors;
// use ErrorCodeOf to read their code.
func (c *Client) GetObservations(ctx context.Context, req *schema.EnvironmentRequest) (*schema.EnvironmentResponse, error) {
	out := new(schema.EnvironmentResponse)
	if err := c.cc.Invoke(ctx, GetObservationsMethod, req, out, grpc.CallContentSubtype(JSONCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the connection when the client owns it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
