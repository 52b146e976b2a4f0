package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/idudko/go-metric-stream/internal/codec"
)

// Client fetches metric streams from a Server.
type Client struct {
	conn   grpc.ClientConnInterface
	closer io.Closer
}

// Dial returns a client for the server at address. The connection is
// established lazily.
func Dial(address string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, closer: conn}, nil
}

// NewClient wraps an existing connection. Close does not close conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close closes the connection opened by Dial.
func (c *Client) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Fetch calls Get and passes every received entry to fn in stream order.
// It returns the number of batches received. A stream that ends with a
// non-OK status is reported as an error after all delivered entries.
func (c *Client) Fetch(ctx context.Context, fn func(codec.Entry) error) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, &getStreamDesc, getMethod, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		return 0, fmt.Errorf("failed to open metric stream: %w", err)
	}
	if err := stream.SendMsg([]byte{}); err != nil {
		return 0, fmt.Errorf("failed to send metric request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return 0, fmt.Errorf("failed to close metric request: %w", err)
	}

	batches := 0
	var msg []byte
	for {
		err := stream.RecvMsg(&msg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error().Err(err).Int("batches", batches).Msg("metric stream failed")
			return batches, err
		}
		batches++
		if err := codec.Decode(msg, fn); err != nil {
			return batches, err
		}
	}

	log.Debug().Int("batches", batches).Msg("metric stream received")
	return batches, nil
}
