package netflow

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/core"
)

// Client is a connection to a Server.
type Client struct {
	conn net.Conn
	sink *ConnSink
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, core.WithKind(errors.Wrapf(err, "dial %s", addr), core.KindResource)
	}
	return &Client{conn: conn, sink: NewConnSink(conn)}, nil
}

// Send writes msg to the server.
func (c *Client) Send(msg []byte) error {
	return c.sink.w.write(msg)
}

// CloseSend tells the server no more data follows. Replies keep arriving
// until the server finishes.
func (c *Client) CloseSend() error {
	return c.sink.w.closeWrite()
}

// Sink returns the client's write side as a Sink; closing it is CloseSend.
func (c *Client) Sink() core.Sink[[]byte] {
	return c.sink
}

// Replies streams everything the server writes, heartbeats included, until
// the server closes its side.
func (c *Client) Replies() core.Stream[[]byte] {
	return flow.FromSource[[]byte](NewConnSource(c.conn, DefaultChunkSize))
}

// LocalAddr returns the client side address.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
