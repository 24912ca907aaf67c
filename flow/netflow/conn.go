package netflow

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// DefaultChunkSize is the read size of a ConnSource.
const DefaultChunkSize = 4096

// ErrConnClosed is returned by writes after the write side was closed.
var ErrConnClosed = core.WithKind(errors.New("connection write side closed"), core.KindResource)

// ConnSource reads a connection in chunks of at most size bytes. Close does
// not close the connection; its owner does.
type ConnSource struct {
	conn net.Conn
	buf  []byte

	mu   sync.Mutex
	done bool
}

// NewConnSource returns a Source reading conn.
func NewConnSource(conn net.Conn, size int) *ConnSource {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ConnSource{conn: conn, buf: make([]byte, size)}
}

func (s *ConnSource) Pull(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, core.ErrEndOfStream
	}

	// unblock the read when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	n, err := s.conn.Read(s.buf)
	if n > 0 {
		return append([]byte(nil), s.buf[:n]...), nil
	}
	switch {
	case err == nil:
		return []byte{}, nil
	case errors.Is(err, io.EOF):
		s.done = true
		return nil, core.ErrEndOfStream
	case ctx.Err() != nil:
		return nil, core.WithKind(ctx.Err(), core.KindCancelled)
	default:
		return nil, core.WithKind(errors.Wrap(err, "read connection"), core.KindResource)
	}
}

func (s *ConnSource) Close() error {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	return nil
}

// connWriter serializes every write to a connection so replies and
// heartbeats never interleave inside one write.
type connWriter struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

func (w *connWriter) write(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrConnClosed
	}
	if _, err := w.conn.Write(p); err != nil {
		return core.WithKind(errors.Wrap(err, "write connection"), core.KindResource)
	}
	return nil
}

// closeWrite half-closes the connection so the peer sees end of stream.
func (w *connWriter) closeWrite() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if hc, ok := w.conn.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}
	return nil
}

// abort drops the connection. A TCP peer gets a reset rather than a clean
// end of stream, so it cannot mistake a failed run for a completed one.
func (w *connWriter) abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if tc, ok := w.conn.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}
	if err := w.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return core.WithKind(errors.Wrap(err, "abort connection"), core.KindResource)
	}
	return nil
}

// ConnSink writes chunks to a connection. Close half-closes it; Abort
// drops it.
type ConnSink struct {
	w *connWriter
}

// NewConnSink returns a Sink writing to conn.
func NewConnSink(conn net.Conn) *ConnSink {
	return &ConnSink{w: &connWriter{conn: conn}}
}

func (s *ConnSink) Write(_ context.Context, chunk []byte) error {
	return s.w.write(chunk)
}

func (s *ConnSink) Close(context.Context) error {
	return s.w.closeWrite()
}

func (s *ConnSink) Abort(context.Context, error) error {
	return s.w.abort()
}
