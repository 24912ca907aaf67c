// Package netflow serves chunk pipelines over TCP. Every connection runs
// socket -> transform -> socket while a heartbeat writes "beat" on the same
// connection at a fixed interval until the pipeline finishes.
package netflow

import (
	"context"
	"encoding/hex"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
	"gopkg.in/tomb.v2"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/codec"
	"github.com/lguimbarda/chunkflow/flow/core"
	"github.com/lguimbarda/chunkflow/flow/pipeline"
)

// DefaultHeartbeat is the interval between two heartbeats.
const DefaultHeartbeat = time.Second

// Beat is the heartbeat payload.
var Beat = []byte("beat")

// Server runs one pipeline per accepted connection.
type Server struct {
	Addr      string
	Heartbeat time.Duration
	// Transform is applied to every chunk read from a client. Uppercase when nil.
	Transform core.Transformer[[]byte, []byte]
	ChunkSize int
	Clock     clockz.Clock
	Logger    zerolog.Logger
	Options   []pipeline.Option
}

// Upper uppercases every chunk.
func Upper() core.Transformer[[]byte, []byte] {
	return codec.UppercaseBytes()
}

// Scrypt replaces every chunk with the hex encoding of a key derived from it.
func Scrypt(salt []byte, keyLen int) core.Transformer[[]byte, []byte] {
	return ScryptKey(salt, keyLen)
}

// ScryptKey is Scrypt as a single conversion, for use with parallel.Ordered.
func ScryptKey(salt []byte, keyLen int) core.Converter[[]byte, []byte] {
	derive := codec.DeriveKey(salt, keyLen)
	return core.Convert(func(ctx context.Context, chunk []byte) ([]byte, bool, error) {
		key, ok, err := derive(ctx, chunk)
		if err != nil || !ok {
			return nil, ok, err
		}
		return []byte(hex.EncodeToString(key)), true, nil
	})
}

// Echo returns every chunk unchanged.
func Echo() core.Transformer[[]byte, []byte] {
	return flow.Chain[[]byte]()
}

func (s *Server) clock() clockz.Clock {
	if s.Clock == nil {
		return clockz.RealClock
	}
	return s.Clock
}

func (s *Server) heartbeat() time.Duration {
	if s.Heartbeat <= 0 {
		return DefaultHeartbeat
	}
	return s.Heartbeat
}

func (s *Server) transform() core.Transformer[[]byte, []byte] {
	if s.Transform == nil {
		return Upper()
	}
	return s.Transform
}

// ListenAndServe listens on s.Addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return core.WithKind(errors.Wrapf(err, "listen on %s", s.Addr), core.KindResource)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes ln and
// waits for every open connection to finish. Cancellation is not an error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	t, ctx := tomb.WithContext(ctx)
	s.Logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	t.Go(func() error {
		<-t.Dying()
		return ln.Close()
	})
	t.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return core.WithKind(errors.Wrap(err, "accept"), core.KindResource)
			}
			t.Go(func() error {
				s.serveConn(ctx, conn)
				return nil
			})
		}
	})

	err := t.Wait()
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// serveConn runs the pipeline of one connection. Per-connection failures are
// logged, never returned: one bad client does not stop the server.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.Logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("connection opened")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := NewConnSink(conn)
	beats := make(chan struct{})
	go func() {
		defer close(beats)
		s.beat(ctx, sink.w)
	}()

	opts := append([]pipeline.Option{pipeline.WithLogger(log)}, s.Options...)
	report, err := pipeline.FromSource[[]byte]("socket", NewConnSource(conn, s.ChunkSize), opts...).
		Through("transform", s.transform()).
		Into("reply", sink).
		Run(ctx)

	cancel()
	<-beats

	if err != nil && !core.IsCancellation(err) {
		log.Error().Err(err).Str("run_id", report.RunID).Msg("there was a socket error")
		return
	}
	log.Debug().Int64("chunks", report.Chunks).Dur("duration", report.Duration).Msg("connection finished")
}

func (s *Server) beat(ctx context.Context, w *connWriter) {
	clock := s.clock()
	for {
		select {
		case <-ctx.Done():
			return
		case <-clock.After(s.heartbeat()):
		}
		if err := w.write(Beat); err != nil {
			return
		}
	}
}
