// Package io provides sources and sinks over files and byte streams.
package io

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/core"
)

// DefaultChunkSize is the largest chunk a byte source emits unless told
// otherwise.
const DefaultChunkSize = 16 * 1024

// ChunkSource reads a byte stream in chunks of size bytes; only the last
// chunk may be shorter. Every chunk is a fresh slice owned by the receiver.
type ChunkSource struct {
	open    func() (io.Reader, error)
	size    int
	partial bool

	mu      sync.Mutex
	r       io.Reader
	buf     []byte
	pending error
	done    bool
	closed  bool
}

// OpenChunks returns a source over the file at path. The file is opened on
// the first Pull, so a missing file surfaces as a pull error.
func OpenChunks(path string, size int) *ChunkSource {
	return &ChunkSource{
		open: func() (io.Reader, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, errors.Wrapf(err, "open %s", path)
			}
			return f, nil
		},
		size: chunkSize(size),
	}
}

// NewChunkSource returns a source over r. If r is an io.Closer it is closed
// with the source.
func NewChunkSource(r io.Reader, size int) *ChunkSource {
	return &ChunkSource{
		open: func() (io.Reader, error) { return r, nil },
		size: chunkSize(size),
	}
}

// Streaming makes the source emit what each single read returns instead of
// waiting for a full chunk, for live producers such as pipes whose output
// should flow as it is written. Chunk boundaries then follow the reader.
func (s *ChunkSource) Streaming() *ChunkSource {
	s.partial = true
	return s
}

func chunkSize(size int) int {
	if size <= 0 {
		return DefaultChunkSize
	}
	return size
}

func (s *ChunkSource) Pull(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, core.WithKind(err, core.KindCancelled)
	}
	if s.closed {
		return nil, errors.New("pull from closed source")
	}
	if s.pending != nil {
		err := s.pending
		s.pending, s.done = nil, true
		return nil, err
	}
	if s.done {
		return nil, core.ErrEndOfStream
	}
	if s.r == nil {
		r, err := s.open()
		if err != nil {
			s.done = true
			return nil, err
		}
		s.r = r
		s.buf = make([]byte, s.size)
	}

	for {
		n, err := s.read()
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, s.buf[:n])
			switch {
			case err == nil:
			case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
				s.done = true
			default:
				s.pending = core.WithKind(errors.Wrap(err, "read"), core.KindResource)
			}
			return chunk, nil
		}
		if errors.Is(err, io.EOF) {
			s.done = true
			return nil, core.ErrEndOfStream
		}
		if err != nil {
			s.done = true
			return nil, core.WithKind(errors.Wrap(err, "read"), core.KindResource)
		}
	}
}

func (s *ChunkSource) read() (int, error) {
	if s.partial {
		return s.r.Read(s.buf)
	}
	return io.ReadFull(s.r, s.buf)
}

func (s *ChunkSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReadChunks creates a Stream of byte chunks read from the file at path.
// If the file cannot be opened, the stream emits a single error.
func ReadChunks(path string, size int) core.Stream[[]byte] {
	return flow.Defer(func() core.Stream[[]byte] {
		return flow.FromSource[[]byte](OpenChunks(path, size))
	})
}

// ReadChunksFrom creates a Stream of byte chunks read from r.
func ReadChunksFrom(r io.Reader, size int) core.Stream[[]byte] {
	return flow.FromSource[[]byte](NewChunkSource(r, size))
}

// LineSource emits the lines of a text stream without their line endings.
type LineSource struct {
	open func() (io.Reader, error)

	mu      sync.Mutex
	r       io.Reader
	scanner *bufio.Scanner
	done    bool
	closed  bool
}

// OpenLines returns a line source over the file at path, opened on first Pull.
func OpenLines(path string) *LineSource {
	return &LineSource{open: func() (io.Reader, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		return f, nil
	}}
}

// NewLineSource returns a line source over r.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{open: func() (io.Reader, error) { return r, nil }}
}

func (s *LineSource) Pull(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", core.WithKind(err, core.KindCancelled)
	}
	if s.closed {
		return "", errors.New("pull from closed source")
	}
	if s.done {
		return "", core.ErrEndOfStream
	}
	if s.scanner == nil {
		r, err := s.open()
		if err != nil {
			s.done = true
			return "", err
		}
		s.r = r
		s.scanner = bufio.NewScanner(r)
	}

	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", core.WithKind(errors.Wrap(err, "scan"), core.KindResource)
	}
	return "", core.ErrEndOfStream
}

func (s *LineSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReadLines creates a Stream that emits each line from the given file path.
// Lines are emitted without the trailing newline character.
// If the file cannot be opened, the stream emits an error and completes.
func ReadLines(path string) core.Stream[string] {
	return flow.Defer(func() core.Stream[string] {
		return flow.FromSource[string](OpenLines(path))
	})
}

// ReadLinesFrom creates a Stream that reads lines from an io.Reader.
// This is useful for reading from stdin, network connections, or other readers.
func ReadLinesFrom(r io.Reader) core.Stream[string] {
	return flow.FromSource[string](NewLineSource(r))
}
